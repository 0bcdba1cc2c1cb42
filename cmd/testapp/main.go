// breakmark test application
//
// Runs a Starlark script whose test function calls breakpoint.set() in a
// loop, from one or more worker goroutines, so the marker can be exercised
// under a debugger.
//
// Usage:
//
//	go build -gcflags=all="-N -l" -o testapp ./cmd/testapp
//	dlv exec ./testapp -- -threads 4
//	(dlv) break github.com/aivorynet/breakmark/pkg/mark.BreakpointMark
//	(dlv) call github.com/aivorynet/breakmark/pkg/agent.SetConsoleConnected()
//	(dlv) continue
//
// With BREAKMARK_CONSOLE_URL set, the console opens the gate instead.
package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aivorynet/breakmark/pkg/agent"
	"github.com/aivorynet/breakmark/pkg/mark"
	"github.com/aivorynet/breakmark/pkg/symtab"
	"github.com/sirupsen/logrus"
)

//go:embed testapp.star
var defaultScript string

func main() {
	threads := flag.Int("threads", 1, "number of worker goroutines; 0 runs the loop on the main goroutine")
	script := flag.String("script", "", "Starlark script defining test(worker, counter); defaults to the built-in script")
	sleep := flag.Duration("sleep", time.Second, "pause between calls to test")
	iterations := flag.Int("iterations", 0, "calls per worker; 0 runs until interrupted")
	checkSymbol := flag.Bool("check-symbol", false, "verify the marker symbol is present in this binary and exit")
	flag.Parse()

	log := logrus.New()

	if *checkSymbol {
		mark.BreakpointMark()
		sym, err := symtab.LookupSelf(mark.Symbol)
		if err != nil {
			log.WithError(err).Fatal("marker symbol check failed")
		}
		fmt.Printf("%s found at %#x (%s)\n", sym.Name, sym.Addr, sym.Format)
		return
	}

	filename, src := "testapp.star", defaultScript
	if *script != "" {
		data, err := os.ReadFile(*script)
		if err != nil {
			log.WithError(err).Fatal("read script")
		}
		filename, src = *script, string(data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := agent.Init()
	defer agent.Shutdown()

	log.WithFields(logrus.Fields{
		"pid":     os.Getpid(),
		"session": a.Config().SessionID,
		"threads": *threads,
		"symbol":  mark.Symbol,
	}).Info("starting test application")

	r := &runner{
		filename:   filename,
		src:        src,
		threads:    *threads,
		iterations: *iterations,
		sleep:      *sleep,
	}
	if err := r.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("test application failed")
		agent.Shutdown()
		os.Exit(1)
	}

	for _, hit := range a.Hits() {
		log.WithFields(logrus.Fields{
			"location": hit.Location,
			"count":    hit.Count,
		}).Info("breakpoint hits")
	}
}
