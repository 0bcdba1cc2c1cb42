package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aivorynet/breakmark/pkg/binding"
	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

type runner struct {
	filename   string
	src        string
	threads    int
	iterations int
	sleep      time.Duration
}

// run starts the workers and waits for them. With threads == 0 the single
// worker runs on the calling goroutine.
func (r *runner) run(ctx context.Context) error {
	if r.threads <= 0 {
		return r.worker(ctx, 0)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.threads; i++ {
		id := i
		g.Go(func() error {
			return r.worker(ctx, id)
		})
	}
	return g.Wait()
}

func (r *runner) worker(ctx context.Context, id int) error {
	thread := binding.NewThread(ctx, fmt.Sprintf("worker-%d", id))

	globals, err := binding.ExecFile(thread, r.filename, r.src)
	if err != nil {
		return fmt.Errorf("worker %d: load %s: %w", id, r.filename, err)
	}
	test, ok := globals["test"].(starlark.Callable)
	if !ok {
		return fmt.Errorf("worker %d: %s does not define test(worker, counter)", id, r.filename)
	}

	for counter := 0; r.iterations == 0 || counter < r.iterations; counter++ {
		timer := time.NewTimer(r.sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		args := starlark.Tuple{starlark.MakeInt(id), starlark.MakeInt(counter)}
		if _, err := starlark.Call(thread, test, args, nil); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker %d: test(%d): %w", id, counter, err)
		}
	}
	return nil
}
