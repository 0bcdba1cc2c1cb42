// Command c builds the breakmark C library:
//
//	go build -buildmode=c-shared -o libbreakmark.so ./bindings/c
//
// The library exports breakmark_breakpoint_mark for native hosts that embed
// their own interpreter and want a breakpoint target without the Starlark
// binding.
package main

import "github.com/aivorynet/breakmark/pkg/mark"

// API version, packed as major<<16 | minor<<8 | patch by apiVersion.
const (
	apiVersionMajor = 0
	apiVersionMinor = 1
	apiVersionPatch = 0
)

func apiVersion() uint32 {
	return apiVersionMajor<<16 | apiVersionMinor<<8 | apiVersionPatch
}

// breakpointMark is the body of the exported symbol.
func breakpointMark() {
	mark.BreakpointMark()
}

func main() {}
