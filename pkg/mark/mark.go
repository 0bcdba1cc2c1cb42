// Package mark provides the native breakpoint marker.
//
// BreakpointMark is an empty routine that exists only so a native debugger has a
// stable symbol to stop on. Scripts reach it through the Starlark binding, C
// callers through the exported breakmark_breakpoint_mark symbol:
//
//	(dlv) break github.com/aivorynet/breakmark/pkg/mark.BreakpointMark
//	(gdb) break 'github.com/aivorynet/breakmark/pkg/mark.BreakpointMark'
//	(gdb) break breakmark_breakpoint_mark
//
// The //go:noinline directive below is required for the debugger to have a
// target. Do not remove it, and do not give the function a body the compiler
// could fold away at its call sites.
package mark

import (
	"reflect"
	"runtime"
)

// Symbol is the fully qualified name of BreakpointMark in the symbol table.
// Breakpoint configurations depend on it, so it must not change.
const Symbol = "github.com/aivorynet/breakmark/pkg/mark.BreakpointMark"

// CSymbol is the name exported by the c-shared build in bindings/c.
const CSymbol = "breakmark_breakpoint_mark"

// BreakpointMark does nothing and always returns.
//
//go:noinline
func BreakpointMark() {}

// Entry returns the entry address of BreakpointMark.
func Entry() uintptr {
	return reflect.ValueOf(BreakpointMark).Pointer()
}

// Name returns the name the runtime reports for BreakpointMark. It equals Symbol
// unless the package has been moved.
func Name() string {
	fn := runtime.FuncForPC(Entry())
	if fn == nil {
		return ""
	}
	return fn.Name()
}
