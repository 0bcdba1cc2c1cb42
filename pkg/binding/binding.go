// Package binding exposes the breakpoint marker to Starlark scripts.
//
// The module _breakmark is registered when the package is loaded and is
// predeclared for every script run through ExecFile:
//
//	_breakmark.breakpoint_mark()
//
// or, with an explicit load statement:
//
//	load("_breakmark", "breakpoint_mark")
//	breakpoint_mark()
package binding

import (
	"errors"
	"fmt"

	"github.com/aivorynet/breakmark/pkg/mark"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Names under which the marker is registered.
const (
	ModuleName = "_breakmark"
	FuncName   = "breakpoint_mark"
	Doc        = "Used for interpreted-language debugger breakpoints.\n"
)

// ErrUnexpectedArgs is returned when breakpoint_mark is called with arguments.
var ErrUnexpectedArgs = errors.New("unexpected argument(s)")

// BreakpointMark is the Starlark builtin bound to FuncName.
var BreakpointMark = starlark.NewBuiltin(FuncName, breakpointMark)

// MarkModule is the frozen module registered as ModuleName.
var MarkModule = newMarkModule()

func init() {
	if err := Register(ModuleName, MarkModule); err != nil {
		panic(err)
	}
}

func newMarkModule() *starlarkstruct.Module {
	m := &starlarkstruct.Module{
		Name: ModuleName,
		Members: starlark.StringDict{
			FuncName: BreakpointMark,
		},
	}
	m.Freeze()
	return m
}

func breakpointMark(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := noArgs(b, args, kwargs); err != nil {
		return nil, err
	}
	mark.BreakpointMark()
	return starlark.None, nil
}

// noArgs rejects any positional or keyword argument.
func noArgs(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) error {
	if n := len(args) + len(kwargs); n > 0 {
		return fmt.Errorf("%s: %w: got %d, want 0", b.Name(), ErrUnexpectedArgs, n)
	}
	return nil
}
