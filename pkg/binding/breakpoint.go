package binding

import (
	"github.com/aivorynet/breakmark/pkg/breakpoint"
	"github.com/aivorynet/breakmark/pkg/capture"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// BreakpointModuleName is the name of the module built by NewBreakpointModule.
const BreakpointModuleName = "breakpoint"

// NewBreakpointModule exposes gate to scripts:
//
//	breakpoint.enable()
//	breakpoint.set()                    # waits for the console, then hits the marker
//	breakpoint.set_console_connected()
//
// maxDepth bounds how deep the caller's parameters are captured.
func NewBreakpointModule(gate *breakpoint.Gate, maxDepth int) *starlarkstruct.Module {
	noArgFn := func(name string, fn func(*starlark.Thread) (starlark.Value, error)) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := noArgs(b, args, kwargs); err != nil {
				return nil, err
			}
			return fn(thread)
		})
	}

	m := &starlarkstruct.Module{
		Name: BreakpointModuleName,
		Members: starlark.StringDict{
			"enable": noArgFn("enable", func(*starlark.Thread) (starlark.Value, error) {
				gate.Enable(nil)
				return starlark.None, nil
			}),
			"disable": noArgFn("disable", func(*starlark.Thread) (starlark.Value, error) {
				gate.Disable()
				return starlark.None, nil
			}),
			"enabled": noArgFn("enabled", func(*starlark.Thread) (starlark.Value, error) {
				return starlark.Bool(gate.Enabled()), nil
			}),
			"set": noArgFn("set", func(thread *starlark.Thread) (starlark.Value, error) {
				locate := func() breakpoint.Site { return ScriptSite(thread, maxDepth) }
				if err := gate.SetFunc(ContextOf(thread), locate); err != nil {
					return nil, err
				}
				return starlark.None, nil
			}),
			"set_console_connected": noArgFn("set_console_connected", func(*starlark.Thread) (starlark.Value, error) {
				gate.SetConsoleConnected()
				return starlark.None, nil
			}),
			"console_connected": noArgFn("console_connected", func(*starlark.Thread) (starlark.Value, error) {
				return starlark.Bool(gate.ConsoleConnected()), nil
			}),
		},
	}
	m.Freeze()
	return m
}

// ScriptSite describes the script location that called the running builtin:
// both call stacks, the caller's parameters and module globals, and the
// source lines around the call when the script was run through ExecFile or
// registered with RememberSource.
func ScriptSite(thread *starlark.Thread, maxDepth int) breakpoint.Site {
	site := breakpoint.Site{
		ScriptFrames: capture.ScriptFrames(thread),
		NativeFrames: capture.NativeFrames(1),
	}
	if thread.CallStackDepth() < 2 {
		return site
	}
	caller := thread.CallFrame(1)
	site.Function = caller.Name
	if caller.Pos.IsValid() {
		site.File = caller.Pos.Filename()
		site.Line = int(caller.Pos.Line)
	}
	site.Params = capture.ScriptParams(thread, 1, maxDepth)
	site.Globals = capture.ScriptGlobals(thread, 1, maxDepth)
	site.Source = sourceContext(site.File, site.Line)
	return site
}
