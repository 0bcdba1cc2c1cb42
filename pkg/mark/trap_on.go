//go:build debugger

package mark

import "runtime"

// Trap raises a breakpoint trap. Only compiled with -tags debugger: without an
// attached debugger the process receives SIGTRAP and dies, so it must never be
// reachable from a production build.
func Trap() {
	runtime.Breakpoint()
}

// TrapEnabled reports whether the debugger build tag is active.
func TrapEnabled() bool { return true }
