//go:build !debugger

package mark

// Trap is a no-op in builds without the debugger tag.
func Trap() {}

// TrapEnabled reports whether the debugger build tag is active. Always false here.
func TrapEnabled() bool { return false }
