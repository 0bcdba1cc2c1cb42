//go:build !linux

package breakpoint

func threadID() int {
	return 0
}
