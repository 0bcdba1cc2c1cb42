//go:build !darwin && !freebsd && !linux

package symtab

import (
	"errors"
	"runtime"
)

// Dlsym is unavailable on this platform.
func Dlsym(libPath, name string) (uintptr, error) {
	return 0, errors.New("symtab: dlsym not supported on " + runtime.GOOS)
}
