//go:build darwin || freebsd || linux

package symtab

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Dlsym loads the shared library at libPath and returns the address of name.
// The library stays loaded; unloading a Go c-shared library is not supported.
func Dlsym(libPath, name string) (uintptr, error) {
	lib, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("symtab: dlopen %s: %w", libPath, err)
	}
	addr, err := purego.Dlsym(lib, name)
	if err != nil {
		return 0, fmt.Errorf("symtab: dlsym %s: %w: %v", name, ErrSymbolNotFound, err)
	}
	return addr, nil
}
