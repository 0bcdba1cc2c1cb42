// Package symtab resolves symbols in compiled artifacts so the presence of the
// breakpoint marker can be checked without a debugger attached.
package symtab

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSymbolNotFound is returned when the artifact has no symbol with the given name.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnknownFormat is returned when the file is not ELF, Mach-O or PE.
	ErrUnknownFormat = errors.New("unknown object file format")
)

// Symbol is a resolved symbol table entry.
type Symbol struct {
	Name   string
	Addr   uint64
	Size   uint64
	Format string
}

// Lookup finds name in the symbol table of the object file at path.
func Lookup(path, name string) (Symbol, error) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		return lookupELF(f, name)
	}
	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		return lookupMachO(f, name)
	}
	if f, err := pe.Open(path); err == nil {
		defer f.Close()
		return lookupPE(f, name)
	}
	if _, err := os.Stat(path); err != nil {
		return Symbol{}, fmt.Errorf("symtab: %w", err)
	}
	return Symbol{}, fmt.Errorf("symtab: %s: %w", path, ErrUnknownFormat)
}

// LookupSelf finds name in the running executable.
func LookupSelf(name string) (Symbol, error) {
	exe, err := os.Executable()
	if err != nil {
		return Symbol{}, fmt.Errorf("symtab: locate executable: %w", err)
	}
	return Lookup(exe, name)
}

func lookupELF(f *elf.File, name string) (Symbol, error) {
	// Static symbols first, then the dynamic table of c-shared builds.
	for _, load := range []func() ([]elf.Symbol, error){f.Symbols, f.DynamicSymbols} {
		syms, err := load()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			return Symbol{}, fmt.Errorf("symtab: read elf symbols: %w", err)
		}
		for _, s := range syms {
			if s.Name == name {
				return Symbol{Name: s.Name, Addr: s.Value, Size: s.Size, Format: "elf"}, nil
			}
		}
	}
	return Symbol{}, fmt.Errorf("symtab: %s: %w", name, ErrSymbolNotFound)
}

func lookupMachO(f *macho.File, name string) (Symbol, error) {
	if f.Symtab == nil {
		return Symbol{}, fmt.Errorf("symtab: %s: %w", name, ErrSymbolNotFound)
	}
	for _, s := range f.Symtab.Syms {
		// C symbols carry a leading underscore on Darwin.
		if s.Name == name || s.Name == "_"+name {
			return Symbol{Name: s.Name, Addr: s.Value, Format: "macho"}, nil
		}
	}
	return Symbol{}, fmt.Errorf("symtab: %s: %w", name, ErrSymbolNotFound)
}

func lookupPE(f *pe.File, name string) (Symbol, error) {
	for _, s := range f.Symbols {
		if s.Name == name {
			return Symbol{Name: s.Name, Addr: uint64(s.Value), Format: "pe"}, nil
		}
	}
	return Symbol{}, fmt.Errorf("symtab: %s: %w", name, ErrSymbolNotFound)
}
