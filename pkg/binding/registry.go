package binding

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

var (
	// ErrAlreadyRegistered is returned by Register for a name already in use.
	ErrAlreadyRegistered = errors.New("module already registered")
	// ErrModuleNotFound is returned by Load for an unknown module.
	ErrModuleNotFound = errors.New("module not found")
)

var registry = struct {
	mu      sync.RWMutex
	modules map[string]*starlarkstruct.Module
}{
	modules: make(map[string]*starlarkstruct.Module),
}

// Register adds m to the table under name. The module is frozen so it can be
// shared between threads.
func Register(name string, m *starlarkstruct.Module) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, ok := registry.modules[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrAlreadyRegistered)
	}
	m.Freeze()
	registry.modules[name] = m
	Log.Debugf("registered starlark module %s", name)
	return nil
}

// Unregister removes name from the table. It reports whether it was present.
func Unregister(name string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, ok := registry.modules[name]; !ok {
		return false
	}
	delete(registry.modules, name)
	Log.Debugf("unregistered starlark module %s", name)
	return true
}

// Lookup returns the module registered under name.
func Lookup(name string) (*starlarkstruct.Module, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	m, ok := registry.modules[name]
	return m, ok
}

// Modules returns the sorted names of all registered modules.
func Modules() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.modules))
	for name := range registry.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Predeclared returns every registered module keyed by its name.
func Predeclared() starlark.StringDict {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	env := make(starlark.StringDict, len(registry.modules))
	for name, m := range registry.modules {
		env[name] = m
	}
	return env
}

// Load implements starlark.Thread.Load over the registration table.
func Load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	m, ok := Lookup(module)
	if !ok {
		return nil, fmt.Errorf("%s: %w", module, ErrModuleNotFound)
	}
	return m.Members, nil
}
