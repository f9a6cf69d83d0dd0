package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a provider from its configuration map.
type Factory func(config map[string]any) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory registers a provider factory under a name.
// Called from provider init() functions.
func RegisterFactory(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// New constructs a provider by name using its registered factory.
func New(name string, config map[string]any) (Provider, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}
	return factory(config)
}

// List returns all registered provider names, sorted.
func List() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
