package browser

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry routes backend names to drivers
type Registry struct {
	drivers  map[string]Driver
	fallback string
	mu       sync.RWMutex
}

// NewRegistry creates a registry whose fallback is the first driver given
func NewRegistry(drivers ...Driver) (*Registry, error) {
	if len(drivers) == 0 {
		return nil, fmt.Errorf("at least one browser driver is required")
	}

	r := &Registry{
		drivers:  make(map[string]Driver, len(drivers)),
		fallback: drivers[0].Name(),
	}
	for _, d := range drivers {
		if _, exists := r.drivers[d.Name()]; exists {
			return nil, fmt.Errorf("duplicate browser backend %q", d.Name())
		}
		r.drivers[d.Name()] = d
	}

	return r, nil
}

// SetDefault changes the backend used when a request names none or an unknown one
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[name]; !exists {
		return fmt.Errorf("unsupported browser backend: %s", name)
	}
	r.fallback = name
	return nil
}

// Get returns the driver registered under name
func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.drivers[name]
	if !exists {
		return nil, fmt.Errorf("unsupported browser backend: %s", name)
	}
	return d, nil
}

// Route returns the requested driver, or the default one when it is not registered
func (r *Registry) Route(requested string) Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, exists := r.drivers[requested]; exists {
		return d
	}
	return r.drivers[r.fallback]
}

// Backends returns all registered backend names
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every driver
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, d := range r.drivers {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s driver: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}
