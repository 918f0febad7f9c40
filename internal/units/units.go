// Package units defines the closed set of unit identifiers the converter
// accepts. The built-in set covers the temperature units of the web
// utility; deployments can overlay additional units from a TOML file.
package units

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// Built-in temperature units.
const (
	Celsius    = "celsius"
	Fahrenheit = "fahrenheit"
	Kelvin     = "kelvin"
)

// Registry holds the closed set of known unit identifiers.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// Unit describes a single unit identifier.
type Unit struct {
	// ID is the identifier stored on conversion records.
	ID string `toml:"id"`
	// Label is the human-readable name shown by the CLI.
	Label string `toml:"label"`
	// Quantity groups units that convert between each other
	// (e.g. "temperature").
	Quantity string `toml:"quantity"`
}

// registryFile is the TOML overlay format:
//
//	[[unit]]
//	id = "rankine"
//	label = "Rankine"
//	quantity = "temperature"
type registryFile struct {
	Units []Unit `toml:"unit"`
}

// NewRegistry returns a registry preloaded with the built-in units.
func NewRegistry() *Registry {
	r := &Registry{units: make(map[string]Unit)}
	for _, u := range []Unit{
		{ID: Celsius, Label: "Celsius", Quantity: "temperature"},
		{ID: Fahrenheit, Label: "Fahrenheit", Quantity: "temperature"},
		{ID: Kelvin, Label: "Kelvin", Quantity: "temperature"},
	} {
		r.units[u.ID] = u
	}
	return r
}

// LoadTOML overlays units from a TOML file onto the registry.
// Existing ids are replaced; built-ins cannot be removed, only relabeled.
func (r *Registry) LoadTOML(path string) error {
	var file registryFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("failed to load unit registry from %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range file.Units {
		if u.ID == "" {
			return fmt.Errorf("unit registry %s: unit with empty id", path)
		}
		r.units[u.ID] = u
	}
	return nil
}

// Known reports whether id is in the registry.
func (r *Registry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.units[id]
	return ok
}

// Lookup returns the unit for id, if present.
func (r *Registry) Lookup(id string) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[id]
	return u, ok
}

// IDs returns all known unit identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
