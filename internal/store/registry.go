package store

import (
	"fmt"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/model"
)

// Registry is the immutable set of tracked facilities, validated from config
// once at startup. Unregistered facility IDs seen later are data errors, not
// silent no-ops.
type Registry struct {
	facilities []model.Facility
	byID       map[string]model.Facility
}

// NewRegistry validates the configured facility entries into a Registry.
func NewRegistry(entries []config.FacilityConfig) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("facility registry is empty")
	}

	r := &Registry{byID: make(map[string]model.Facility, len(entries))}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("facility with empty id (display_name %q)", e.DisplayName)
		}
		if e.DisplayName == "" {
			return nil, fmt.Errorf("facility %q has no display_name", e.ID)
		}
		if _, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate facility id %q", e.ID)
		}
		if e.Capacity != nil && *e.Capacity <= 0 {
			return nil, fmt.Errorf("facility %q has non-positive capacity %d", e.ID, *e.Capacity)
		}

		f := model.Facility{
			ID:          e.ID,
			DisplayName: e.DisplayName,
			Capacity:    e.Capacity,
		}
		r.byID[f.ID] = f
		r.facilities = append(r.facilities, f)
	}
	return r, nil
}

// All returns the registered facilities in configuration order.
func (r *Registry) All() []model.Facility {
	out := make([]model.Facility, len(r.facilities))
	copy(out, r.facilities)
	return out
}

// Lookup returns the facility for the given id.
func (r *Registry) Lookup(id string) (model.Facility, bool) {
	f, ok := r.byID[id]
	return f, ok
}

// Len returns the number of registered facilities.
func (r *Registry) Len() int {
	return len(r.facilities)
}
