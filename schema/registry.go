package schema

import (
	"fmt"
	"sort"
)

// Registry maps resource-type strings to schemas. It is built once at
// startup, validated, and treated as read-only afterwards; components
// that need model metadata receive the registry explicitly rather than
// consulting any ambient global.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema, validating its local invariants. Registering
// a model without a usable primary key fails here, at setup time, not
// at request time.
func (r *Registry) Register(s *Schema) error {
	if err := s.finalize(); err != nil {
		return err
	}
	if _, dup := r.schemas[s.Type]; dup {
		return fmt.Errorf("schema: type %q is already registered", s.Type)
	}
	r.schemas[s.Type] = s
	return nil
}

// Validate checks cross-schema invariants once all registrations are
// complete: every relationship target must name a registered type.
func (r *Registry) Validate() error {
	for _, s := range r.schemas {
		for _, rel := range s.Relationships {
			if _, ok := r.schemas[rel.Type]; !ok {
				return fmt.Errorf("schema %q: relationship %q targets unregistered type %q",
					s.Type, rel.Name, rel.Type)
			}
		}
	}
	return nil
}

// Get looks up the schema bound to a resource type.
func (r *Registry) Get(resourceType string) (*Schema, bool) {
	s, ok := r.schemas[resourceType]
	return s, ok
}

// Related resolves the schema on the far side of a relationship.
func (r *Registry) Related(s *Schema, relationship string) (*Schema, Relationship, bool) {
	rel, ok := s.Relationship(relationship)
	if !ok {
		return nil, Relationship{}, false
	}
	related, ok := r.schemas[rel.Type]
	return related, rel, ok
}

// Types returns the sorted resource types known to the registry.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
