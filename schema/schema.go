// Package schema describes the models exposed through the API: their
// attributes, relationships, and primary keys. Descriptions are built
// once at registration time and treated as read-only afterwards;
// nothing here inspects models at request time.
package schema

import (
	"fmt"
	"sort"
)

// FieldKind is the logical type of an attribute column. The serializer
// and deserializer use it to normalize temporal values; the query
// builder uses it to validate operator compatibility.
type FieldKind int

const (
	String FieldKind = iota
	Int
	Float
	Bool
	Date
	Time
	DateTime
	// Interval values serialize as a numeric seconds count.
	Interval
	JSON
)

// Field is a column-backed attribute of a model.
type Field struct {
	Name   string    // Attribute name on the wire.
	Kind   FieldKind // Logical type.
	Column string    // Database column; defaults to Name.
	Unique bool      // Carries a uniqueness constraint.
}

// ColumnName returns the database column backing the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Relationship declares a link between two models. Exactly one linkage
// shape applies: a local foreign key (to-one), a remote foreign key
// (to-many), or a join table (many-to-many).
type Relationship struct {
	Name    string // Relationship name on the wire.
	Type    string // Related resource type.
	ToMany  bool   // Cardinality: true for to-many.
	Column  string // Local FK column (to-one).
	Remote  string // FK column on the related table (to-many).
	Through string // Join table name (many-to-many; implies ToMany).
	// Join-table columns referencing the local and related primary keys.
	ThroughLocal  string
	ThroughRemote string
}

// IsToMany reports the relationship cardinality; join-table linkage is
// always to-many.
func (r Relationship) IsToMany() bool {
	return r.ToMany || r.Through != ""
}

// Computed produces an attribute value from a record at serialization
// time, standing in for properties that are not column-backed.
type Computed func(record map[string]any) any

// Schema is the full description of one model bound to a resource type.
type Schema struct {
	Type           string              // Resource type (collection name).
	Table          string              // Database table; defaults to Type.
	PrimaryKey     string              // Primary key field name; defaults to "id".
	Fields         []Field             // Column-backed attributes.
	Relationships  []Relationship      // Relationship declarations.
	Computed       map[string]Computed // Non-column attributes.
	Only           []string            // Whitelist of exposed fields, if set.
	Exclude        []string            // Blacklist of exposed fields, if set.
	AllowClientIDs bool                // Permit client-generated IDs on create.

	fieldsByName map[string]Field
	relsByName   map[string]Relationship
	foreignKeys  map[string]bool
	attributes   []string
}

// TableName returns the backing table, defaulting to the resource type.
func (s *Schema) TableName() string {
	if s.Table != "" {
		return s.Table
	}
	return s.Type
}

// PrimaryKeyName returns the primary key field name.
func (s *Schema) PrimaryKeyName() string {
	if s.PrimaryKey != "" {
		return s.PrimaryKey
	}
	return "id"
}

// PrimaryKeyColumn returns the column backing the primary key.
func (s *Schema) PrimaryKeyColumn() string {
	if f, ok := s.fieldsByName[s.PrimaryKeyName()]; ok {
		return f.ColumnName()
	}
	return s.PrimaryKeyName()
}

// Field looks up a column-backed attribute by name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fieldsByName[name]
	return f, ok
}

// Relationship looks up a relationship by name.
func (s *Schema) Relationship(name string) (Relationship, bool) {
	r, ok := s.relsByName[name]
	return r, ok
}

// HasField reports whether name is a settable field: a column-backed
// attribute or a relationship.
func (s *Schema) HasField(name string) bool {
	if _, ok := s.fieldsByName[name]; ok {
		return true
	}
	_, ok := s.relsByName[name]
	return ok
}

// IsForeignKey reports whether the column backs a to-one relationship;
// such columns never appear as attributes.
func (s *Schema) IsForeignKey(column string) bool {
	return s.foreignKeys[column]
}

// AttributeNames returns the sorted attribute names eligible for
// serialization: column-backed fields and computed attributes, minus
// the primary key's storage, foreign-key columns, and anything removed
// by the Only/Exclude configuration.
func (s *Schema) AttributeNames() []string {
	return s.attributes
}

// RelationshipNames returns the sorted names of exposed relationships.
func (s *Schema) RelationshipNames() []string {
	names := make([]string, 0, len(s.relsByName))
	for name := range s.relsByName {
		if s.exposed(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// exposed applies the Only whitelist and Exclude blacklist to a field
// or relationship name.
func (s *Schema) exposed(name string) bool {
	for _, excluded := range s.Exclude {
		if excluded == name {
			return false
		}
	}
	if len(s.Only) == 0 {
		return true
	}
	for _, allowed := range s.Only {
		if allowed == name {
			return true
		}
	}
	return false
}

// finalize validates local invariants and caches derived lookups. It is
// called by Registry.Register.
func (s *Schema) finalize() error {
	if s.Type == "" {
		return fmt.Errorf("schema: resource type is required")
	}
	if len(s.Only) > 0 && len(s.Exclude) > 0 {
		return fmt.Errorf("schema %q: cannot specify both Only and Exclude", s.Type)
	}

	s.fieldsByName = make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "type" || (f.Name == "id" && s.PrimaryKeyName() != "id") {
			return fmt.Errorf("schema %q: field name %q collides with a reserved member", s.Type, f.Name)
		}
		if _, dup := s.fieldsByName[f.Name]; dup {
			return fmt.Errorf("schema %q: duplicate field %q", s.Type, f.Name)
		}
		s.fieldsByName[f.Name] = f
	}

	pk := s.PrimaryKeyName()
	if _, ok := s.fieldsByName[pk]; !ok {
		return fmt.Errorf("schema %q: model has no usable primary key %q", s.Type, pk)
	}

	s.foreignKeys = make(map[string]bool)
	s.relsByName = make(map[string]Relationship, len(s.Relationships))
	for _, r := range s.Relationships {
		if r.Name == "id" || r.Name == "type" {
			return fmt.Errorf("schema %q: relationship name %q collides with a reserved member", s.Type, r.Name)
		}
		if _, dup := s.relsByName[r.Name]; dup {
			return fmt.Errorf("schema %q: duplicate relationship %q", s.Type, r.Name)
		}
		if _, clash := s.fieldsByName[r.Name]; clash {
			return fmt.Errorf("schema %q: relationship %q collides with an attribute of the same name", s.Type, r.Name)
		}
		if err := r.validateShape(s.Type); err != nil {
			return err
		}
		if r.Column != "" {
			s.foreignKeys[r.Column] = true
		}
		s.relsByName[r.Name] = r
	}

	for name := range s.Computed {
		if !s.exposed(name) {
			continue
		}
		if _, clash := s.fieldsByName[name]; clash {
			return fmt.Errorf("schema %q: computed attribute %q collides with a field", s.Type, name)
		}
		if _, clash := s.relsByName[name]; clash {
			return fmt.Errorf("schema %q: computed attribute %q collides with a relationship", s.Type, name)
		}
	}

	s.attributes = s.eligibleAttributes()
	return nil
}

func (r Relationship) validateShape(owner string) error {
	switch {
	case r.Type == "":
		return fmt.Errorf("schema %q: relationship %q has no related type", owner, r.Name)
	case r.Through != "":
		if r.ThroughLocal == "" || r.ThroughRemote == "" {
			return fmt.Errorf("schema %q: relationship %q requires join-table columns", owner, r.Name)
		}
	case r.ToMany && r.Remote == "":
		return fmt.Errorf("schema %q: to-many relationship %q has no remote column", owner, r.Name)
	case !r.ToMany && r.Column == "":
		return fmt.Errorf("schema %q: to-one relationship %q has no local column", owner, r.Name)
	}
	return nil
}

func (s *Schema) eligibleAttributes() []string {
	names := make([]string, 0, len(s.fieldsByName)+len(s.Computed))
	pk := s.PrimaryKeyName()
	for name, f := range s.fieldsByName {
		if name == pk {
			continue
		}
		if s.foreignKeys[f.ColumnName()] {
			continue
		}
		if s.exposed(name) {
			names = append(names, name)
		}
	}
	for name := range s.Computed {
		if s.exposed(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
