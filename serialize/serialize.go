// Package serialize converts between database records and JSON:API
// resource objects: serialization of records into documents,
// deserialization of client documents into column values, and
// resolution of compound-document inclusions.
package serialize

import (
	"context"
	"fmt"
	"time"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/schema"
	"github.com/restlessgo/restless/storage"
)

// Serializer converts one record into a resource object. The fields
// argument is the client's sparse fieldset for the record's type; nil
// means every eligible field.
type Serializer interface {
	Serialize(ctx context.Context, s *schema.Schema, record storage.Record, fields []string) (*restless.Resource, error)
}

// DefaultSerializer renders records per the schema description:
// eligible attributes (with computed values invoked and temporal values
// normalized) plus relationship linkage built from foreign keys.
type DefaultSerializer struct {
	Repo *storage.Repository
	// BaseURL prefixes self and related links. Links are omitted
	// entirely when IncludeLinks is false.
	BaseURL      string
	IncludeLinks bool
}

// Serialize renders a single record.
func (d *DefaultSerializer) Serialize(ctx context.Context, s *schema.Schema, record storage.Record, fields []string) (*restless.Resource, error) {
	id := pkString(s, record)

	resource := &restless.Resource{
		ID:         id,
		Type:       s.Type,
		Attributes: make(map[string]any),
	}

	allowed := fieldSet(fields)
	for _, name := range s.AttributeNames() {
		if allowed != nil && !allowed[name] {
			continue
		}
		value, err := d.attributeValue(s, record, name)
		if err != nil {
			return nil, restless.NewSerializationFailed(s.Type, id, err)
		}
		resource.Attributes[name] = value
	}

	for _, name := range s.RelationshipNames() {
		if allowed != nil && !allowed[name] {
			continue
		}
		rel, _ := s.Relationship(name)
		linkage, err := d.linkage(ctx, s, record, rel)
		if err != nil {
			return nil, restless.NewSerializationFailed(s.Type, id, err)
		}
		relationship := &restless.Relationship{Data: linkage}
		if d.IncludeLinks {
			relationship.Links = restless.Links{
				"self":    {Href: fmt.Sprintf("%s/%s/%s/relationships/%s", d.BaseURL, s.Type, id, name)},
				"related": {Href: fmt.Sprintf("%s/%s/%s/%s", d.BaseURL, s.Type, id, name)},
			}
		}
		if resource.Relationships == nil {
			resource.Relationships = make(map[string]*restless.Relationship)
		}
		resource.Relationships[name] = relationship
	}

	if d.IncludeLinks {
		resource.Links = restless.Links{
			"self": {Href: fmt.Sprintf("%s/%s/%s", d.BaseURL, s.Type, id)},
		}
	}

	return resource, nil
}

// SerializeMany renders a collection, aggregating per-record failures
// instead of aborting at the first one. On failure the returned error
// is a restless.MultiError carrying one error object per failed record.
func SerializeMany(ctx context.Context, ser Serializer, s *schema.Schema, records []storage.Record, fields []string) ([]*restless.Resource, error) {
	resources := make([]*restless.Resource, 0, len(records))
	var failures restless.MultiError
	for _, record := range records {
		resource, err := ser.Serialize(ctx, s, record, fields)
		if err != nil {
			failures = append(failures, restless.AsError(err))
			continue
		}
		resources = append(resources, resource)
	}
	if len(failures) > 0 {
		return nil, failures
	}
	return resources, nil
}

func (d *DefaultSerializer) attributeValue(s *schema.Schema, record storage.Record, name string) (any, error) {
	if computed, ok := s.Computed[name]; ok {
		return computed(record), nil
	}

	field, ok := s.Field(name)
	if !ok {
		return nil, fmt.Errorf("no field %q", name)
	}
	return normalizeAttribute(field, record[field.ColumnName()])
}

// normalizeAttribute renders driver values the way they appear on the
// wire: temporal values as ISO 8601 strings, intervals as seconds.
func normalizeAttribute(field schema.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch field.Kind {
	case schema.Date:
		t, err := asTime(value)
		if err != nil {
			return nil, err
		}
		return t.Format("2006-01-02"), nil
	case schema.Time:
		t, err := asTime(value)
		if err != nil {
			return nil, err
		}
		return t.Format("15:04:05"), nil
	case schema.DateTime:
		t, err := asTime(value)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil
	case schema.Interval:
		if duration, ok := value.(time.Duration); ok {
			return duration.Seconds(), nil
		}
		return value, nil
	default:
		return value, nil
	}
}

func asTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		return parseTemporal(v)
	default:
		return time.Time{}, fmt.Errorf("value %v is not a temporal type", value)
	}
}

// linkage builds relationship resource linkage. To-one linkage comes
// straight off the foreign key; to-many linkage queries the related
// primary keys.
func (d *DefaultSerializer) linkage(ctx context.Context, s *schema.Schema, record storage.Record, rel schema.Relationship) (restless.PrimaryData, error) {
	if !rel.IsToMany() {
		fk := record[rel.Column]
		if fk == nil {
			return restless.One{}, nil
		}
		return restless.One{Value: &restless.Resource{Type: rel.Type, ID: fmt.Sprintf("%v", fk)}}, nil
	}

	refs, err := d.Repo.RelatedRefs(ctx, s, record, rel)
	if err != nil {
		return nil, err
	}
	identifiers := make([]*restless.Resource, len(refs))
	for i, ref := range refs {
		identifiers[i] = &restless.Resource{Type: rel.Type, ID: ref}
	}
	return restless.Many{Value: identifiers}, nil
}

// fieldSet converts a sparse fieldset to a lookup, distinguishing the
// nil "no restriction" case from the empty "nothing" case.
func fieldSet(fields []string) map[string]bool {
	if fields == nil {
		return nil
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// pkString renders a record's primary key the way it appears in
// resource identifiers.
func pkString(s *schema.Schema, record storage.Record) string {
	value := record[s.PrimaryKeyColumn()]
	if value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", value)
}
