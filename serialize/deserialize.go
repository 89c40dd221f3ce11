package serialize

import (
	"context"
	"time"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/schema"
	"github.com/restlessgo/restless/storage"
)

// Payload is the validated, storage-ready form of one client resource
// object: column values (to-one foreign keys already folded in) plus
// to-many linkage to apply after the row exists.
type Payload struct {
	ID     string              // Client-supplied ID, empty when absent.
	Values storage.Record      // Column values keyed by column name.
	ToMany map[string][]string // Related IDs keyed by relationship name.
}

// Deserializer validates a client resource object against a schema and
// converts it into a Payload. It never writes; persistence belongs to
// the caller.
type Deserializer interface {
	Deserialize(ctx context.Context, s *schema.Schema, resource *restless.Resource, creating bool) (*Payload, error)
}

// DefaultDeserializer validates in a fixed order so clients always see
// the same failure for the same malformed document: document shape,
// type identity, client ID policy, unknown names, relationship linkage,
// then value conversion. Relationship linkage is resolved through the
// related schema, so pointing at a missing resource fails here rather
// than as a database error.
type DefaultDeserializer struct {
	Repo *storage.Repository
}

// DeserializeDocument validates the document wrapper and hands its
// primary resource to Deserialize.
func (d *DefaultDeserializer) DeserializeDocument(ctx context.Context, s *schema.Schema, doc *restless.Document, creating bool) (*Payload, error) {
	if !doc.HasData() {
		return nil, restless.NewMissingData("")
	}
	resource := doc.Data.First()
	if resource == nil {
		return nil, restless.NewMissingData("")
	}
	return d.Deserialize(ctx, s, resource, creating)
}

// Deserialize validates one resource object and converts it.
func (d *DefaultDeserializer) Deserialize(ctx context.Context, s *schema.Schema, resource *restless.Resource, creating bool) (*Payload, error) {
	if resource.Type == "" {
		return nil, restless.NewMissingType("")
	}
	if creating && resource.ID != "" && !s.AllowClientIDs {
		return nil, restless.NewClientGeneratedID()
	}
	if resource.Type != s.Type {
		return nil, restless.NewConflictingType(s.Type, resource.Type, "")
	}

	payload := &Payload{
		ID:     resource.ID,
		Values: make(storage.Record),
		ToMany: make(map[string][]string),
	}

	// Every name must resolve before any linkage is walked, so an
	// unknown member always wins over a malformed relationship object.
	for name := range resource.Relationships {
		if _, ok := s.Relationship(name); !ok {
			return nil, restless.NewUnknownRelationship(name)
		}
	}
	for name := range resource.Attributes {
		field, ok := s.Field(name)
		if !ok || s.IsForeignKey(field.ColumnName()) {
			return nil, restless.NewUnknownAttribute(name)
		}
	}

	for name, relationship := range resource.Relationships {
		rel, _ := s.Relationship(name)
		if err := d.applyLinkage(ctx, payload, rel, relationship); err != nil {
			return nil, err
		}
	}

	for name, value := range resource.Attributes {
		field, _ := s.Field(name)
		converted, err := convertAttribute(field, value)
		if err != nil {
			return nil, restless.NewInvalidAttribute(name, err)
		}
		payload.Values[field.ColumnName()] = converted
	}

	if payload.ID != "" {
		payload.Values[s.PrimaryKeyColumn()] = payload.ID
	}

	return payload, nil
}

// applyLinkage validates one relationship object and folds it into the
// payload: to-one linkage becomes a foreign key value, to-many linkage
// is kept aside for post-write application.
func (d *DefaultDeserializer) applyLinkage(ctx context.Context, payload *Payload, rel schema.Relationship, relationship *restless.Relationship) error {
	if relationship == nil || !relationship.HasData() {
		return restless.NewMissingData(rel.Name)
	}

	if !rel.IsToMany() {
		linkage := relationship.Data.First()
		if linkage == nil {
			// Explicit null clears the link.
			payload.Values[rel.Column] = nil
			return nil
		}
		if err := d.validateLinkage(ctx, rel, linkage); err != nil {
			return err
		}
		payload.Values[rel.Column] = linkage.ID
		return nil
	}

	ids := make([]string, 0, len(relationship.Data.Items()))
	for _, linkage := range relationship.Data.Items() {
		if err := d.validateLinkage(ctx, rel, linkage); err != nil {
			return err
		}
		ids = append(ids, linkage.ID)
	}
	payload.ToMany[rel.Name] = ids
	return nil
}

// validateLinkage checks one linkage object: identity members present,
// type matching the relationship target, and the referenced resource
// actually existing.
func (d *DefaultDeserializer) validateLinkage(ctx context.Context, rel schema.Relationship, linkage *restless.Resource) error {
	if linkage.ID == "" {
		return restless.NewMissingID(rel.Name)
	}
	if linkage.Type == "" {
		return restless.NewMissingType(rel.Name)
	}
	if linkage.Type != rel.Type {
		return restless.NewConflictingType(rel.Type, linkage.Type, rel.Name)
	}

	related, ok := d.Repo.Registry().Get(rel.Type)
	if !ok {
		return restless.NewUnknownRelationship(rel.Name)
	}
	if _, err := d.Repo.GetByPK(ctx, related, linkage.ID); err != nil {
		return err
	}
	return nil
}

// convertAttribute turns a wire value into a column value. Temporal
// fields accept ISO 8601 strings, the empty string as null, and the
// current-time markers as the server's clock.
func convertAttribute(field schema.Field, value any) (any, error) {
	switch field.Kind {
	case schema.Date, schema.Time, schema.DateTime:
		s, ok := value.(string)
		if !ok {
			if value == nil {
				return nil, nil
			}
			return value, nil
		}
		if s == "" {
			return nil, nil
		}
		if IsCurrentTimeMarker(s) {
			return serverNow(field.Kind), nil
		}
		return parseTemporal(s)
	default:
		return value, nil
	}
}

func serverNow(kind schema.FieldKind) time.Time {
	now := time.Now().UTC()
	if kind == schema.Date {
		return now.Truncate(24 * time.Hour)
	}
	return now
}
