// Package restless implements the JSON:API wire document model shared by
// every other package in this module: resource objects, relationship
// linkage, top-level documents, and the error document shape.
package restless

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/restlessgo/restless/internal/jsonx"
)

// Version is the JSON:API specification version reported in the
// "jsonapi" member of every response document.
const Version = "1.0"

// MediaType is the JSON:API media type. Write request bodies must carry
// it, and every response is served with it.
const MediaType = "application/vnd.api+json"

// Document is the top-level JSON:API node exchanged with clients. A
// response document carries either primary data or errors, never both.
type Document struct {
	JSONAPI  JSONAPI     // The JSON:API object, reporting the supported version.
	Data     PrimaryData // The primary data.
	Meta     Meta        // Top-level metadata, e.g. meta.total.
	Links    Links       // Top-level links (self, pagination).
	Errors   []*Error    // Error objects for failed requests.
	Included []*Resource // Compound-document resources related to the primary data.
}

// NewSingleDocument creates a document with the provided resource as
// primary data. A nil resource renders as "data": null.
func NewSingleDocument(data *Resource) *Document {
	return &Document{Data: One{Value: data}}
}

// NewMultiDocument creates a document with the provided resources as
// primary data. The data member always renders as an array.
func NewMultiDocument(data ...*Resource) *Document {
	return &Document{Data: Many{Value: data}}
}

// Decode reads a JSON-encoded document from r into doc.
func Decode(r io.Reader, doc *Document) error {
	return json.NewDecoder(r).Decode(doc)
}

// Encode writes the JSON encoding of doc to w.
func Encode(w io.Writer, doc *Document) error {
	return json.NewEncoder(w).Encode(doc)
}

// MarshalJSON serializes the document as JSON. Empty optional members
// are omitted per the JSON:API specification.
func (d Document) MarshalJSON() ([]byte, error) {
	type out struct {
		JSONAPI  *JSONAPI    `json:"jsonapi,omitempty"`
		Data     PrimaryData `json:"data,omitempty"`
		Meta     Meta        `json:"meta,omitempty"`
		Links    Links       `json:"links,omitempty"`
		Errors   []*Error    `json:"errors,omitempty"`
		Included []*Resource `json:"included,omitempty"`
	}

	node := out{
		Data:     d.Data,
		Meta:     d.Meta,
		Links:    d.Links,
		Errors:   d.Errors,
		Included: d.Included,
	}
	if d.JSONAPI.Version != "" {
		jsonapi := d.JSONAPI
		node.JSONAPI = &jsonapi
	}
	return json.Marshal(node)
}

// UnmarshalJSON deserializes the document from JSON. The data member is
// sniffed for shape: an object becomes One, an array becomes Many, and
// an explicit null becomes an empty One.
func (d *Document) UnmarshalJSON(data []byte) error {
	type in struct {
		JSONAPI  JSONAPI          `json:"jsonapi,omitempty"`
		Data     *json.RawMessage `json:"data,omitempty"`
		Meta     Meta             `json:"meta,omitempty"`
		Links    Links            `json:"links,omitempty"`
		Errors   []*Error         `json:"errors,omitempty"`
		Included []*Resource      `json:"included,omitempty"`
	}

	var raw map[string]*json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	node := in{}
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}

	d.JSONAPI = node.JSONAPI
	d.Meta = node.Meta
	d.Links = node.Links
	d.Errors = node.Errors
	d.Included = node.Included

	primary, present := raw["data"]
	switch {
	case !present:
		return nil
	case jsonx.IsNull(primary):
		// "data" was set to an explicit null.
		d.Data = One{}
	case jsonx.IsArray(primary):
		many := Many{}
		if err := json.Unmarshal(*primary, &many); err != nil {
			return err
		}
		d.Data = many
	case jsonx.IsObject(primary):
		one := One{}
		if err := json.Unmarshal(*primary, &one); err != nil {
			return err
		}
		d.Data = one
	default:
		return errors.New("restless: document data is neither object, array, nor null")
	}

	return nil
}

// HasData reports whether the document carries a data member, including
// an explicit null.
func (d Document) HasData() bool {
	return d.Data != nil
}

// JSONAPI reports the server's supported specification version.
type JSONAPI struct {
	Version string `json:"version"`
}

// Meta contains non-standard information within a document node.
type Meta = map[string]any

// Resource is a single resource object: identity, attributes, and
// relationship linkage.
// See https://jsonapi.org/format/#document-resource-objects.
type Resource struct {
	ID            string                   // Unique identifier, always rendered as a string.
	Type          string                   // Resource type (collection name).
	Attributes    map[string]any           // Attribute values; omitted from the wire when empty.
	Relationships map[string]*Relationship // Relationship linkage; omitted from the wire when empty.
	Links         Links                    // Navigational links for this resource.
	Meta          Meta                     // Non-standard information.
}

// MarshalJSON serializes the resource object.
func (r Resource) MarshalJSON() ([]byte, error) {
	type out struct {
		ID            string                   `json:"id,omitempty"`
		Type          string                   `json:"type"`
		Attributes    map[string]any           `json:"attributes,omitempty"`
		Relationships map[string]*Relationship `json:"relationships,omitempty"`
		Links         Links                    `json:"links,omitempty"`
		Meta          Meta                     `json:"meta,omitempty"`
	}
	return json.Marshal(out(r))
}

// Identifier returns the resource identifier object for this resource:
// only the members required to identify it.
func (r Resource) Identifier() *Resource {
	return &Resource{ID: r.ID, Type: r.Type}
}

// Key returns the (type, id) identity used for compound-document
// deduplication.
func (r Resource) Key() string {
	return fmt.Sprint(r.Type, ":", r.ID)
}

// Relationship is the relationship object of a resource: linkage to one
// or many related resources plus optional links.
// See https://jsonapi.org/format/#document-resource-object-relationships.
type Relationship struct {
	Data  PrimaryData `json:"data,omitempty"`
	Links Links       `json:"links,omitempty"`
	Meta  Meta        `json:"meta,omitempty"`
}

// UnmarshalJSON deserializes the relationship object, sniffing the data
// member for to-one versus to-many linkage.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	type in struct {
		Data  *json.RawMessage `json:"data,omitempty"`
		Links Links            `json:"links,omitempty"`
		Meta  Meta             `json:"meta,omitempty"`
	}

	var raw map[string]*json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	node := in{}
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}

	r.Links = node.Links
	r.Meta = node.Meta

	linkage, present := raw["data"]
	switch {
	case !present:
		return nil
	case jsonx.IsNull(linkage):
		r.Data = One{}
	case jsonx.IsArray(linkage):
		many := Many{}
		if err := json.Unmarshal(*linkage, &many); err != nil {
			return err
		}
		r.Data = many
	case jsonx.IsObject(linkage):
		one := One{}
		if err := json.Unmarshal(*linkage, &one); err != nil {
			return err
		}
		r.Data = one
	default:
		return errors.New("restless: relationship data is neither object, array, nor null")
	}

	return nil
}

// HasData reports whether the relationship object carried a data member,
// including an explicit null.
func (r Relationship) HasData() bool {
	return r.Data != nil
}

// PrimaryData is either a single resource (One) or a collection (Many).
// It appears as a document's primary data and as relationship linkage.
type PrimaryData interface {
	// Items returns the contained resources. A null to-one node yields
	// an empty slice.
	Items() []*Resource
	// IsMany reports whether the node is a collection. To-many linkage
	// always serializes as an array, even when empty.
	IsMany() bool
	// First returns the sole resource of a One node or the first element
	// of a Many node, or nil when there is none.
	First() *Resource
}

// One is a to-one data node: a single resource or null.
type One struct {
	Value *Resource `json:"-"`
}

// IsMany returns false.
func (One) IsMany() bool { return false }

// IsNull returns true if the node holds no resource.
func (o One) IsNull() bool { return o.Value == nil }

// First returns the resource value, or nil.
func (o One) First() *Resource { return o.Value }

// Items returns the underlying value in a slice, or nil when null.
func (o One) Items() []*Resource {
	if o.IsNull() {
		return nil
	}
	return []*Resource{o.Value}
}

// MarshalJSON serializes the node, rendering null for an empty value.
func (o One) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

// UnmarshalJSON deserializes the node from JSON.
func (o *One) UnmarshalJSON(data []byte) error {
	o.Value = &Resource{}
	return json.Unmarshal(data, o.Value)
}

// Many is a to-many data node: an ordered collection of resources.
type Many struct {
	Value []*Resource `json:"-"`
}

// IsMany returns true.
func (Many) IsMany() bool { return true }

// First returns the first element, or nil when the collection is empty.
func (m Many) First() *Resource {
	if len(m.Value) == 0 {
		return nil
	}
	return m.Value[0]
}

// Items returns the underlying collection.
func (m Many) Items() []*Resource { return m.Value }

// MarshalJSON serializes the node. A nil collection renders as an empty
// array, never null.
func (m Many) MarshalJSON() ([]byte, error) {
	if m.Value == nil {
		m.Value = []*Resource{}
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON deserializes the node from JSON.
func (m *Many) UnmarshalJSON(data []byte) error {
	m.Value = make([]*Resource, 0)
	return json.Unmarshal(data, &m.Value)
}

// Links contains the links defined on a resource, document, or error.
type Links = map[string]*Link

// Link is a single link: either a bare href or an href with metadata.
type Link struct {
	Href string
	Meta Meta
}

// MarshalJSON renders a bare string when the link has no metadata.
func (l Link) MarshalJSON() ([]byte, error) {
	if l.Meta == nil {
		return json.Marshal(l.Href)
	}
	type out struct {
		Href string `json:"href"`
		Meta Meta   `json:"meta,omitempty"`
	}
	return json.Marshal(out(l))
}

// UnmarshalJSON accepts either a bare string or a link object.
func (l *Link) UnmarshalJSON(data []byte) error {
	raw := json.RawMessage(data)
	if !jsonx.IsObject(&raw) {
		return json.Unmarshal(data, &l.Href)
	}
	type in struct {
		Href string `json:"href"`
		Meta Meta   `json:"meta,omitempty"`
	}
	obj := in{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Href = obj.Href
	l.Meta = obj.Meta
	return nil
}
