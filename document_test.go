package restless

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMarshal(t *testing.T) {
	marshal := func(t *testing.T, doc *Document) string {
		t.Helper()
		data, err := json.Marshal(doc)
		require.NoError(t, err)
		return string(data)
	}

	t.Run("single resource renders as an object", func(t *testing.T) {
		doc := NewSingleDocument(&Resource{
			Type:       "people",
			ID:         "1",
			Attributes: map[string]any{"name": "ann"},
		})
		got := marshal(t, doc)
		assert.JSONEq(t, `{"data":{"type":"people","id":"1","attributes":{"name":"ann"}}}`, got)
	})

	t.Run("nil single resource renders as null", func(t *testing.T) {
		got := marshal(t, NewSingleDocument(nil))
		assert.JSONEq(t, `{"data":null}`, got)
	})

	t.Run("empty collections render as an array, never null", func(t *testing.T) {
		got := marshal(t, NewMultiDocument())
		assert.JSONEq(t, `{"data":[]}`, got)
	})

	t.Run("error documents omit the data member", func(t *testing.T) {
		got := marshal(t, ErrorDocument(NewNotFound("gone")))
		assert.NotContains(t, got, `"data"`)
		assert.Contains(t, got, `"errors"`)
	})

	t.Run("version is reported when set", func(t *testing.T) {
		doc := NewMultiDocument()
		doc.JSONAPI = JSONAPI{Version: Version}
		got := marshal(t, doc)
		assert.JSONEq(t, `{"jsonapi":{"version":"1.0"},"data":[]}`, got)
	})

	t.Run("relationship linkage keeps its shape", func(t *testing.T) {
		doc := NewSingleDocument(&Resource{
			Type: "articles",
			ID:   "7",
			Relationships: map[string]*Relationship{
				"author": {Data: One{Value: &Resource{Type: "people", ID: "1"}}},
				"tags":   {Data: Many{}},
			},
		})
		got := marshal(t, doc)
		assert.Contains(t, got, `"author":{"data":{"id":"1","type":"people"}}`)
		assert.Contains(t, got, `"tags":{"data":[]}`)
	})
}

func TestDocumentUnmarshal(t *testing.T) {
	decode := func(t *testing.T, raw string) *Document {
		t.Helper()
		doc := &Document{}
		require.NoError(t, Decode(strings.NewReader(raw), doc))
		return doc
	}

	t.Run("object data becomes a to-one node", func(t *testing.T) {
		doc := decode(t, `{"data":{"type":"people","id":"1"}}`)
		require.True(t, doc.HasData())
		assert.False(t, doc.Data.IsMany())
		assert.Equal(t, "1", doc.Data.First().ID)
	})

	t.Run("array data becomes a to-many node", func(t *testing.T) {
		doc := decode(t, `{"data":[{"type":"people","id":"1"},{"type":"people","id":"2"}]}`)
		require.True(t, doc.HasData())
		assert.True(t, doc.Data.IsMany())
		assert.Len(t, doc.Data.Items(), 2)
	})

	t.Run("explicit null is distinguishable from absence", func(t *testing.T) {
		withNull := decode(t, `{"data":null}`)
		require.True(t, withNull.HasData())
		assert.Nil(t, withNull.Data.First())

		without := decode(t, `{"meta":{"total":0}}`)
		assert.False(t, without.HasData())
	})

	t.Run("scalar data is rejected", func(t *testing.T) {
		doc := &Document{}
		err := Decode(strings.NewReader(`{"data":42}`), doc)
		require.Error(t, err)
	})

	t.Run("relationship null linkage survives a round trip", func(t *testing.T) {
		doc := decode(t, `{"data":{"type":"articles","id":"7","relationships":{"author":{"data":null}}}}`)
		rel := doc.Data.First().Relationships["author"]
		require.NotNil(t, rel)
		require.True(t, rel.HasData())
		assert.Nil(t, rel.Data.First())
	})
}

func TestLink(t *testing.T) {
	t.Run("bare links render as strings", func(t *testing.T) {
		data, err := json.Marshal(&Link{Href: "/api/people"})
		require.NoError(t, err)
		assert.Equal(t, `"/api/people"`, string(data))
	})

	t.Run("links with metadata render as objects", func(t *testing.T) {
		data, err := json.Marshal(&Link{Href: "/api/people", Meta: Meta{"count": 2}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"href":"/api/people","meta":{"count":2}}`, string(data))
	})

	t.Run("both shapes parse", func(t *testing.T) {
		bare := &Link{}
		require.NoError(t, json.Unmarshal([]byte(`"/api/people"`), bare))
		assert.Equal(t, "/api/people", bare.Href)

		object := &Link{}
		require.NoError(t, json.Unmarshal([]byte(`{"href":"/x","meta":{"a":1}}`), object))
		assert.Equal(t, "/x", object.Href)
		assert.EqualValues(t, 1, object.Meta["a"])
	})
}

func TestResourceIdentity(t *testing.T) {
	resource := Resource{
		Type:       "people",
		ID:         "1",
		Attributes: map[string]any{"name": "ann"},
	}

	identifier := resource.Identifier()
	assert.Equal(t, "people", identifier.Type)
	assert.Equal(t, "1", identifier.ID)
	assert.Nil(t, identifier.Attributes)

	assert.Equal(t, "people:1", resource.Key())
}
