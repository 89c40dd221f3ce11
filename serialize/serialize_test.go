package serialize_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/schema"
	"github.com/restlessgo/restless/serialize"
	"github.com/restlessgo/restless/storage"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()

	require.NoError(t, registry.Register(&schema.Schema{
		Type: "people",
		Fields: []schema.Field{
			{Name: "id", Kind: schema.Int},
			{Name: "name", Kind: schema.String},
			{Name: "birthday", Kind: schema.Date},
		},
		Relationships: []schema.Relationship{
			{Name: "articles", Type: "articles", ToMany: true, Remote: "author_id"},
		},
		Computed: map[string]schema.Computed{
			"display_name": func(record map[string]any) any {
				name, _ := record["name"].(string)
				return "~" + name + "~"
			},
		},
	}))
	require.NoError(t, registry.Register(&schema.Schema{
		Type: "articles",
		Fields: []schema.Field{
			{Name: "id", Kind: schema.Int},
			{Name: "title", Kind: schema.String},
			{Name: "author_id", Kind: schema.Int},
		},
		Relationships: []schema.Relationship{
			{Name: "author", Type: "people", Column: "author_id"},
		},
	}))
	require.NoError(t, registry.Validate())
	return registry
}

func newTestRepo(t *testing.T) (*storage.Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewRepository(db, newTestRegistry(t), nil), mock
}

func TestSerialize(t *testing.T) {
	ctx := context.Background()

	t.Run("renders attributes and identity", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		record := storage.Record{"id": int64(7), "title": "go", "author_id": int64(1)}
		resource, err := ser.Serialize(ctx, articles, record, nil)
		require.NoError(t, err)

		assert.Equal(t, "7", resource.ID)
		assert.Equal(t, "articles", resource.Type)
		assert.Equal(t, map[string]any{"title": "go"}, resource.Attributes)
		assert.NotContains(t, resource.Attributes, "id")
		assert.NotContains(t, resource.Attributes, "author_id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("to-one linkage comes from the foreign key without a query", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		record := storage.Record{"id": int64(7), "title": "go", "author_id": int64(1)}
		resource, err := ser.Serialize(ctx, articles, record, nil)
		require.NoError(t, err)

		author := resource.Relationships["author"]
		require.NotNil(t, author)
		require.NotNil(t, author.Data.First())
		assert.Equal(t, "people", author.Data.First().Type)
		assert.Equal(t, "1", author.Data.First().ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null to-one linkage renders as null", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		record := storage.Record{"id": int64(7), "title": "go", "author_id": nil}
		resource, err := ser.Serialize(ctx, articles, record, nil)
		require.NoError(t, err)

		author := resource.Relationships["author"]
		require.NotNil(t, author)
		assert.Nil(t, author.Data.First())
		assert.False(t, author.Data.IsMany())
	})

	t.Run("to-many linkage queries related primary keys", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		mock.ExpectQuery(`SELECT id FROM articles WHERE author_id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7).AddRow(9))

		record := storage.Record{"id": int64(1), "name": "ann", "birthday": nil}
		resource, err := ser.Serialize(ctx, people, record, nil)
		require.NoError(t, err)

		linkage := resource.Relationships["articles"].Data
		require.True(t, linkage.IsMany())
		require.Len(t, linkage.Items(), 2)
		assert.Equal(t, "7", linkage.Items()[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("dates render as ISO 8601 and computed attributes run", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		mock.ExpectQuery(`SELECT id FROM articles`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		birthday := time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC)
		record := storage.Record{"id": int64(1), "name": "ann", "birthday": birthday}
		resource, err := ser.Serialize(ctx, people, record, nil)
		require.NoError(t, err)

		assert.Equal(t, "1990-04-01", resource.Attributes["birthday"])
		assert.Equal(t, "~ann~", resource.Attributes["display_name"])
	})

	t.Run("sparse fieldset restricts attributes and relationships", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		record := storage.Record{"id": int64(1), "name": "ann", "birthday": nil}
		resource, err := ser.Serialize(ctx, people, record, []string{"name"})
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"name": "ann"}, resource.Attributes)
		assert.Empty(t, resource.Relationships)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty fieldset removes every field", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		record := storage.Record{"id": int64(1), "name": "ann", "birthday": nil}
		resource, err := ser.Serialize(ctx, people, record, []string{})
		require.NoError(t, err)

		assert.Empty(t, resource.Attributes)
		assert.Empty(t, resource.Relationships)
		assert.Equal(t, "1", resource.ID)
	})

	t.Run("links render only when enabled", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo, BaseURL: "/api", IncludeLinks: true}
		articles, _ := repo.Registry().Get("articles")

		record := storage.Record{"id": int64(7), "title": "go", "author_id": int64(1)}
		resource, err := ser.Serialize(ctx, articles, record, nil)
		require.NoError(t, err)

		assert.Equal(t, "/api/articles/7", resource.Links["self"].Href)
		assert.Equal(t, "/api/articles/7/relationships/author", resource.Relationships["author"].Links["self"].Href)
		assert.Equal(t, "/api/articles/7/author", resource.Relationships["author"].Links["related"].Href)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("collection serialization aggregates per-record failures", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		ser := &serialize.DefaultSerializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		mock.ExpectQuery(`SELECT id FROM articles`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		records := []storage.Record{
			{"id": int64(1), "name": "ann", "birthday": nil},
			{"id": int64(2), "name": "bob", "birthday": 12345}, // not a temporal value
		}
		_, err := serialize.SerializeMany(ctx, ser, people, records, nil)

		var multi restless.MultiError
		require.True(t, errors.As(err, &multi))
		require.Len(t, multi, 1)
		assert.Equal(t, restless.KindSerializationFailed, multi[0].Kind)
	})
}
