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
	"github.com/restlessgo/restless/serialize"
)

func assertKind(t *testing.T, err error, kind restless.ErrorKind) {
	t.Helper()
	var domain *restless.Error
	require.True(t, errors.As(err, &domain), "expected a domain error, got %v", err)
	assert.Equal(t, kind, domain.Kind)
}

func expectAuthorLookup(mock sqlmock.Sqlmock, id string) {
	mock.ExpectQuery(`SELECT people\.\* FROM people WHERE people\.id = \$1 LIMIT \$2`).
		WithArgs(id, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "birthday"}).AddRow(1, "ann", nil))
}

func TestDeserialize(t *testing.T) {
	ctx := context.Background()

	t.Run("missing document data", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		_, err := des.DeserializeDocument(ctx, articles, &restless.Document{}, true)
		assertKind(t, err, restless.KindMissingData)
	})

	t.Run("missing type", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		_, err := des.Deserialize(ctx, articles, &restless.Resource{}, true)
		assertKind(t, err, restless.KindMissingType)
	})

	t.Run("client-generated ID rejected by default", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		_, err := des.Deserialize(ctx, articles, &restless.Resource{Type: "articles", ID: "9"}, true)
		assertKind(t, err, restless.KindClientGeneratedID)
	})

	t.Run("client-generated ID allowed on update", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		payload, err := des.Deserialize(ctx, articles, &restless.Resource{Type: "articles", ID: "9"}, false)
		require.NoError(t, err)
		assert.Equal(t, "9", payload.ID)
	})

	t.Run("conflicting type", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		_, err := des.Deserialize(ctx, articles, &restless.Resource{Type: "people"}, true)
		assertKind(t, err, restless.KindConflictingType)
	})

	t.Run("unknown attribute", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type:       "articles",
			Attributes: map[string]any{"subtitle": "x"},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindUnknownAttribute)
	})

	t.Run("foreign key is not a settable attribute", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type:       "articles",
			Attributes: map[string]any{"author_id": 1},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindUnknownAttribute)
	})

	t.Run("unknown relationship", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type:          "articles",
			Relationships: map[string]*restless.Relationship{"reviewer": {}},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindUnknownRelationship)
	})

	t.Run("unknown attribute wins over malformed linkage", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type:          "articles",
			Attributes:    map[string]any{"subtitle": 1},
			Relationships: map[string]*restless.Relationship{"author": {}},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindUnknownAttribute)
	})

	t.Run("relationship object without data", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type:          "articles",
			Relationships: map[string]*restless.Relationship{"author": {}},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindMissingData)
	})

	t.Run("linkage without id", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type: "articles",
			Relationships: map[string]*restless.Relationship{
				"author": {Data: restless.One{Value: &restless.Resource{Type: "people"}}},
			},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindMissingID)
	})

	t.Run("linkage with conflicting type", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type: "articles",
			Relationships: map[string]*restless.Relationship{
				"author": {Data: restless.One{Value: &restless.Resource{Type: "tags", ID: "1"}}},
			},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindConflictingType)
	})

	t.Run("to-one linkage resolves to a foreign key", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		expectAuthorLookup(mock, "1")

		resource := &restless.Resource{
			Type:       "articles",
			Attributes: map[string]any{"title": "go"},
			Relationships: map[string]*restless.Relationship{
				"author": {Data: restless.One{Value: &restless.Resource{Type: "people", ID: "1"}}},
			},
		}
		payload, err := des.Deserialize(ctx, articles, resource, true)
		require.NoError(t, err)
		assert.Equal(t, "1", payload.Values["author_id"])
		assert.Equal(t, "go", payload.Values["title"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("to-one linkage to a missing resource is not found", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		mock.ExpectQuery(`SELECT people\.\* FROM people WHERE people\.id = \$1 LIMIT \$2`).
			WithArgs("42", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "birthday"}))

		resource := &restless.Resource{
			Type: "articles",
			Relationships: map[string]*restless.Relationship{
				"author": {Data: restless.One{Value: &restless.Resource{Type: "people", ID: "42"}}},
			},
		}
		_, err := des.Deserialize(ctx, articles, resource, true)
		assertKind(t, err, restless.KindNotFound)
	})

	t.Run("explicit null clears a to-one link", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		articles, _ := repo.Registry().Get("articles")

		resource := &restless.Resource{
			Type: "articles",
			Relationships: map[string]*restless.Relationship{
				"author": {Data: restless.One{}},
			},
		}
		payload, err := des.Deserialize(ctx, articles, resource, true)
		require.NoError(t, err)
		value, present := payload.Values["author_id"]
		assert.True(t, present)
		assert.Nil(t, value)
	})

	t.Run("empty date string becomes null", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		resource := &restless.Resource{
			Type:       "people",
			Attributes: map[string]any{"birthday": ""},
		}
		payload, err := des.Deserialize(ctx, people, resource, true)
		require.NoError(t, err)
		value, present := payload.Values["birthday"]
		assert.True(t, present)
		assert.Nil(t, value)
	})

	t.Run("date strings parse to time values", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		resource := &restless.Resource{
			Type:       "people",
			Attributes: map[string]any{"birthday": "1990-04-01"},
		}
		payload, err := des.Deserialize(ctx, people, resource, true)
		require.NoError(t, err)
		assert.Equal(t, time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC), payload.Values["birthday"])
	})

	t.Run("unparseable date values are invalid, not unknown", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		resource := &restless.Resource{
			Type:       "people",
			Attributes: map[string]any{"birthday": "not-a-date"},
		}
		_, err := des.Deserialize(ctx, people, resource, true)
		assertKind(t, err, restless.KindInvalidAttribute)

		var domain *restless.Error
		require.True(t, errors.As(err, &domain))
		assert.Contains(t, domain.Detail, `"birthday"`)
	})

	t.Run("current time markers stamp the server clock", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		des := &serialize.DefaultDeserializer{Repo: repo}
		people, _ := repo.Registry().Get("people")

		resource := &restless.Resource{
			Type:       "people",
			Attributes: map[string]any{"birthday": "CURRENT_DATE"},
		}
		payload, err := des.Deserialize(ctx, people, resource, true)
		require.NoError(t, err)

		stamped, ok := payload.Values["birthday"].(time.Time)
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().UTC(), stamped, 24*time.Hour)
	})
}
