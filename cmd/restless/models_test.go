package main

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restlessgo/restless/schema"
)

func loadConfig(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yaml)))
	return v
}

func TestRegistryFromViper(t *testing.T) {
	t.Run("declares models with fields and relationships", func(t *testing.T) {
		v := loadConfig(t, `
models:
  - type: people
    fields:
      - name: id
        kind: int
      - name: name
      - name: birthday
        kind: date
    relationships:
      - name: articles
        type: articles
        to_many: true
        remote: author_id
  - type: articles
    table: posts
    fields:
      - name: id
        kind: int
      - name: title
        unique: true
      - name: author_id
        kind: int
    relationships:
      - name: author
        type: people
        column: author_id
`)

		registry, err := registryFromViper(v)
		require.NoError(t, err)

		people, ok := registry.Get("people")
		require.True(t, ok)
		birthday, ok := people.Field("birthday")
		require.True(t, ok)
		assert.Equal(t, schema.Date, birthday.Kind)

		name, ok := people.Field("name")
		require.True(t, ok)
		assert.Equal(t, schema.String, name.Kind, "kind defaults to string")

		articles, ok := registry.Get("articles")
		require.True(t, ok)
		assert.Equal(t, "posts", articles.TableName())

		author, ok := articles.Relationship("author")
		require.True(t, ok)
		assert.False(t, author.IsToMany())
	})

	t.Run("unknown field kinds are rejected", func(t *testing.T) {
		v := loadConfig(t, `
models:
  - type: people
    fields:
      - name: id
        kind: integer
`)
		_, err := registryFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown kind "integer"`)
	})

	t.Run("relationships must resolve to declared models", func(t *testing.T) {
		v := loadConfig(t, `
models:
  - type: people
    fields:
      - name: id
        kind: int
    relationships:
      - name: pets
        type: pets
        to_many: true
        remote: owner_id
`)
		_, err := registryFromViper(v)
		require.Error(t, err)
	})

	t.Run("empty configurations are rejected", func(t *testing.T) {
		_, err := registryFromViper(viper.New())
		require.Error(t, err)
	})
}

func TestOpenDatabase(t *testing.T) {
	t.Run("requires a connection URL", func(t *testing.T) {
		_, err := openDatabase("postgres", "")
		require.Error(t, err)
	})

	t.Run("rejects unknown drivers", func(t *testing.T) {
		_, err := openDatabase("oracle", "oracle://localhost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})

	t.Run("sqlite opens in memory", func(t *testing.T) {
		db, err := openDatabase("sqlite3", ":memory:")
		require.NoError(t, err)
		defer db.Close()
		require.NoError(t, db.Ping())
	})
}
