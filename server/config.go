// Package server mounts the registered schemas as JSON:API resource
// endpoints: collection and resource fetches, writes, related-resource
// and relationship URLs, with content negotiation, pagination links,
// and uniform error documents.
package server

import (
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/restlessgo/restless/serialize"
)

// Operation identifies a request kind for pre- and postprocessor
// dispatch.
type Operation int

const (
	OpFetchCollection Operation = iota
	OpFetchOne
	OpFetchRelated
	OpFetchRelationship
	OpCreate
	OpUpdate
	OpDelete
	OpUpdateRelationship
)

// Config carries the orchestrator's tunable behavior. Build one through
// Options; the zero value is usable but bare.
type Config struct {
	baseURL                string
	defaultPageSize        int
	maxPageSize            int
	includeLinks           bool
	allowToManyReplacement bool
	allowDeleteFromToMany  bool
	logger                 *zap.Logger
	serializers            map[string]serialize.Serializer
	preprocessors          map[Operation][]Preprocessor
	postprocessors         map[Operation][]Postprocessor
}

// Options mutates the configuration during API construction.
type Options func(*Config)

/// DefaultConfig mirrors the upstream defaults: ten records per page,
// one hundred at most, links on, destructive relationship writes off.
func DefaultConfig() Config {
	return Config{
		defaultPageSize: 10,
		maxPageSize:     100,
		includeLinks:    true,
		logger:          zap.NewNop(),
		serializers:     make(map[string]serialize.Serializer),
		preprocessors:   make(map[Operation][]Preprocessor),
		postprocessors:  make(map[Operation][]Postprocessor),
	}
}

// Apply folds the options into the configuration.
func (c *Config) Apply(options ...Options) {
	for _, apply := range options {
		apply(c)
	}
}

// WithBaseURL sets the URL prefix used in self, related, and pagination
// links.
func WithBaseURL(baseURL string) Options {
	return func(c *Config) { c.baseURL = baseURL }
}

// WithDefaultPageSize sets the page size applied when the client sends
// none. Zero disables pagination by default.
func WithDefaultPageSize(size int) Options {
	return func(c *Config) { c.defaultPageSize = size }
}

// WithMaxPageSize bounds client-requested page sizes.
func WithMaxPageSize(size int) Options {
	return func(c *Config) { c.maxPageSize = size }
}

// WithoutLinks disables self, related, and pagination link generation.
func WithoutLinks() Options {
	return func(c *Config) { c.includeLinks = false }
}

// WithToManyReplacement permits clients to replace the full membership
// of to-many relationships.
func WithToManyReplacement() Options {
	return func(c *Config) { c.allowToManyReplacement = true }
}

// WithDeleteFromToMany permits clients to remove members from to-many
// relationships.
func WithDeleteFromToMany() Options {
	return func(c *Config) { c.allowDeleteFromToMany = true }
}

// WithLogger routes request logging through the given logger.
func WithLogger(logger *zap.Logger) Options {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSerializer overrides the serializer for one resource type.
func WithSerializer(resourceType string, ser serialize.Serializer) Options {
	return func(c *Config) { c.serializers[resourceType] = ser }
}

// WithPreprocessor registers a hook to run before the given operation.
// Hooks run in registration order; a returned error aborts the request.
func WithPreprocessor(op Operation, hook Preprocessor) Options {
	return func(c *Config) { c.preprocessors[op] = append(c.preprocessors[op], hook) }
}

// WithPostprocessor registers a hook to run after the given operation,
// with the outgoing document available for modification.
func WithPostprocessor(op Operation, hook Postprocessor) Options {
	return func(c *Config) { c.postprocessors[op] = append(c.postprocessors[op], hook) }
}

// FromViper reads the server's tunables from configuration keys:
// api.base_url, api.page_size, api.max_page_size, api.include_links,
// api.allow_to_many_replacement, api.allow_delete_from_to_many.
func FromViper(v *viper.Viper) []Options {
	v.SetDefault("api.page_size", 10)
	v.SetDefault("api.max_page_size", 100)
	v.SetDefault("api.include_links", true)

	options := []Options{
		WithBaseURL(v.GetString("api.base_url")),
		WithDefaultPageSize(v.GetInt("api.page_size")),
		WithMaxPageSize(v.GetInt("api.max_page_size")),
	}
	if !v.GetBool("api.include_links") {
		options = append(options, WithoutLinks())
	}
	if v.GetBool("api.allow_to_many_replacement") {
		options = append(options, WithToManyReplacement())
	}
	if v.GetBool("api.allow_delete_from_to_many") {
		options = append(options, WithDeleteFromToMany())
	}
	return options
}
