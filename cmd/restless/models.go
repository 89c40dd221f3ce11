package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/restlessgo/restless/schema"
)

// modelConfig is the configuration-file shape of one model declaration.
type modelConfig struct {
	Type           string               `mapstructure:"type"`
	Table          string               `mapstructure:"table"`
	PrimaryKey     string               `mapstructure:"primary_key"`
	AllowClientIDs bool                 `mapstructure:"allow_client_ids"`
	Only           []string             `mapstructure:"only"`
	Exclude        []string             `mapstructure:"exclude"`
	Fields         []fieldConfig        `mapstructure:"fields"`
	Relationships  []relationshipConfig `mapstructure:"relationships"`
}

type fieldConfig struct {
	Name   string `mapstructure:"name"`
	Kind   string `mapstructure:"kind"`
	Column string `mapstructure:"column"`
	Unique bool   `mapstructure:"unique"`
}

type relationshipConfig struct {
	Name          string `mapstructure:"name"`
	Type          string `mapstructure:"type"`
	ToMany        bool   `mapstructure:"to_many"`
	Column        string `mapstructure:"column"`
	Remote        string `mapstructure:"remote"`
	Through       string `mapstructure:"through"`
	ThroughLocal  string `mapstructure:"through_local"`
	ThroughRemote string `mapstructure:"through_remote"`
}

var fieldKinds = map[string]schema.FieldKind{
	"string":   schema.String,
	"int":      schema.Int,
	"float":    schema.Float,
	"bool":     schema.Bool,
	"date":     schema.Date,
	"time":     schema.Time,
	"datetime": schema.DateTime,
	"interval": schema.Interval,
	"json":     schema.JSON,
}

// registryFromViper builds and validates the schema registry declared
// under the "models" configuration key.
func registryFromViper(v *viper.Viper) (*schema.Registry, error) {
	var models []modelConfig
	if err := v.UnmarshalKey("models", &models); err != nil {
		return nil, fmt.Errorf("parsing models: %w", err)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models declared in configuration")
	}

	registry := schema.NewRegistry()
	for _, model := range models {
		s, err := model.toSchema()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(s); err != nil {
			return nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

func (m modelConfig) toSchema() (*schema.Schema, error) {
	s := &schema.Schema{
		Type:           m.Type,
		Table:          m.Table,
		PrimaryKey:     m.PrimaryKey,
		AllowClientIDs: m.AllowClientIDs,
		Only:           m.Only,
		Exclude:        m.Exclude,
	}

	for _, field := range m.Fields {
		if field.Kind == "" {
			field.Kind = "string"
		}
		kind, ok := fieldKinds[field.Kind]
		if !ok {
			return nil, fmt.Errorf("model %q: field %q has unknown kind %q", m.Type, field.Name, field.Kind)
		}
		s.Fields = append(s.Fields, schema.Field{
			Name:   field.Name,
			Kind:   kind,
			Column: field.Column,
			Unique: field.Unique,
		})
	}

	for _, rel := range m.Relationships {
		s.Relationships = append(s.Relationships, schema.Relationship{
			Name:          rel.Name,
			Type:          rel.Type,
			ToMany:        rel.ToMany,
			Column:        rel.Column,
			Remote:        rel.Remote,
			Through:       rel.Through,
			ThroughLocal:  rel.ThroughLocal,
			ThroughRemote: rel.ThroughRemote,
		})
	}

	return s, nil
}
