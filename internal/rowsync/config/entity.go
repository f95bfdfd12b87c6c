package config

import (
	"fmt"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
)

// DefaultSyncColumn is the sync status column used when an entity doesn't name one.
const DefaultSyncColumn = "sync_status"

// Column is a replicated column of an entity declared in configuration.
type Column struct {
	Name string `toml:"name,omitempty"`
	// Type selects the null value bound for the column, see schema.ParseColumnType.
	Type string `toml:"type,omitempty"`
}

// Entity declares a replicated table. Properties of configured entities are
// named after their columns.
type Entity struct {
	Name         string   `toml:"name,omitempty"`
	Table        string   `toml:"table,omitempty"`
	Columns      []Column `toml:"column,omitempty"`
	PrimaryKey   []string `toml:"primary_key,omitempty"`
	Generated    []string `toml:"generated,omitempty"`
	MatchKey     []string `toml:"match_key,omitempty"`
	SyncColumn   string   `toml:"sync_column,omitempty"`
	DeleteColumn string   `toml:"delete_column,omitempty"`
	// InsertOnly makes targets only receive rows they don't have yet.
	InsertOnly bool `toml:"insert_only,omitempty"`
}

// Descriptor converts the entity declaration into a schema descriptor. The
// sync column is dropped from the columns if it was listed.
func (e Entity) Descriptor() (schema.Descriptor, error) {
	d := schema.Descriptor{
		Table:          schema.ParseTable(e.Table),
		PrimaryKey:     e.PrimaryKey,
		Generated:      e.Generated,
		MatchKey:       e.MatchKey,
		SyncColumn:     e.SyncColumn,
		DeleteProperty: e.DeleteColumn,
	}

	for _, c := range e.Columns {
		ct, err := schema.ParseColumnType(c.Type)
		if err != nil {
			return schema.Descriptor{}, fmt.Errorf("column %q: %w", c.Name, err)
		}
		d.Columns = append(d.Columns, schema.Column{Property: c.Name, Name: c.Name, Type: ct})
	}

	return d.WithoutSyncColumn()
}

// StaticResolver returns a resolver for every configured entity.
func (c *Config) StaticResolver() (schema.StaticResolver, error) {
	resolver := make(schema.StaticResolver, len(c.Entities))
	for _, e := range c.Entities {
		d, err := e.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		resolver[e.Name] = d
	}
	return resolver, nil
}
