package schema

import (
	"context"
	"fmt"
	"sync"

	gormschema "gorm.io/gorm/schema"
)

type gormModel struct {
	model      interface{}
	syncColumn string
}

// GormResolver derives descriptors from gorm-tagged model structs. Only the
// model metadata is used, no database connection is involved.
//
// gorm marks an integer primary key such as the default ID field as
// auto-incremented, which makes it a store-generated key. Postgres, SQLite
// and MySQL targets can't match rows on a generated key, so entities using
// such a model on those dialects must be registered with
// rowsync.WithMatchKey naming a natural key of the model.
type GormResolver struct {
	namer  gormschema.Namer
	cache  *sync.Map
	mtx    sync.RWMutex
	models map[string]gormModel
}

// NewGormResolver creates a resolver using the given naming strategy. A nil
// namer falls back to gorm's default naming strategy.
func NewGormResolver(namer gormschema.Namer) *GormResolver {
	if namer == nil {
		namer = gormschema.NamingStrategy{}
	}
	return &GormResolver{
		namer:  namer,
		cache:  &sync.Map{},
		models: map[string]gormModel{},
	}
}

// Add registers a model for the entity. syncColumn is the column holding the
// sync status bitmask; it is removed from the replicated columns.
func (gr *GormResolver) Add(entity string, model interface{}, syncColumn string) {
	gr.mtx.Lock()
	defer gr.mtx.Unlock()
	gr.models[entity] = gormModel{model: model, syncColumn: syncColumn}
}

// Resolve parses the registered model.
func (gr *GormResolver) Resolve(_ context.Context, entity string) (Descriptor, error) {
	gr.mtx.RLock()
	m, ok := gr.models[entity]
	gr.mtx.RUnlock()
	if !ok {
		return Descriptor{}, fmt.Errorf("entity %q: %w", entity, ErrUnknownEntity)
	}

	parsed, err := gormschema.Parse(m.model, gr.cache, gr.namer)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse model of %q: %w", entity, err)
	}

	d := Descriptor{
		Table:      ParseTable(parsed.Table),
		SyncColumn: m.syncColumn,
	}

	for _, field := range parsed.Fields {
		if field.DBName == "" {
			continue
		}

		columnType := TypeGeneric
		if field.DataType == gormschema.Bytes {
			columnType = TypeBinary
		}

		d.Columns = append(d.Columns, Column{Property: field.Name, Name: field.DBName, Type: columnType})
	}

	for _, field := range parsed.PrimaryFields {
		d.PrimaryKey = append(d.PrimaryKey, field.Name)
		if field.AutoIncrement {
			d.Generated = append(d.Generated, field.Name)
		}
	}

	return d.WithoutSyncColumn()
}
