// Package schema describes how an entity type maps onto a relational table.
// A Descriptor is resolved once per entity type by a Resolver and treated as
// immutable configuration afterwards.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoTable is returned when a descriptor has no table name.
	ErrNoTable = errors.New("table name is not set")
	// ErrNoColumns is returned when a descriptor has no replicated columns.
	ErrNoColumns = errors.New("no columns mapped")
	// ErrNoKey is returned when a descriptor has neither a primary key nor a match key.
	ErrNoKey = errors.New("no key fields configured")
	// ErrKeyOnly is returned when every column is a key column, leaving nothing to upsert.
	ErrKeyOnly = errors.New("can't upsert entity that has only key columns")
	// ErrNoSyncColumn is returned when the sync status column is not configured.
	ErrNoSyncColumn = errors.New("sync status column is not set")
	// ErrAmbiguousSyncColumn is returned when more than one column maps to the sync status column.
	ErrAmbiguousSyncColumn = errors.New("sync status column must be mapped by one and only one property")
	// ErrUnknownProperty is returned when a key, generated, match or delete property is not a column.
	ErrUnknownProperty = errors.New("property is not mapped to a column")
	// ErrDuplicateProperty is returned when a property is mapped twice.
	ErrDuplicateProperty = errors.New("property is mapped more than once")
	// ErrGeneratedNotKey is returned when a store-generated field is not part of the primary key.
	ErrGeneratedNotKey = errors.New("store-generated field is not a primary key field")
)

// ColumnType classifies a column for the purposes of binding typed nulls.
type ColumnType int

const (
	// TypeGeneric is any column whose null value is the plain SQL NULL.
	TypeGeneric ColumnType = iota
	// TypeBinary is a binary column. Some stores need a dedicated null marker for it.
	TypeBinary
)

// ParseColumnType maps a configuration value onto a ColumnType.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(s) {
	case "", "generic", "text", "int", "integer", "bigint", "bool", "boolean", "timestamp", "numeric":
		return TypeGeneric, nil
	case "binary", "bytes", "bytea", "blob", "varbinary":
		return TypeBinary, nil
	default:
		return TypeGeneric, fmt.Errorf("unknown column type %q", s)
	}
}

func (ct ColumnType) String() string {
	if ct == TypeBinary {
		return "binary"
	}
	return "generic"
}

// Table identifies a table, optionally qualified by a schema.
type Table struct {
	Schema string
	Name   string
}

func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ParseTable splits a possibly schema-qualified table name.
func ParseTable(name string) Table {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return Table{Schema: name[:i], Name: name[i+1:]}
	}
	return Table{Name: name}
}

// Column maps an entity property onto a table column.
type Column struct {
	// Property is the name the entity's accessor table knows the field by.
	Property string
	// Name is the unquoted column name in the store.
	Name string
	// Type is used to select the null value bound for the column.
	Type ColumnType
}

// Descriptor is the schema information required to replicate an entity type.
type Descriptor struct {
	Table Table
	// Columns are the replicated columns in statement order. The sync status
	// column is never part of it.
	Columns []Column
	// PrimaryKey lists the properties of the primary key.
	PrimaryKey []string
	// Generated lists primary key properties whose values are assigned by the
	// store. They are left out of inserts.
	Generated []string
	// MatchKey overrides PrimaryKey as the set of properties rows are matched on.
	MatchKey []string
	// SyncColumn is the column holding the sync status bitmask in the source.
	SyncColumn string
	// DeleteProperty optionally names a boolean property flagging deleted rows.
	DeleteProperty string
}

// MatchFields returns the properties rows are matched on in the targets.
func (d Descriptor) MatchFields() []string {
	if len(d.MatchKey) > 0 {
		return d.MatchKey
	}
	return d.PrimaryKey
}

// PropertyCount is the number of replicated properties.
func (d Descriptor) PropertyCount() int { return len(d.Columns) }

// Column looks up the column of a property and its position.
func (d Descriptor) Column(property string) (Column, int, bool) {
	for i, c := range d.Columns {
		if c.Property == property {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

// IsKey reports whether the property belongs to the primary key or the match key.
func (d Descriptor) IsKey(property string) bool {
	return contains(d.PrimaryKey, property) || contains(d.MatchKey, property)
}

// IsGenerated reports whether the property is assigned by the store.
func (d Descriptor) IsGenerated(property string) bool {
	return contains(d.Generated, property)
}

// Clone returns a deep copy so callers can't mutate shared configuration.
func (d Descriptor) Clone() Descriptor {
	d.Columns = append([]Column(nil), d.Columns...)
	d.PrimaryKey = append([]string(nil), d.PrimaryKey...)
	d.Generated = append([]string(nil), d.Generated...)
	d.MatchKey = append([]string(nil), d.MatchKey...)
	return d
}

// WithoutSyncColumn returns a copy of the descriptor with the sync status
// column removed from the replicated columns. The sync status is local to the
// source and must never be written to a target.
func (d Descriptor) WithoutSyncColumn() (Descriptor, error) {
	if d.SyncColumn == "" {
		return Descriptor{}, fmt.Errorf("%s: %w", d.Table, ErrNoSyncColumn)
	}

	out := d.Clone()
	out.Columns = out.Columns[:0]
	found := 0
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, d.SyncColumn) {
			found++
			continue
		}
		out.Columns = append(out.Columns, c)
	}

	if found > 1 {
		return Descriptor{}, fmt.Errorf("%s: column %q: %w", d.Table, d.SyncColumn, ErrAmbiguousSyncColumn)
	}

	return out, nil
}

// Validate checks the descriptor is usable for replication.
func (d Descriptor) Validate() error {
	if d.Table.Name == "" {
		return ErrNoTable
	}

	wrap := func(err error, format string, args ...interface{}) error {
		if format == "" {
			return fmt.Errorf("%s: %w", d.Table, err)
		}
		return fmt.Errorf("%s: %s: %w", d.Table, fmt.Sprintf(format, args...), err)
	}

	if len(d.Columns) == 0 {
		return wrap(ErrNoColumns, "")
	}

	if d.SyncColumn == "" {
		return wrap(ErrNoSyncColumn, "")
	}

	seen := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		if c.Property == "" || c.Name == "" {
			return wrap(ErrUnknownProperty, "column %q/%q", c.Property, c.Name)
		}
		if _, ok := seen[c.Property]; ok {
			return wrap(ErrDuplicateProperty, "property %q", c.Property)
		}
		seen[c.Property] = struct{}{}
		if strings.EqualFold(c.Name, d.SyncColumn) {
			return wrap(ErrAmbiguousSyncColumn, "sync column %q is mapped as a replicated column", c.Name)
		}
	}

	if len(d.MatchFields()) == 0 {
		return wrap(ErrNoKey, "")
	}

	for _, group := range []struct {
		name       string
		properties []string
	}{
		{"primary key", d.PrimaryKey},
		{"generated", d.Generated},
		{"match key", d.MatchKey},
	} {
		for _, p := range group.properties {
			if _, ok := seen[p]; !ok {
				return wrap(ErrUnknownProperty, "%s property %q", group.name, p)
			}
		}
	}

	for _, p := range d.Generated {
		if !contains(d.PrimaryKey, p) {
			return wrap(ErrGeneratedNotKey, "property %q", p)
		}
	}

	if d.DeleteProperty != "" {
		if _, ok := seen[d.DeleteProperty]; !ok {
			return wrap(ErrUnknownProperty, "delete property %q", d.DeleteProperty)
		}
	}

	keyOnly := true
	for _, c := range d.Columns {
		if !d.IsKey(c.Property) {
			keyOnly = false
			break
		}
	}
	if keyOnly {
		return wrap(ErrKeyOnly, "")
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
