package rowsync

import (
	"fmt"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
)

// Accessor gives typed access to one property of an entity.
type Accessor[T any] struct {
	// Get returns the value bound as a statement parameter.
	Get func(*T) interface{}
	// Ref returns the scan destination used when loading rows from the source.
	Ref func(*T) interface{}
}

// Mapping is the accessor table of an entity type. It is built once when the
// entity type is registered and replaces any field lookup by name at runtime.
type Mapping[T any] struct {
	// Fields holds an accessor for every property of the schema descriptor.
	Fields map[string]Accessor[T]
	// SyncStatus addresses the sync status bitmask of a row.
	SyncStatus func(*T) *int64
	// New allocates a row to load into. Defaults to new(T).
	New func() *T
}

func (m Mapping[T]) validate(desc schema.Descriptor) error {
	if m.SyncStatus == nil {
		return fmt.Errorf("sync status accessor is not set")
	}

	for _, c := range desc.Columns {
		accessor, ok := m.Fields[c.Property]
		if !ok {
			return fmt.Errorf("property %q has no accessor", c.Property)
		}
		if accessor.Get == nil || accessor.Ref == nil {
			return fmt.Errorf("accessor of property %q is incomplete", c.Property)
		}
	}

	return nil
}

// Record is a row of an entity type that is only known from configuration.
// Values hold the column values in descriptor order.
type Record struct {
	Values     []interface{}
	SyncStatus int64
}

// RecordMapping builds the accessor table of Record rows for the descriptor.
func RecordMapping(desc schema.Descriptor) Mapping[Record] {
	n := len(desc.Columns)
	fields := make(map[string]Accessor[Record], n)
	for i, c := range desc.Columns {
		i := i
		fields[c.Property] = Accessor[Record]{
			Get: func(r *Record) interface{} { return r.Values[i] },
			Ref: func(r *Record) interface{} { return &r.Values[i] },
		}
	}

	return Mapping[Record]{
		Fields:     fields,
		SyncStatus: func(r *Record) *int64 { return &r.SyncStatus },
		New:        func() *Record { return &Record{Values: make([]interface{}, n)} },
	}
}
