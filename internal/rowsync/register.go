package rowsync

import (
	"context"
	"fmt"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/hashcode"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

type entityOptions struct {
	syncColumn     string
	deleteProperty string
	matchKey       []string
	insertOnly     bool
}

// EntityOption overrides what the resolver reports for an entity type.
type EntityOption func(*entityOptions)

// WithSyncColumn sets the name of the sync status column.
func WithSyncColumn(name string) EntityOption {
	return func(o *entityOptions) { o.syncColumn = name }
}

// WithDeleteProperty sets the boolean property marking rows to be deleted
// from the targets.
func WithDeleteProperty(property string) EntityOption {
	return func(o *entityOptions) { o.deleteProperty = property }
}

// WithMatchKey sets the properties rows are matched on in the targets.
func WithMatchKey(properties ...string) EntityOption {
	return func(o *entityOptions) { o.matchKey = properties }
}

// WithInsertIfAbsent makes the targets only receive rows they don't have yet.
// Existing rows are never updated.
func WithInsertIfAbsent() EntityOption {
	return func(o *entityOptions) { o.insertOnly = true }
}

// Register adds an entity type to the cycle. The schema descriptor is
// resolved once and validated against the dialects of the source and every
// target.
func Register[T any](ctx context.Context, c *Cycle, entity string, mapping Mapping[T], opts ...EntityOption) error {
	o := newEntityOptions(opts)

	desc, err := c.resolve(ctx, entity, o)
	if err != nil {
		return err
	}

	return addUnit(c, entity, desc, mapping, o)
}

// RegisterRecords adds an entity type whose rows are only known by their
// descriptor. Rows are loaded as Record values.
func RegisterRecords(ctx context.Context, c *Cycle, entity string, opts ...EntityOption) error {
	o := newEntityOptions(opts)

	desc, err := c.resolve(ctx, entity, o)
	if err != nil {
		return err
	}

	return addUnit(c, entity, desc, RecordMapping(desc), o)
}

func newEntityOptions(opts []EntityOption) entityOptions {
	var o entityOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// resolve returns the descriptor of the entity with the overrides applied and
// the sync column removed from the replicated columns.
func (c *Cycle) resolve(ctx context.Context, entity string, o entityOptions) (schema.Descriptor, error) {
	if c.resolver == nil {
		return schema.Descriptor{}, ConfigError.New("register %q: no schema resolver", entity)
	}

	desc, err := c.resolver.Resolve(ctx, entity)
	if err != nil {
		return schema.Descriptor{}, ConfigError.Wrap(fmt.Errorf("resolve %q: %w", entity, err))
	}

	if o.syncColumn != "" {
		desc.SyncColumn = o.syncColumn
	}
	if o.deleteProperty != "" {
		desc.DeleteProperty = o.deleteProperty
	}
	if o.matchKey != nil {
		desc.MatchKey = o.matchKey
	}

	desc, err = desc.WithoutSyncColumn()
	if err != nil {
		return schema.Descriptor{}, ConfigError.Wrap(fmt.Errorf("register %q: %w", entity, err))
	}
	return desc, nil
}

func addUnit[T any](c *Cycle, entity string, desc schema.Descriptor, mapping Mapping[T], o entityOptions) error {
	if err := desc.Validate(); err != nil {
		return ConfigError.Wrap(fmt.Errorf("register %q: %w", entity, err))
	}
	if n := len(desc.MatchFields()); n > hashcode.MaxInputs {
		return ConfigError.New("register %q: %d match fields exceed the maximum of %d", entity, n, hashcode.MaxInputs)
	}
	if err := mapping.validate(desc); err != nil {
		return ConfigError.Wrap(fmt.Errorf("register %q: %w", entity, err))
	}

	dialects := []statement.Dialect{c.source.Dialect()}
	for _, t := range c.targets {
		dialects = append(dialects, t.Dialect)
	}
	for _, d := range dialects {
		if err := (statement.Builder{Dialect: d, Descriptor: desc}).Validate(); err != nil {
			return ConfigError.Wrap(fmt.Errorf("register %q for %s: %w", entity, d, err))
		}
	}

	return c.register(&unit[T]{
		entity:     entity,
		desc:       desc,
		mapping:    mapping,
		ledger:     c.ledger,
		logger:     c.logger,
		complete:   c.complete,
		targets:    c.targets,
		insertOnly: o.insertOnly,
		synced:     make([]int64, len(c.targets)),
	})
}
