package rowsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()

	generated := itemDescriptor()
	generated.Generated = []string{"id"}

	newCycle := func(t *testing.T, resolver schema.Resolver, dialects ...statement.Dialect) *Cycle {
		targets := make([]datastore.Target, len(dialects))
		for i, d := range dialects {
			targets[i] = datastore.Target{Index: i, Dialect: d}
		}
		opts := []Option{}
		if resolver != nil {
			opts = append(opts, WithResolver(resolver))
		}
		c, err := NewCycle(nil, datastore.NewSource(nil, statement.SQLite), targets, opts...)
		require.NoError(t, err)
		return c
	}

	resolver := schema.StaticResolver{"items": itemDescriptor(), "generated": generated}

	t.Run("ok", func(t *testing.T) {
		c := newCycle(t, resolver, statement.Postgres, statement.SQLServer)
		require.NoError(t, Register(ctx, c, "items", itemMapping()))
		require.Len(t, c.registered(), 1)
	})

	t.Run("no resolver", func(t *testing.T) {
		c := newCycle(t, nil, statement.Postgres)
		require.True(t, ConfigError.Has(Register(ctx, c, "items", itemMapping())))
	})

	t.Run("unknown entity", func(t *testing.T) {
		c := newCycle(t, resolver, statement.Postgres)
		err := Register(ctx, c, "orders", itemMapping())
		require.True(t, ConfigError.Has(err))
		require.ErrorIs(t, err, schema.ErrUnknownEntity)
	})

	t.Run("duplicate", func(t *testing.T) {
		c := newCycle(t, resolver, statement.Postgres)
		require.NoError(t, Register(ctx, c, "items", itemMapping()))
		require.True(t, ConfigError.Has(Register(ctx, c, "items", itemMapping())))
	})

	t.Run("missing accessor", func(t *testing.T) {
		c := newCycle(t, resolver, statement.Postgres)
		mapping := itemMapping()
		delete(mapping.Fields, "name")
		require.True(t, ConfigError.Has(Register(ctx, c, "items", mapping)))
	})

	t.Run("missing sync status accessor", func(t *testing.T) {
		c := newCycle(t, resolver, statement.Postgres)
		mapping := itemMapping()
		mapping.SyncStatus = nil
		require.True(t, ConfigError.Has(Register(ctx, c, "items", mapping)))
	})

	t.Run("unknown delete property", func(t *testing.T) {
		c := newCycle(t, resolver, statement.Postgres)
		err := Register(ctx, c, "items", itemMapping(), WithDeleteProperty("removed"))
		require.ErrorIs(t, err, schema.ErrUnknownProperty)
	})

	t.Run("generated match key on a values target", func(t *testing.T) {
		c := newCycle(t, resolver, statement.SQLServer, statement.Postgres)
		err := Register(ctx, c, "generated", itemMapping())
		require.ErrorIs(t, err, statement.ErrGeneratedMatchKey)
	})

	t.Run("match key override", func(t *testing.T) {
		c := newCycle(t, resolver, statement.Postgres)
		require.NoError(t, Register(ctx, c, "generated", itemMapping(), WithMatchKey("name")))
	})

	t.Run("too many match fields", func(t *testing.T) {
		wide := schema.Descriptor{Table: schema.Table{Name: "wide"}, SyncColumn: "sync_status"}
		for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "v"} {
			wide.Columns = append(wide.Columns, schema.Column{Property: name, Name: name})
		}
		wide.MatchKey = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
		c := newCycle(t, schema.StaticResolver{"wide": wide}, statement.Postgres)
		err := Register(ctx, c, "wide", RecordMapping(wide))
		require.True(t, ConfigError.Has(err))
	})

	t.Run("sync column mapped as property", func(t *testing.T) {
		withSync := itemDescriptor()
		withSync.Columns = append(withSync.Columns, schema.Column{Property: "status", Name: "sync_status"})
		c := newCycle(t, schema.StaticResolver{"items": withSync}, statement.Postgres)
		require.NoError(t, Register(ctx, c, "items", itemMapping()))
	})

	t.Run("gorm model with a generated id", func(t *testing.T) {
		type account struct {
			ID         int64
			Email      string
			Plan       string
			SyncStatus int64
		}
		gr := schema.NewGormResolver(nil)
		gr.Add("account", &account{}, "sync_status")

		c := newCycle(t, gr, statement.Postgres)
		err := RegisterRecords(ctx, c, "account")
		require.True(t, ConfigError.Has(err))
		require.ErrorIs(t, err, statement.ErrGeneratedMatchKey)

		require.NoError(t, RegisterRecords(ctx, c, "account", WithMatchKey("Email")))
	})

	t.Run("records resolve the descriptor once", func(t *testing.T) {
		withSync := itemDescriptor()
		withSync.Columns = append(withSync.Columns, schema.Column{Property: "status", Name: "sync_status"})

		calls := 0
		c := newCycle(t, schema.ResolverFunc(func(ctx context.Context, entity string) (schema.Descriptor, error) {
			calls++
			return withSync, nil
		}), statement.Postgres)

		require.NoError(t, RegisterRecords(ctx, c, "items"))
		require.Equal(t, 1, calls)

		units := c.registered()
		require.Len(t, units, 1)
		require.Len(t, units[0].(*unit[Record]).desc.Columns, 3)
	})
}

func TestRecordMapping(t *testing.T) {
	desc := itemDescriptor()
	mapping := RecordMapping(desc)
	require.NoError(t, mapping.validate(desc))

	r := mapping.New()
	require.Len(t, r.Values, 3)

	*(mapping.Fields["name"].Ref(r).(*interface{})) = "widget"
	require.Equal(t, "widget", mapping.Fields["name"].Get(r))
	require.Equal(t, "widget", r.Values[1])

	*mapping.SyncStatus(r) = 5
	require.Equal(t, int64(5), r.SyncStatus)
}
