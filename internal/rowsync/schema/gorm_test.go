package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type gormCustomer struct {
	ID         int64  `gorm:"primaryKey"`
	Name       string `gorm:"column:full_name"`
	Avatar     []byte
	Deleted    bool
	SyncStatus int64
}

type gormTag struct {
	Label      string `gorm:"primaryKey"`
	Color      string
	SyncStatus int64 `gorm:"column:sync"`
}

func TestGormResolver(t *testing.T) {
	ctx := context.Background()
	gr := NewGormResolver(nil)
	gr.Add("customer", &gormCustomer{}, "sync_status")
	gr.Add("tag", &gormTag{}, "sync")

	d, err := gr.Resolve(ctx, "customer")
	require.NoError(t, err)
	require.Equal(t, Table{Name: "gorm_customers"}, d.Table)
	require.Equal(t, []Column{
		{Property: "ID", Name: "id"},
		{Property: "Name", Name: "full_name"},
		{Property: "Avatar", Name: "avatar", Type: TypeBinary},
		{Property: "Deleted", Name: "deleted"},
	}, d.Columns)
	require.Equal(t, []string{"ID"}, d.PrimaryKey)
	require.Equal(t, []string{"ID"}, d.Generated)
	require.Equal(t, "sync_status", d.SyncColumn)
	require.NoError(t, d.Validate())

	d, err = gr.Resolve(ctx, "tag")
	require.NoError(t, err)
	require.Equal(t, []string{"Label"}, d.PrimaryKey)
	require.Empty(t, d.Generated)
	require.Len(t, d.Columns, 2)

	_, err = gr.Resolve(ctx, "order")
	require.ErrorIs(t, err, ErrUnknownEntity)
}
