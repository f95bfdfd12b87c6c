package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validDescriptor() Descriptor {
	return Descriptor{
		Table: Table{Schema: "app", Name: "customers"},
		Columns: []Column{
			{Property: "ID", Name: "id"},
			{Property: "Name", Name: "name"},
			{Property: "Avatar", Name: "avatar", Type: TypeBinary},
			{Property: "Deleted", Name: "deleted"},
		},
		PrimaryKey:     []string{"ID"},
		SyncColumn:     "sync_status",
		DeleteProperty: "Deleted",
	}
}

func TestDescriptor_Validate(t *testing.T) {
	for _, tc := range []struct {
		desc   string
		mutate func(*Descriptor)
		err    error
	}{
		{desc: "valid", mutate: func(*Descriptor) {}},
		{desc: "no table", mutate: func(d *Descriptor) { d.Table = Table{} }, err: ErrNoTable},
		{desc: "no columns", mutate: func(d *Descriptor) { d.Columns = nil }, err: ErrNoColumns},
		{desc: "no sync column", mutate: func(d *Descriptor) { d.SyncColumn = "" }, err: ErrNoSyncColumn},
		{
			desc:   "sync column replicated",
			mutate: func(d *Descriptor) { d.Columns = append(d.Columns, Column{Property: "Sync", Name: "SYNC_STATUS"}) },
			err:    ErrAmbiguousSyncColumn,
		},
		{
			desc:   "duplicate property",
			mutate: func(d *Descriptor) { d.Columns = append(d.Columns, Column{Property: "Name", Name: "name2"}) },
			err:    ErrDuplicateProperty,
		},
		{desc: "no key", mutate: func(d *Descriptor) { d.PrimaryKey = nil }, err: ErrNoKey},
		{desc: "match key only", mutate: func(d *Descriptor) { d.PrimaryKey, d.MatchKey = nil, []string{"Name"} }},
		{desc: "unknown primary key", mutate: func(d *Descriptor) { d.PrimaryKey = []string{"Missing"} }, err: ErrUnknownProperty},
		{desc: "unknown match key", mutate: func(d *Descriptor) { d.MatchKey = []string{"Missing"} }, err: ErrUnknownProperty},
		{desc: "unknown delete property", mutate: func(d *Descriptor) { d.DeleteProperty = "Missing" }, err: ErrUnknownProperty},
		{desc: "generated not key", mutate: func(d *Descriptor) { d.Generated = []string{"Name"} }, err: ErrGeneratedNotKey},
		{desc: "generated key", mutate: func(d *Descriptor) { d.Generated = []string{"ID"} }},
		{
			desc: "key only",
			mutate: func(d *Descriptor) {
				d.Columns = []Column{{Property: "A", Name: "a"}, {Property: "B", Name: "b"}}
				d.PrimaryKey = []string{"A"}
				d.MatchKey = []string{"B"}
				d.DeleteProperty = ""
			},
			err: ErrKeyOnly,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			d := validDescriptor()
			tc.mutate(&d)
			err := d.Validate()
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDescriptor_MatchFields(t *testing.T) {
	d := validDescriptor()
	require.Equal(t, []string{"ID"}, d.MatchFields())

	d.MatchKey = []string{"Name"}
	require.Equal(t, []string{"Name"}, d.MatchFields())
	require.True(t, d.IsKey("Name"))
	require.True(t, d.IsKey("ID"))
	require.False(t, d.IsKey("Avatar"))
}

func TestDescriptor_WithoutSyncColumn(t *testing.T) {
	d := validDescriptor()
	d.Columns = append(d.Columns, Column{Property: "SyncStatus", Name: "sync_status"})

	stripped, err := d.WithoutSyncColumn()
	require.NoError(t, err)
	require.Len(t, stripped.Columns, 4)
	require.Len(t, d.Columns, 5, "original descriptor must not be modified")
	_, _, ok := stripped.Column("SyncStatus")
	require.False(t, ok)
	require.NoError(t, stripped.Validate())

	d.Columns = append(d.Columns, Column{Property: "Sync2", Name: "Sync_Status"})
	_, err = d.WithoutSyncColumn()
	require.ErrorIs(t, err, ErrAmbiguousSyncColumn)

	d.SyncColumn = ""
	_, err = d.WithoutSyncColumn()
	require.ErrorIs(t, err, ErrNoSyncColumn)
}

func TestDescriptor_Column(t *testing.T) {
	d := validDescriptor()
	c, i, ok := d.Column("Avatar")
	require.True(t, ok)
	require.Equal(t, 2, i)
	require.Equal(t, TypeBinary, c.Type)

	_, i, ok = d.Column("Missing")
	require.False(t, ok)
	require.Equal(t, -1, i)
}

func TestParseTable(t *testing.T) {
	require.Equal(t, Table{Name: "users"}, ParseTable("users"))
	require.Equal(t, Table{Schema: "dbo", Name: "users"}, ParseTable("dbo.users"))
	require.Equal(t, "dbo.users", ParseTable("dbo.users").String())
}

func TestParseColumnType(t *testing.T) {
	ct, err := ParseColumnType("BYTEA")
	require.NoError(t, err)
	require.Equal(t, TypeBinary, ct)

	ct, err = ParseColumnType("")
	require.NoError(t, err)
	require.Equal(t, TypeGeneric, ct)

	_, err = ParseColumnType("geometry")
	require.Error(t, err)
}
