package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/advisorylock"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/glsql"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

type loadedRow struct {
	id     int64
	name   *string
	avatar []byte
	status int64
}

type loadedRows []*loadedRow

func (p *loadedRows) To() []interface{} {
	r := &loadedRow{}
	*p = append(*p, r)
	return []interface{}{&r.id, &r.name, &r.avatar, &r.status}
}

func TestSource_Query(t *testing.T) {
	ctx := context.Background()
	db := glsql.NewSQLiteDB(t)
	createCustomers(t, db)
	db.MustExec(t, `INSERT INTO customers (id, name, sync_status) VALUES (1, 'a', 3), (2, 'b', NULL), (3, 'c', 1), (4, NULL, 0)`)

	source := NewSource(db.DB, statement.SQLite)
	require.Equal(t, statement.SQLite, source.Dialect())

	builder := statement.Builder{Dialect: statement.SQLite, Descriptor: customersDescriptor()}

	var rows loadedRows
	require.NoError(t, source.Query(ctx, builder.Select(3), &rows))
	require.Len(t, rows, 3)

	statuses := map[int64]int64{}
	for _, r := range rows {
		statuses[r.id] = r.status
	}
	require.Equal(t, map[int64]int64{2: 0, 3: 1, 4: 0}, statuses)

	err := source.Query(ctx, statement.Statement{Query: "SELECT * FROM missing"}, &rows)
	require.Error(t, err)
}

func TestSource_BulkSave(t *testing.T) {
	ctx := context.Background()
	db := glsql.NewSQLiteDB(t)
	createCustomers(t, db)
	db.MustExec(t, `INSERT INTO customers (id, name, sync_status) VALUES (1, 'a', 0), (2, 'b', 0)`)

	source := NewSource(db.DB, statement.SQLite)
	builder := statement.Builder{Dialect: statement.SQLite, Descriptor: customersDescriptor()}

	first, err := builder.UpdateStatus(3, []interface{}{1, "a", nil})
	require.NoError(t, err)
	second, err := builder.UpdateStatus(1, []interface{}{2, "b", nil})
	require.NoError(t, err)

	require.NoError(t, source.BulkSave(ctx, nil))
	require.NoError(t, source.BulkSave(ctx, []statement.Statement{first, second}))

	var sum int64
	require.NoError(t, db.QueryRow("SELECT SUM(sync_status) FROM customers").Scan(&sum))
	require.Equal(t, int64(4), sum)

	reset, err := builder.UpdateStatus(0, []interface{}{1, "a", nil})
	require.NoError(t, err)

	err = source.BulkSave(ctx, []statement.Statement{reset, {Query: "UPDATE missing SET x = 1"}})
	require.Error(t, err)

	require.NoError(t, db.QueryRow("SELECT SUM(sync_status) FROM customers").Scan(&sum))
	require.Equal(t, int64(4), sum, "failed bulk save must not persist any status")
}

func TestSource_TryAdvisoryLock_unsupported(t *testing.T) {
	db := glsql.NewSQLiteDB(t)
	source := NewSource(db.DB, statement.SQLite)

	_, _, err := source.TryAdvisoryLock(context.Background(), advisorylock.Cycle)
	require.ErrorIs(t, err, ErrLockUnsupported)
}

func TestSource_TryAdvisoryLock_postgres(t *testing.T) {
	ctx := context.Background()
	db := glsql.NewPostgresDB(t)
	first := NewSource(db.DB, statement.Postgres)

	release, acquired, err := first.TryAdvisoryLock(ctx, advisorylock.Cycle)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquired, err = first.TryAdvisoryLock(ctx, advisorylock.Cycle)
	require.NoError(t, err)
	require.False(t, acquired, "lock is held by another session")

	release()

	release, acquired, err = first.TryAdvisoryLock(ctx, advisorylock.Cycle)
	require.NoError(t, err)
	require.True(t, acquired)
	release()
}
