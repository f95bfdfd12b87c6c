package datastore

import (
	"context"
	"fmt"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/glsql"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

// Target is a store rows are replicated to.
type Target struct {
	// Index is the bit of the target in the sync status.
	Index int
	// Name identifies the target in logs and metrics.
	Name    string
	DB      glsql.Querier
	Dialect statement.Dialect
}

// Bit returns the sync status flag of the target.
func (t Target) Bit() int64 { return int64(1) << uint(t.Index) }

func (t Target) String() string {
	if t.Name == "" {
		return fmt.Sprintf("target %d", t.Index)
	}
	return t.Name
}

// ExecuteBatch executes the statement and returns the number of rows the
// store reports as modified. A statement the store rejects for binding too
// many parameters fails with statement.ErrTooManyParameters.
func (t Target) ExecuteBatch(ctx context.Context, stmt statement.Statement) (int64, error) {
	res, err := t.DB.ExecContext(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return 0, classify(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return n, nil
}
