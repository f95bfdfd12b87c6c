package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/glsql"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

// ErrLockUnsupported is returned when advisory locks are requested from a
// store that doesn't provide them.
var ErrLockUnsupported = errors.New("advisory locks are only supported by postgres")

// Source is the authoritative store rows are replicated from.
type Source struct {
	db      *sql.DB
	dialect statement.Dialect
}

// NewSource returns a source executing statements on db.
func NewSource(db *sql.DB, dialect statement.Dialect) *Source {
	return &Source{db: db, dialect: dialect}
}

// Dialect is the SQL dialect of the source.
func (s *Source) Dialect() statement.Dialect { return s.dialect }

// DB returns the underlying connection pool.
func (s *Source) DB() *sql.DB { return s.db }

// Query runs the query statement and scans every returned row into the
// destinations provided by dest.
func (s *Source) Query(ctx context.Context, stmt statement.Statement, dest glsql.DestProvider) (err error) {
	rows, err := s.db.QueryContext(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cErr)
		}
	}()

	if err := glsql.ScanAll(rows, dest); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	return nil
}

// BulkSave executes the statements in a single transaction. Either every
// statement is applied or none.
func (s *Source) BulkSave(ctx context.Context, stmts []statement.Statement) (err error) {
	if len(stmts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w, rollback: %v", err, rbErr)
			}
		}
	}()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.Query, stmt.Args...); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// TryAdvisoryLock tries to acquire the session level advisory lock with the
// given id without waiting. When acquired, the returned release function must
// be called to unlock it and give the connection back to the pool.
func (s *Source) TryAdvisoryLock(ctx context.Context, id int64) (release func(), acquired bool, err error) {
	if s.dialect != statement.Postgres {
		return nil, false, ErrLockUnsupported
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("try lock: %w", err)
	}

	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	return func() {
		// the lock must be released even if the cycle's context is done
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id)
		conn.Close()
	}, true, nil
}
