package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/glsql"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

// CycleRecord is the persisted summary of one replication cycle.
type CycleRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Loaded     int
	Synced     int
	ErrorCount int
	LastError  string
	Entities   []EntityRecord
}

// EntityRecord is the summary of one entity type within a cycle.
type EntityRecord struct {
	Entity     string
	Loaded     int
	Synced     int
	Skipped    int
	ErrorCount int
}

// History stores cycle summaries in the rowsync_cycles tables of the source.
type History struct {
	db      *sql.DB
	dialect statement.Dialect
}

// NewHistory returns a history store. The tables are created by the migrations
// applied with glsql.Migrate.
func NewHistory(db *sql.DB, dialect statement.Dialect) *History {
	return &History{db: db, dialect: dialect}
}

func (h *History) rebind(query string) string {
	if h.dialect != statement.Postgres {
		return query
	}

	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, h.dialect.Placeholder(n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Record stores the cycle and its entities in one transaction.
func (h *History) Record(ctx context.Context, rec CycleRecord) (err error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lastError interface{}
	if rec.LastError != "" {
		lastError = rec.LastError
	}

	if _, err := tx.ExecContext(ctx, h.rebind(`
		INSERT INTO rowsync_cycles (id, started_at, finished_at, loaded, synced, error_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.Loaded, rec.Synced, rec.ErrorCount, lastError,
	); err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, e := range rec.Entities {
		if _, err := tx.ExecContext(ctx, h.rebind(`
			INSERT INTO rowsync_cycle_entities (cycle_id, entity, loaded, synced, skipped, error_count)
			VALUES (?, ?, ?, ?, ?, ?)`),
			rec.ID, e.Entity, e.Loaded, e.Synced, e.Skipped, e.ErrorCount,
		); err != nil {
			return fmt.Errorf("insert entity %q: %w", e.Entity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

type cycleProvider []*CycleRecord

func (p *cycleProvider) To() []interface{} {
	rec := &CycleRecord{}
	*p = append(*p, rec)
	return []interface{}{&rec.ID, &rec.StartedAt, &rec.FinishedAt, &rec.Loaded, &rec.Synced, &rec.ErrorCount, (*nullString)(&rec.LastError)}
}

type nullString string

func (ns *nullString) Scan(value interface{}) error {
	var s sql.NullString
	if err := s.Scan(value); err != nil {
		return err
	}
	*ns = nullString(s.String)
	return nil
}

// Recent returns up to limit most recent cycles, newest first, with their entities.
func (h *History) Recent(ctx context.Context, limit int) ([]CycleRecord, error) {
	rows, err := h.db.QueryContext(ctx, h.rebind(`
		SELECT id, started_at, finished_at, loaded, synced, error_count, last_error
		FROM rowsync_cycles
		ORDER BY started_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}

	var cycles cycleProvider
	err = glsql.ScanAll(rows, &cycles)
	// the connection must be free before the entities are queried
	if cErr := rows.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return nil, fmt.Errorf("scan cycles: %w", err)
	}

	out := make([]CycleRecord, 0, len(cycles))
	for _, c := range cycles {
		entities, err := h.entities(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Entities = entities
		out = append(out, *c)
	}

	return out, nil
}

func (h *History) entities(ctx context.Context, cycleID string) ([]EntityRecord, error) {
	rows, err := h.db.QueryContext(ctx, h.rebind(`
		SELECT entity, loaded, synced, skipped, error_count
		FROM rowsync_cycle_entities
		WHERE cycle_id = ?
		ORDER BY entity`), cycleID)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []EntityRecord
	for rows.Next() {
		var e EntityRecord
		if err := rows.Scan(&e.Entity, &e.Loaded, &e.Synced, &e.Skipped, &e.ErrorCount); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}
