package rowsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/hashcode"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

// syncUnit is the type-erased view the cycle has on a registered entity type.
type syncUnit interface {
	name() string
	load(ctx context.Context, source *datastore.Source) (int, error)
	syncToTarget(ctx context.Context, target datastore.Target)
	persistStatuses()
	save(ctx context.Context, source *datastore.Source) error
	result() EntityResult
}

// unit holds the rows of one entity type loaded by a cycle.
type unit[T any] struct {
	entity     string
	desc       schema.Descriptor
	mapping    Mapping[T]
	ledger     *ErrorLedger
	logger     logrus.FieldLogger
	complete   int64
	targets    []datastore.Target
	insertOnly bool

	rows    []*T
	initial []int64
	success *successMap[T]
	synced  []int64
	skipped int64

	errMtx sync.Mutex
	errs   []error
}

func (u *unit[T]) name() string { return u.entity }

func (u *unit[T]) builder(d statement.Dialect) statement.Builder {
	return statement.Builder{Dialect: d, Descriptor: u.desc}
}

func (u *unit[T]) addError(err error) {
	u.errMtx.Lock()
	defer u.errMtx.Unlock()
	u.errs = append(u.errs, err)
}

func (u *unit[T]) errors() []error {
	u.errMtx.Lock()
	defer u.errMtx.Unlock()
	return append([]error(nil), u.errs...)
}

func (u *unit[T]) reset() {
	u.rows = nil
	u.initial = nil
	u.success = nil
	u.synced = make([]int64, len(u.targets))
	u.skipped = 0
	u.errMtx.Lock()
	u.errs = nil
	u.errMtx.Unlock()
}

type rowProvider[T any] struct {
	u    *unit[T]
	rows []*T
}

func (p *rowProvider[T]) To() []interface{} {
	row := p.u.newRow()
	p.rows = append(p.rows, row)

	dest := make([]interface{}, 0, len(p.u.desc.Columns)+1)
	for _, c := range p.u.desc.Columns {
		dest = append(dest, p.u.mapping.Fields[c.Property].Ref(row))
	}
	return append(dest, p.u.mapping.SyncStatus(row))
}

func (u *unit[T]) newRow() *T {
	if u.mapping.New != nil {
		return u.mapping.New()
	}
	return new(T)
}

// load queries the source for every row whose status is not complete.
func (u *unit[T]) load(ctx context.Context, source *datastore.Source) (int, error) {
	u.reset()

	provider := &rowProvider[T]{u: u}
	if err := source.Query(ctx, u.builder(source.Dialect()).Select(u.complete), provider); err != nil {
		err = LoadError.Wrap(fmt.Errorf("%s: %w", u.entity, err))
		u.addError(err)
		return 0, err
	}

	u.rows = provider.rows
	u.initial = make([]int64, len(u.rows))
	for i, row := range u.rows {
		u.initial[i] = *u.mapping.SyncStatus(row)
	}
	u.success = newSuccessMap(u.rows, func(row *T) int64 { return *u.mapping.SyncStatus(row) })

	u.logger.WithField("entity", u.entity).Infof("%d %s rows to sync", len(u.rows), u.entity)

	return len(u.rows), nil
}

func (u *unit[T]) values(row *T) []interface{} {
	values := make([]interface{}, len(u.desc.Columns))
	for i, c := range u.desc.Columns {
		values[i] = u.mapping.Fields[c.Property].Get(row)
	}
	return values
}

// keyHash identifies a row in the error ledger by the fields the targets
// match it on: the match key when one is set, the primary key otherwise.
func (u *unit[T]) keyHash(row *T) int32 {
	fields := u.desc.MatchFields()
	values := make([]interface{}, len(fields))
	for i, property := range fields {
		values[i] = u.mapping.Fields[property].Get(row)
	}
	// The number of match fields is checked on registration.
	h, _ := hashcode.OfKey(values...)
	return h
}

func (u *unit[T]) isDeleted(row *T) bool {
	if u.desc.DeleteProperty == "" {
		return false
	}
	return truthy(u.mapping.Fields[u.desc.DeleteProperty].Get(row))
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case *bool:
		return v != nil && *v
	case sql.NullBool:
		return v.Valid && v.Bool
	case int64:
		return v != 0
	case int:
		return v != 0
	case int32:
		return v != 0
	case int16:
		return v != 0
	case int8:
		return v != 0
	case uint8:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	default:
		return false
	}
}

func (u *unit[T]) writeKind() statement.Kind {
	if u.insertOnly {
		return statement.InsertIfAbsent
	}
	return statement.Upsert
}

// pending filters out rows the target was already credited with.
func (u *unit[T]) pending(rows []*T, flag int64) []*T {
	var out []*T
	for _, row := range rows {
		if !u.success.has(row, flag) {
			out = append(out, row)
		}
	}
	return out
}

// syncToTarget writes every row the target lacks to the target.
func (u *unit[T]) syncToTarget(ctx context.Context, target datastore.Target) {
	if len(u.rows) == 0 {
		return
	}

	flag := target.Bit()
	logger := u.logger.WithFields(logrus.Fields{"entity": u.entity, "target": target.String()})

	var candidates []*T
	removed := 0
	for _, row := range u.rows {
		if u.success.has(row, flag) {
			continue
		}
		if u.ledger.Exceeded(u.entity, u.keyHash(row), target.Index) {
			removed++
			continue
		}
		candidates = append(candidates, row)
	}

	if removed > 0 {
		atomic.AddInt64(&u.skipped, int64(removed))
		logger.Infof("skipping %d %s on target %s - too many errors", removed, plural(removed, "row"), target)
	}

	if len(candidates) == 0 {
		return
	}

	logger.Infof("syncing %d %s %s to %s", len(candidates), u.entity, plural(len(candidates), "row"), target)

	var upserts, deletes []*T
	for _, row := range candidates {
		if u.isDeleted(row) {
			deletes = append(deletes, row)
		} else {
			upserts = append(upserts, row)
		}
	}

	builder := u.builder(target.Dialect)

	err := u.writeBatch(ctx, logger, target, builder, upserts, deletes)
	switch {
	case err == nil:
		return
	case errors.Is(err, statement.ErrTooManyParameters):
		logger.WithError(err).Info("batch exceeds the parameter limit, writing in chunks")
		if u.writeChunks(ctx, logger, target, builder, upserts, deletes) {
			return
		}
	default:
		u.addError(SyncError.Wrap(fmt.Errorf("%s on %s: %w", u.entity, target, err)))
	}

	u.writeRows(ctx, logger, target, builder, upserts, deletes)
}

// writeBatch writes all upserts with one statement and all deletes with another.
func (u *unit[T]) writeBatch(ctx context.Context, logger logrus.FieldLogger, target datastore.Target, builder statement.Builder, upserts, deletes []*T) error {
	if err := u.write(ctx, logger, target, builder, u.writeKind(), upserts); err != nil {
		return err
	}
	return u.write(ctx, logger, target, builder, statement.Delete, deletes)
}

// writeChunks writes the pending rows in chunks sized to stay within the
// parameter limit. It reports whether every chunk succeeded.
func (u *unit[T]) writeChunks(ctx context.Context, logger logrus.FieldLogger, target datastore.Target, builder statement.Builder, upserts, deletes []*T) bool {
	flag := target.Bit()
	size := statement.MaxParameters / u.desc.PropertyCount()
	if size < 1 {
		size = 1
	}

	upChunks := chunk(u.pending(upserts, flag), size)
	delChunks := chunk(u.pending(deletes, flag), size)

	n := len(upChunks)
	if len(delChunks) > n {
		n = len(delChunks)
	}

	ok := true
	for i := 0; i < n; i++ {
		if i < len(upChunks) {
			if err := u.write(ctx, logger, target, builder, u.writeKind(), upChunks[i]); err != nil {
				ok = false
				u.addError(SyncError.Wrap(fmt.Errorf("%s chunk %d on %s: %w", u.entity, i, target, err)))
			}
		}
		if i < len(delChunks) {
			if err := u.write(ctx, logger, target, builder, statement.Delete, delChunks[i]); err != nil {
				ok = false
				u.addError(SyncError.Wrap(fmt.Errorf("%s delete chunk %d on %s: %w", u.entity, i, target, err)))
			}
		}
	}

	return ok
}

// writeRows writes every pending row on its own. Rows failing here are
// recorded in the ledger.
func (u *unit[T]) writeRows(ctx context.Context, logger logrus.FieldLogger, target datastore.Target, builder statement.Builder, upserts, deletes []*T) {
	flag := target.Bit()

	for _, op := range []struct {
		kind statement.Kind
		rows []*T
	}{
		{kind: statement.Delete, rows: deletes},
		{kind: u.writeKind(), rows: upserts},
	} {
		for _, row := range op.rows {
			if u.success.has(row, flag) {
				continue
			}

			if err := u.write(ctx, logger, target, builder, op.kind, []*T{row}); err != nil {
				failures := u.ledger.Increment(u.entity, u.keyHash(row), target.Index)
				logger.WithError(err).WithField("failures", failures).Warn("writing row failed")
				u.addError(SyncError.Wrap(fmt.Errorf("%s row on %s: %w", u.entity, target, err)))
			}
		}
	}
}

// write executes one statement of the given kind for the rows and credits
// the target for them on success.
func (u *unit[T]) write(ctx context.Context, logger logrus.FieldLogger, target datastore.Target, builder statement.Builder, kind statement.Kind, rows []*T) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = u.values(row)
	}

	stmt, err := builder.Build(kind, values)
	if err != nil {
		return err
	}

	affected, err := target.ExecuteBatch(ctx, stmt)
	if err != nil {
		return err
	}

	if affected != int64(len(rows)) {
		if kind == statement.Delete {
			logger.Warnf("deleted row count %d did not match expected rows modified (%d)", affected, len(rows))
		} else {
			logger.Warnf("returned row count %d did not match expected rows modified (%d)", affected, len(rows))
		}
	}

	flag := target.Bit()
	credited := int64(0)
	for _, row := range rows {
		if u.success.or(row, flag) {
			credited++
		}
	}
	atomic.AddInt64(&u.synced[target.Index], credited)

	return nil
}

// persistStatuses copies the accumulated flags into the rows.
func (u *unit[T]) persistStatuses() {
	for _, row := range u.rows {
		status, ok := u.success.get(row)
		if !ok {
			u.addError(InternalError.New("%s: no stored success result for row", u.entity))
			continue
		}
		*u.mapping.SyncStatus(row) = status
	}
}

// save stores the status of every row that changed during the cycle.
func (u *unit[T]) save(ctx context.Context, source *datastore.Source) error {
	builder := u.builder(source.Dialect())

	var stmts []statement.Statement
	for i, row := range u.rows {
		status := *u.mapping.SyncStatus(row)
		if status == u.initial[i] {
			continue
		}

		stmt, err := builder.UpdateStatus(status, u.values(row))
		if err != nil {
			err = PersistError.Wrap(fmt.Errorf("%s: %w", u.entity, err))
			u.addError(err)
			return err
		}
		stmts = append(stmts, stmt)
	}

	if err := source.BulkSave(ctx, stmts); err != nil {
		err = PersistError.Wrap(fmt.Errorf("%s: %w", u.entity, err))
		u.addError(err)
		return err
	}

	return nil
}

func (u *unit[T]) result() EntityResult {
	res := EntityResult{
		Entity:  u.entity,
		Loaded:  len(u.rows),
		Synced:  make(map[string]int, len(u.targets)),
		Skipped: int(atomic.LoadInt64(&u.skipped)),
		Errors:  u.errors(),
	}
	for _, target := range u.targets {
		res.Synced[target.Name] = int(atomic.LoadInt64(&u.synced[target.Index]))
	}
	return res
}

func chunk[T any](rows []*T, size int) [][]*T {
	var chunks [][]*T
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
