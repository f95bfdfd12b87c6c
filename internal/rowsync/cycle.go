package rowsync

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/rowsync/internal/dontpanic"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/advisorylock"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
	"golang.org/x/sync/errgroup"
)

// EntityResult describes what a cycle did for one entity type.
type EntityResult struct {
	Entity string
	// Loaded is the number of rows loaded from the source.
	Loaded int
	// Synced maps target names to the number of rows written to the target.
	Synced map[string]int
	// Skipped is the number of row/target pairs left out due to the ledger.
	Skipped int
	Errors  []error
}

// Result describes a finished cycle.
type Result struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	// Skipped is set when the cycle didn't run because another one was in progress.
	Skipped  bool
	Entities []EntityResult
	// Failures holds errors not attributable to a single entity type.
	Failures []error
}

// Errors returns every error recorded by the cycle.
func (r Result) Errors() []error {
	errs := append([]error(nil), r.Failures...)
	for _, e := range r.Entities {
		errs = append(errs, e.Errors...)
	}
	return errs
}

// Loaded returns the total number of rows loaded.
func (r Result) Loaded() int {
	n := 0
	for _, e := range r.Entities {
		n += e.Loaded
	}
	return n
}

// Synced returns the total number of rows written to any target.
func (r Result) Synced() int {
	n := 0
	for _, e := range r.Entities {
		for _, synced := range e.Synced {
			n += synced
		}
	}
	return n
}

// Observer is notified of every cycle result, including skipped ones.
type Observer interface {
	ObserveCycle(Result)
}

// HistoryRecorder stores the summary of finished cycles.
type HistoryRecorder interface {
	Record(ctx context.Context, rec datastore.CycleRecord) error
}

// Option configures a Cycle.
type Option func(*Cycle)

// WithResolver sets the schema resolver entity types are registered with.
func WithResolver(r schema.Resolver) Option {
	return func(c *Cycle) { c.resolver = r }
}

// WithAdvisoryLock makes cycles take a session advisory lock in the source so
// that only one process replicates at a time.
func WithAdvisoryLock() Option {
	return func(c *Cycle) { c.advisoryLock = true }
}

// WithFinishedHook sets a function called after the statuses were applied to
// the loaded rows and before they are saved to the source.
func WithFinishedHook(hook func(context.Context)) Option {
	return func(c *Cycle) { c.finished = hook }
}

// WithObserver adds an observer of cycle results.
func WithObserver(o Observer) Option {
	return func(c *Cycle) { c.observers = append(c.observers, o) }
}

// WithHistory records every finished cycle.
func WithHistory(h HistoryRecorder) Option {
	return func(c *Cycle) { c.history = h }
}

// WithErrorLedger shares a ledger between cycles.
func WithErrorLedger(l *ErrorLedger) Option {
	return func(c *Cycle) { c.ledger = l }
}

// Cycle replicates the rows of every registered entity type from the source
// to the targets. A Cycle is safe for concurrent use, overlapping calls to Run
// return immediately.
type Cycle struct {
	logger       logrus.FieldLogger
	source       *datastore.Source
	targets      []datastore.Target
	complete     int64
	resolver     schema.Resolver
	ledger       *ErrorLedger
	advisoryLock bool
	finished     func(context.Context)
	observers    []Observer
	history      HistoryRecorder
	now          func() time.Time

	running chan struct{}

	mtx   sync.Mutex
	names map[string]struct{}
	units []syncUnit
}

// NewCycle returns a Cycle replicating from source to targets. Target indexes
// must match their position.
func NewCycle(logger logrus.FieldLogger, source *datastore.Source, targets []datastore.Target, opts ...Option) (*Cycle, error) {
	if source == nil {
		return nil, ConfigError.New("no source")
	}
	if len(targets) == 0 {
		return nil, ConfigError.New("no targets")
	}
	if len(targets) > config.MaxTargets {
		return nil, ConfigError.New("%d targets exceed the maximum of %d", len(targets), config.MaxTargets)
	}
	for i, t := range targets {
		if t.Index != i {
			return nil, ConfigError.New("target %q has index %d at position %d", t.Name, t.Index, i)
		}
	}

	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	c := &Cycle{
		logger:   logger.WithField("component", "rowsync"),
		source:   source,
		targets:  targets,
		complete: int64(1)<<uint(len(targets)) - 1,
		ledger:   NewErrorLedger(),
		now:      time.Now,
		running:  make(chan struct{}, 1),
		names:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Complete returns the sync status of a row present on every target.
func (c *Cycle) Complete() int64 { return c.complete }

// Ledger returns the error ledger of the cycle.
func (c *Cycle) Ledger() *ErrorLedger { return c.ledger }

func (c *Cycle) register(u syncUnit) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.names[u.name()]; ok {
		return ConfigError.New("entity %q is already registered", u.name())
	}
	c.names[u.name()] = struct{}{}
	c.units = append(c.units, u)
	return nil
}

func (c *Cycle) registered() []syncUnit {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]syncUnit(nil), c.units...)
}

// Run performs one replication cycle. If a cycle is already in progress in
// this process, or in another one when the advisory lock is enabled, Run
// returns a skipped result without error. Otherwise every error recorded
// during the cycle is returned as a *CycleError; the cycle itself never stops
// early because of a failing entity type or target.
func (c *Cycle) Run(ctx context.Context) (Result, error) {
	select {
	case c.running <- struct{}{}:
		defer func() { <-c.running }()
	default:
		c.logger.Debug("replication cycle already running")
		return c.skip(), nil
	}

	if c.advisoryLock {
		release, acquired, err := c.source.TryAdvisoryLock(ctx, advisorylock.Cycle)
		if err != nil {
			return Result{}, InternalError.Wrap(fmt.Errorf("acquire advisory lock: %w", err))
		}
		if !acquired {
			c.logger.Debug("replication cycle running in another process")
			return c.skip(), nil
		}
		defer release()
	}

	res := Result{ID: uuid.New(), StartedAt: c.now()}
	logger := c.logger.WithField("cycle_id", res.ID.String())

	units := c.registered()

	var active []syncUnit
	for _, u := range units {
		n, err := u.load(ctx, c.source)
		if err != nil {
			logger.WithError(err).WithField("entity", u.name()).Error("loading rows failed")
			continue
		}
		if n > 0 {
			active = append(active, u)
		}
	}

	if len(active) > 0 {
		var group errgroup.Group
		var panicErrs []error
		var panicMtx sync.Mutex
		for _, target := range c.targets {
			target := target
			group.Go(func() error {
				err := dontpanic.Try(logger, func() {
					for _, u := range active {
						u.syncToTarget(ctx, target)
					}
				})
				if err != nil {
					panicMtx.Lock()
					panicErrs = append(panicErrs, InternalError.Wrap(fmt.Errorf("target %s: %w", target, err)))
					panicMtx.Unlock()
				}
				return nil
			})
		}
		_ = group.Wait()

		for _, u := range active {
			u.persistStatuses()
		}

		if c.finished != nil {
			c.finished(ctx)
		}

		for _, u := range active {
			if err := u.save(ctx, c.source); err != nil {
				logger.WithError(err).WithField("entity", u.name()).Error("saving sync statuses failed")
			}
		}

		res.Failures = panicErrs
	}

	for _, u := range units {
		res.Entities = append(res.Entities, u.result())
	}
	res.FinishedAt = c.now()

	errs := res.Errors()
	logger.WithFields(logrus.Fields{
		"loaded":   res.Loaded(),
		"synced":   res.Synced(),
		"errors":   len(errs),
		"duration": res.FinishedAt.Sub(res.StartedAt).String(),
	}).Info("replication cycle finished")

	c.record(ctx, logger, res)

	if len(errs) > 0 {
		return res, &CycleError{Errors: errs}
	}
	return res, nil
}

func (c *Cycle) skip() Result {
	res := Result{Skipped: true, StartedAt: c.now()}
	res.FinishedAt = res.StartedAt
	for _, o := range c.observers {
		o.ObserveCycle(res)
	}
	return res
}

func (c *Cycle) record(ctx context.Context, logger logrus.FieldLogger, res Result) {
	for _, o := range c.observers {
		o.ObserveCycle(res)
	}

	if c.history == nil {
		return
	}

	rec := datastore.CycleRecord{
		ID:         res.ID.String(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Loaded:     res.Loaded(),
		Synced:     res.Synced(),
	}
	for _, e := range res.Entities {
		synced := 0
		for _, n := range e.Synced {
			synced += n
		}
		rec.Entities = append(rec.Entities, datastore.EntityRecord{
			Entity:     e.Entity,
			Loaded:     e.Loaded,
			Synced:     synced,
			Skipped:    e.Skipped,
			ErrorCount: len(e.Errors),
		})
	}
	if errs := res.Errors(); len(errs) > 0 {
		rec.ErrorCount = len(errs)
		rec.LastError = errs[len(errs)-1].Error()
	}

	if err := c.history.Record(ctx, rec); err != nil {
		logger.WithError(err).Error("recording cycle history failed")
	}
}
