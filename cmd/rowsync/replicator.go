package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/glsql"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/metrics"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
)

// replicator is a cycle wired to the configured databases.
type replicator struct {
	cycle     *rowsync.Cycle
	collector *metrics.Collector
	dbs       []*sql.DB
}

func newReplicator(ctx context.Context, logger logrus.FieldLogger, conf config.Config) (_ *replicator, err error) {
	r := &replicator{}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	sourceDialect, err := conf.Source.StatementDialect()
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	sourceDB, err := glsql.OpenDB(ctx, conf.Source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	r.dbs = append(r.dbs, sourceDB)

	targets := make([]datastore.Target, len(conf.Targets))
	for i, t := range conf.Targets {
		dialect, err := t.Database.StatementDialect()
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", t.Name, err)
		}

		db, err := glsql.OpenDB(ctx, t.Database)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", t.Name, err)
		}
		r.dbs = append(r.dbs, db)

		targets[i] = datastore.Target{Index: i, Name: t.Name, DB: db, Dialect: dialect}
	}

	static, err := conf.StaticResolver()
	if err != nil {
		return nil, err
	}
	resolver, err := schema.NewCachingResolver(static, len(conf.Entities))
	if err != nil {
		return nil, err
	}

	ledger := rowsync.NewErrorLedger()
	r.collector = metrics.NewCollector(conf.Sync.HistogramBuckets, ledger)

	opts := []rowsync.Option{
		rowsync.WithResolver(resolver),
		rowsync.WithErrorLedger(ledger),
		rowsync.WithObserver(r.collector),
	}
	if conf.Sync.AdvisoryLock {
		opts = append(opts, rowsync.WithAdvisoryLock())
	}
	if conf.Sync.History {
		opts = append(opts, rowsync.WithHistory(datastore.NewHistory(sourceDB, sourceDialect)))
	}

	r.cycle, err = rowsync.NewCycle(logger, datastore.NewSource(sourceDB, sourceDialect), targets, opts...)
	if err != nil {
		return nil, err
	}

	if err := registerEntities(ctx, r.cycle, conf); err != nil {
		return nil, err
	}

	return r, nil
}

func registerEntities(ctx context.Context, cycle *rowsync.Cycle, conf config.Config) error {
	for _, e := range conf.Entities {
		var opts []rowsync.EntityOption
		if e.InsertOnly {
			opts = append(opts, rowsync.WithInsertIfAbsent())
		}

		if err := rowsync.RegisterRecords(ctx, cycle, e.Name, opts...); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every database connection pool.
func (r *replicator) Close() {
	for _, db := range r.dbs {
		if err := db.Close(); err != nil {
			printfErr("sql close: %v\n", err)
		}
	}
	r.dbs = nil
}
