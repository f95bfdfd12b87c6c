package rowsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/rowsync/internal/dontpanic"
	"gitlab.com/gitlab-org/rowsync/internal/helper"
)

// CycleRunner performs a single replication cycle.
type CycleRunner interface {
	Run(ctx context.Context) (Result, error)
}

// Runner triggers replication cycles on a schedule.
type Runner struct {
	log   logrus.FieldLogger
	cycle CycleRunner
	// handleError is called with a possible error from a cycle.
	// If it returns an error, Run stops and returns with the error.
	handleError func(error) error
}

// NewRunner returns a Runner triggering cycle.
func NewRunner(log logrus.FieldLogger, cycle CycleRunner) *Runner {
	log = log.WithField("component", "runner")

	return &Runner{
		log:   log,
		cycle: cycle,
		handleError: func(err error) error {
			log.WithError(err).Error("replication cycle failed")
			sentry.CaptureException(err)
			return nil
		},
	}
}

// Run runs a cycle right away and then on each tick the Ticker emits. Run
// returns when the context is canceled, returning the error from the context.
func (r *Runner) Run(ctx context.Context, ticker helper.Ticker) error {
	r.log.Info("replication runner started")
	defer r.log.Info("replication runner stopped")

	defer ticker.Stop()

	if err := r.runOnce(ctx); err != nil {
		return err
	}

	for {
		ticker.Reset()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := r.runOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) error {
	var err error
	if perr := dontpanic.Try(r.log, func() { _, err = r.cycle.Run(ctx) }); perr != nil {
		err = InternalError.Wrap(perr)
	}

	if err == nil || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		return nil
	}

	if err := r.handleError(err); err != nil {
		return fmt.Errorf("handle cycle error: %w", err)
	}

	return nil
}
