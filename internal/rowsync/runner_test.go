package rowsync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/rowsync/internal/helper"
)

type cycleFunc func(context.Context) (Result, error)

func (f cycleFunc) Run(ctx context.Context) (Result, error) { return f(ctx) }

func TestRunner_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	logger, hook := test.NewNullLogger()
	runner := NewRunner(logger, cycleFunc(func(context.Context) (Result, error) {
		if atomic.AddInt32(&runs, 1) == 2 {
			return Result{}, &CycleError{Errors: []error{SyncError.New("replica down")}}
		}
		return Result{}, nil
	}))

	err := runner.Run(ctx, helper.NewCountTicker(2, cancel))
	require.Equal(t, context.Canceled, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&runs), "first run is immediate")

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Message == "replication cycle failed" {
			failures++
		}
	}
	require.Equal(t, 1, failures)
}

func TestRunner_Run_recoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	logger, _ := test.NewNullLogger()
	runner := NewRunner(logger, cycleFunc(func(context.Context) (Result, error) {
		if atomic.AddInt32(&runs, 1) == 1 {
			panic("boom")
		}
		return Result{}, nil
	}))

	var handled []error
	runner.handleError = func(err error) error {
		handled = append(handled, err)
		return nil
	}

	require.Equal(t, context.Canceled, runner.Run(ctx, helper.NewCountTicker(1, cancel)))
	require.Equal(t, int32(2), atomic.LoadInt32(&runs))
	require.Len(t, handled, 1)
	require.True(t, InternalError.Has(handled[0]))
}

func TestRunner_Run_handleErrorStops(t *testing.T) {
	stop := errors.New("stop")

	logger, _ := test.NewNullLogger()
	runner := NewRunner(logger, cycleFunc(func(context.Context) (Result, error) {
		return Result{}, SyncError.New("replica down")
	}))
	runner.handleError = func(error) error { return stop }

	ticker := helper.NewManualTicker()
	err := runner.Run(context.Background(), ticker)
	require.ErrorIs(t, err, stop)
}
