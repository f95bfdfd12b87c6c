// Package dontpanic runs functions with panic recovery. Recovered panics are
// sent to Sentry, logged and returned as errors.
package dontpanic

import (
	"errors"
	"fmt"

	sentry "github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// ErrPanic is wrapped by every error returned for a recovered panic.
var ErrPanic = errors.New("recovered panic")

// Try runs fn and recovers a panic it raises.
func Try(logger logrus.FieldLogger, fn func()) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}

		if e, ok := recovered.(error); ok {
			err = fmt.Errorf("%w: %w", ErrPanic, e)
		} else {
			err = fmt.Errorf("%w: %v", ErrPanic, recovered)
		}

		entry := logger.WithError(err)
		if id := sentry.CaptureException(err); id != nil && *id != "" {
			entry = entry.WithField("sentry_id", *id)
		}
		entry.Error("dontpanic: recovered value")
	}()

	fn()
	return nil
}

// Go runs fn in a goroutine with panic recovery. It is meant for
// fire-and-forget goroutines nobody waits on.
func Go(logger logrus.FieldLogger, fn func()) {
	go func() { _ = Try(logger, fn) }()
}
