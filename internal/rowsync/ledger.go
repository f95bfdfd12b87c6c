package rowsync

import (
	"sync"
	"sync/atomic"
)

// ErrorThreshold is the number of failures after which a row is no longer
// written to a target.
const ErrorThreshold = 3

type ledgerKey struct {
	entity string
	hash   int32
	target int
}

// ErrorLedger counts per-row write failures for every target. Rows are
// reloaded every cycle, so they are identified by the hash of their key.
// Counts are never reset: a row that failed more than ErrorThreshold times
// against a target is skipped for that target until the process restarts.
type ErrorLedger struct {
	counts sync.Map
}

// NewErrorLedger returns an empty ledger.
func NewErrorLedger() *ErrorLedger {
	return &ErrorLedger{}
}

// Increment records a failure and returns the new count.
func (l *ErrorLedger) Increment(entity string, hash int32, target int) int64 {
	v, _ := l.counts.LoadOrStore(ledgerKey{entity: entity, hash: hash, target: target}, new(int64))
	return atomic.AddInt64(v.(*int64), 1)
}

// Failures returns the number of recorded failures.
func (l *ErrorLedger) Failures(entity string, hash int32, target int) int64 {
	v, ok := l.counts.Load(ledgerKey{entity: entity, hash: hash, target: target})
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v.(*int64))
}

// Exceeded reports whether the row must be skipped for the target.
func (l *ErrorLedger) Exceeded(entity string, hash int32, target int) bool {
	return l.Failures(entity, hash, target) > ErrorThreshold
}

// Len returns the number of row/target pairs with recorded failures.
func (l *ErrorLedger) Len() int {
	n := 0
	l.counts.Range(func(interface{}, interface{}) bool {
		n++
		return true
	})
	return n
}
