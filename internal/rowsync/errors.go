package rowsync

import (
	"github.com/zeebo/errs"
)

var (
	// ConfigError is the class of errors that prevent an entity type from
	// being registered.
	ConfigError = errs.Class("configuration")
	// LoadError is the class of errors querying the source for rows to sync.
	LoadError = errs.Class("load")
	// SyncError is the class of errors writing rows to a target.
	SyncError = errs.Class("sync")
	// PersistError is the class of errors storing sync statuses in the source.
	PersistError = errs.Class("persist")
	// InternalError is the class of errors caused by broken invariants.
	InternalError = errs.Class("internal")
)

// CycleError is returned by Cycle.Run when any error was recorded during the
// cycle. It holds every underlying error.
type CycleError struct {
	Errors []error
}

func (e *CycleError) Error() string {
	return errs.Combine(e.Errors...).Error()
}

// Unwrap exposes every recorded error to errors.Is and errors.As.
func (e *CycleError) Unwrap() []error {
	return e.Errors
}
