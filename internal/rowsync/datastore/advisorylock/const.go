// Package advisorylock contains the lock IDs of all advisory locks used
// by rowsync.
package advisorylock

const (
	// Cycle is an advisory lock held on the source for the duration of a replication cycle.
	Cycle = 58213601
)
