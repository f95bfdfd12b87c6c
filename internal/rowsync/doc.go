// Package rowsync replicates rows of registered entity types from one
// authoritative source database to a set of independent target databases.
//
// Every replicated table carries an integer sync status column in the source.
// Bit i of the status is set once the current version of the row has been
// written to target i, so the status of a fully replicated row is
// 2^len(targets) - 1. Applications reset the status to 0 whenever they
// modify a row. A Cycle loads the rows that are not complete, writes them to
// every target concurrently and stores the new statuses back in the source.
// Interrupted or partially failed cycles are resumed by the next one without
// re-sending rows a target already acknowledged.
//
// Writes to a target escalate through three attempts: a single statement
// per kind of write, parameter-bounded chunks when the store rejects the
// statement for binding too many parameters, and finally one statement per
// row. Rows failing repeatedly against a target are recorded in an
// ErrorLedger and skipped for that target by later cycles.
package rowsync
