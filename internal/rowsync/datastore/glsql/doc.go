// Package glsql contains the database/sql plumbing shared by the source and
// the targets: opening connection pools for every supported dialect, running
// migrations and scanning result sets.
//
// Most tests run against SQLite databases created in a temporary directory
// and need nothing else. Tests exercising Postgres specifics, like advisory
// locks, require a running Postgres instance and are skipped unless the
// PGHOST and PGPORT environment variables are set:
//
// $ PGHOST=localhost \
//   PGPORT=5432 \
//   PGUSER=postgres \
//   go test \
//    -v \
//    -count=1 \
//    gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/... \
//    -run=Postgres
package glsql
