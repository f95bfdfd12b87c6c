package glsql

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

// DB is a helper struct that should be used only for testing purposes.
type DB struct {
	*sql.DB
	// Name is a name of the database.
	Name string
	// Dialect is the dialect of the database.
	Dialect statement.Dialect
}

// MustExec executes `q` with `args` and verifies there are no errors.
func (db DB) MustExec(t testing.TB, q string, args ...interface{}) {
	t.Helper()
	_, err := db.DB.Exec(q, args...)
	require.NoError(t, err)
}

// RequireRowsInTable verifies that `tname` table has `n` amount of rows in it.
func (db DB) RequireRowsInTable(t testing.TB, tname string, n int) {
	t.Helper()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+tname).Scan(&count))
	require.Equal(t, n, count, "unexpected amount of rows in table: %d instead of %d", count, n)
}

// NewSQLiteDB creates an empty SQLite database in a temporary directory. The
// connection pool is closed on test cleanup.
func NewSQLiteDB(t testing.TB) DB {
	t.Helper()

	name := filepath.Join(t.TempDir(), "rowsync.sqlite")
	db, err := OpenDB(context.Background(), config.DB{Dialect: string(statement.SQLite), DBName: name})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	return DB{DB: db, Name: name, Dialect: statement.SQLite}
}

// NewPostgresDB returns a wrapper around a freshly created Postgres database.
// It uses env vars:
//   PGHOST - required, URL/socket/dir
//   PGPORT - required, binding port
//   PGUSER - optional, user - `$ whoami` would be used if not provided
// The test is skipped if PGHOST or PGPORT are not set. The database is
// dropped on test cleanup.
func NewPostgresDB(t testing.TB) DB {
	t.Helper()

	conf := GetDBConfig(t, "postgres")
	ctx := context.Background()

	admin, err := OpenDB(ctx, conf)
	require.NoError(t, err)
	defer func() { require.NoError(t, admin.Close()) }()

	database := "rowsync_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	_, err = admin.Exec("CREATE DATABASE " + database)
	require.NoError(t, err)

	conf.DBName = database
	db, err := OpenDB(ctx, conf)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, db.Close())

		admin, err := OpenDB(ctx, GetDBConfig(t, "postgres"))
		require.NoError(t, err)
		defer admin.Close()

		_, err = admin.Exec("DROP DATABASE " + database)
		require.NoError(t, err)
	})

	return DB{DB: db, Name: database, Dialect: statement.Postgres}
}

// GetDBConfig returns the database configuration determined by
// environment variables. See NewPostgresDB() for the list of variables.
func GetDBConfig(t testing.TB, database string) config.DB {
	t.Helper()

	host, hostFound := os.LookupEnv("PGHOST")
	port, portFound := os.LookupEnv("PGPORT")
	if !hostFound || !portFound {
		t.Skip("PGHOST and PGPORT env vars are required to connect to Postgres database")
	}

	portNumber, err := strconv.Atoi(port)
	require.NoError(t, err, "PGPORT must be a port number of the Postgres database listens for incoming connections")

	return config.DB{
		Dialect: string(statement.Postgres),
		Host:    host,
		Port:    portNumber,
		DBName:  database,
		SSLMode: "disable",
		User:    os.Getenv("PGUSER"),
	}
}
