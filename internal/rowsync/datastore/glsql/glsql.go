package glsql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	// Blank import to enable integration of github.com/denisenkom/go-mssqldb into database/sql
	_ "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	// Blank import to enable integration of github.com/lib/pq into database/sql
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/migrations"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
	// Blank import to enable integration of modernc.org/sqlite into database/sql
	_ "modernc.org/sqlite"
)

// OpenDB returns connection pool to the database.
func OpenDB(ctx context.Context, conf config.DB) (*sql.DB, error) {
	dialect, err := conf.StatementDialect()
	if err != nil {
		return nil, err
	}

	dsn, err := DSN(conf)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, err
	}

	switch {
	case conf.MaxOpenConns > 0:
		db.SetMaxOpenConns(conf.MaxOpenConns)
	case dialect == statement.SQLite:
		// concurrent writers on one file fail with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := db.PingContext(ctx); err != nil {
			errChan <- fmt.Errorf("send ping: %w", err)
		} else {
			errChan <- nil
		}
	}()

	select {
	// Because of the issue https://github.com/lib/pq/issues/620 we need to handle context
	// cancellation/timeout by ourselves.
	case <-ctx.Done():
		db.Close()
		return nil, ctx.Err()
	case err := <-errChan:
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// DSN compiles configuration into the data source name of the dialect's driver.
// An explicitly configured DSN is returned unchanged.
func DSN(db config.DB) (string, error) {
	if db.DSN != "" {
		return db.DSN, nil
	}

	dialect, err := db.StatementDialect()
	if err != nil {
		return "", err
	}

	switch dialect {
	case statement.Postgres:
		return postgresDSN(db), nil
	case statement.MySQL:
		return mysqlDSN(db), nil
	case statement.SQLServer:
		return sqlserverDSN(db), nil
	default:
		if db.DBName == "" {
			return "", fmt.Errorf("sqlite: database file is not set")
		}
		return db.DBName, nil
	}
}

func postgresDSN(db config.DB) string {
	var fields []string
	if db.Port > 0 {
		fields = append(fields, fmt.Sprintf("port=%d", db.Port))
	}

	for _, kv := range []struct{ key, value string }{
		{"host", db.Host},
		{"user", db.User},
		{"password", db.Password},
		{"dbname", db.DBName},
		{"sslmode", db.SSLMode},
		{"sslcert", db.SSLCert},
		{"sslkey", db.SSLKey},
		{"sslrootcert", db.SSLRootCert},
		{"binary_parameters", "yes"},
	} {
		if len(kv.value) == 0 {
			continue
		}

		kv.value = strings.ReplaceAll(kv.value, "'", `\'`)
		kv.value = strings.ReplaceAll(kv.value, " ", `\ `)

		fields = append(fields, kv.key+"="+kv.value)
	}

	return strings.Join(fields, " ")
}

func hostPort(db config.DB, defaultPort int) string {
	host := db.Host
	if host == "" {
		host = "localhost"
	}

	port := db.Port
	if port == 0 {
		port = defaultPort
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}

func mysqlDSN(db config.DB) string {
	cfg := mysql.NewConfig()
	cfg.User = db.User
	cfg.Passwd = db.Password
	cfg.Net = "tcp"
	cfg.Addr = hostPort(db, 3306)
	cfg.DBName = db.DBName
	cfg.ParseTime = true

	switch db.SSLMode {
	case "", "disable":
	case "require":
		cfg.TLSConfig = "skip-verify"
	default:
		cfg.TLSConfig = "true"
	}

	return cfg.FormatDSN()
}

func sqlserverDSN(db config.DB) string {
	query := url.Values{}
	if db.DBName != "" {
		query.Set("database", db.DBName)
	}

	switch db.SSLMode {
	case "":
	case "disable":
		query.Set("encrypt", "disable")
	default:
		query.Set("encrypt", "true")
		if db.SSLRootCert != "" {
			query.Set("certificate", db.SSLRootCert)
		}
	}

	u := url.URL{
		Scheme:   "sqlserver",
		Host:     hostPort(db, 1433),
		RawQuery: query.Encode(),
	}
	if db.User != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}

	return u.String()
}

// MigrationDialect returns the sql-migrate dialect name of the statement dialect.
func MigrationDialect(dialect statement.Dialect) (string, error) {
	switch dialect {
	case statement.Postgres:
		return "postgres", nil
	case statement.SQLite:
		return "sqlite3", nil
	case statement.MySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("migrations are not supported for %s", dialect)
	}
}

// Migrate will apply all pending SQL migrations.
func Migrate(db *sql.DB, dialect statement.Dialect, ignoreUnknown bool) (int, error) {
	name, err := MigrationDialect(dialect)
	if err != nil {
		return 0, err
	}

	migrationSet := migrate.MigrationSet{
		IgnoreUnknown: ignoreUnknown,
		TableName:     migrations.MigrationTableName,
	}

	migrationSource := &migrate.MemoryMigrationSource{
		Migrations: migrations.All(),
	}

	return migrationSet.Exec(db, name, migrationSource, migrate.Up)
}

// PlanMigrations returns the migrations that are not applied yet.
func PlanMigrations(db *sql.DB, dialect statement.Dialect, ignoreUnknown bool) ([]*migrate.PlannedMigration, error) {
	name, err := MigrationDialect(dialect)
	if err != nil {
		return nil, err
	}

	migrationSet := migrate.MigrationSet{
		IgnoreUnknown: ignoreUnknown,
		TableName:     migrations.MigrationTableName,
	}

	planned, _, err := migrationSet.PlanMigration(db, name, &migrate.MemoryMigrationSource{Migrations: migrations.All()}, migrate.Up, 0)
	return planned, err
}

// MigrateSome applies a single migration. It returns the number of applied
// migrations, which is 0 if the migration was applied before.
func MigrateSome(m *migrate.Migration, db *sql.DB, dialect statement.Dialect) (int, error) {
	name, err := MigrationDialect(dialect)
	if err != nil {
		return 0, err
	}

	// The other migrations are unknown to a single-migration source.
	migrationSet := migrate.MigrationSet{
		IgnoreUnknown: true,
		TableName:     migrations.MigrationTableName,
	}

	return migrationSet.ExecMax(db, name, &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{m}}, migrate.Up, 1)
}

// MigrationStatusRow represents an entry in the schema migrations table.
// If the migration is in the database but is not listed, Unknown will be true.
type MigrationStatusRow struct {
	Migrated  bool
	Unknown   bool
	AppliedAt time.Time
}

// MigrateStatus returns the status of database migrations. The key of the map
// indexes the migration ID.
func MigrateStatus(db *sql.DB, dialect statement.Dialect) (map[string]*MigrationStatusRow, error) {
	name, err := MigrationDialect(dialect)
	if err != nil {
		return nil, err
	}

	migrationSet := migrate.MigrationSet{
		TableName: migrations.MigrationTableName,
	}

	records, err := migrationSet.GetMigrationRecords(db, name)
	if err != nil {
		return nil, err
	}

	rows := make(map[string]*MigrationStatusRow)
	for _, m := range migrations.All() {
		rows[m.Id] = &MigrationStatusRow{}
	}

	for _, r := range records {
		if rows[r.Id] == nil {
			rows[r.Id] = &MigrationStatusRow{Unknown: true}
		}

		rows[r.Id].Migrated = true
		rows[r.Id].AppliedAt = r.AppliedAt
	}

	return rows, nil
}

// Querier is an abstraction on *sql.DB and *sql.Tx that allows to use their methods without awareness about actual type.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DestProvider returns list of pointers that will be used to scan values into.
type DestProvider interface {
	// To returns list of pointers.
	// It is not an idempotent operation and each call will return a new list.
	To() []interface{}
}

// ScanAll reads all data from 'rows' into holders provided by 'in'.
func ScanAll(rows *sql.Rows, in DestProvider) (err error) {
	for rows.Next() {
		if err = rows.Scan(in.To()...); err != nil {
			return err
		}
	}

	return rows.Err()
}
