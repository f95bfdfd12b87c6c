package statement

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/schema"
)

// Dialect selects the SQL flavour statements are rendered in.
type Dialect string

const (
	// Postgres renders statements for PostgreSQL (lib/pq).
	Postgres Dialect = "postgres"
	// SQLite renders statements for SQLite 3.24+.
	SQLite Dialect = "sqlite"
	// MySQL renders statements for MySQL and MariaDB.
	MySQL Dialect = "mysql"
	// SQLServer renders statements for Microsoft SQL Server.
	SQLServer Dialect = "sqlserver"
)

// ParseDialect validates a dialect name coming from configuration.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case Postgres, SQLite, MySQL, SQLServer:
		return d, nil
	case "postgresql", "pq":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	case "mssql":
		return SQLServer, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", name)
	}
}

// Driver is the database/sql driver name registered for the dialect.
func (d Dialect) Driver() string {
	switch d {
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	case SQLServer:
		return "sqlserver"
	default:
		return "postgres"
	}
}

// Quote quotes an identifier. A schema-qualified name must be quoted part by part.
func (d Dialect) Quote(ident string) string {
	switch d {
	case MySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case SQLServer:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// QuoteTable quotes a possibly schema-qualified table.
func (d Dialect) QuoteTable(t schema.Table) string {
	if t.Schema == "" {
		return d.Quote(t.Name)
	}
	return d.Quote(t.Schema) + "." + d.Quote(t.Name)
}

// Placeholder renders the n-th (1-based) bound parameter.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case Postgres:
		return "$" + strconv.Itoa(n)
	case SQLServer:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Null is the value bound for a NULL of the given column type. SQL Server
// can't infer the type of an untyped NULL inside a VALUES list for a binary
// column, so a typed nil is bound instead.
func (d Dialect) Null(ct schema.ColumnType) interface{} {
	if d == SQLServer && ct == schema.TypeBinary {
		return []byte(nil)
	}
	return nil
}

// valuesSource reports whether the dialect writes the VALUES list straight
// into the table, as opposed to merging from it as a derived relation.
func (d Dialect) valuesSource() bool {
	return d != SQLServer
}
