package datastore

import (
	"errors"
	"fmt"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
	"modernc.org/sqlite"
)

const (
	// mysqlTooManyPlaceholders is ER_PS_MANY_PARAM.
	mysqlTooManyPlaceholders = 1390
	// mssqlTooManyParameters is raised when a request exceeds 2100 parameters.
	mssqlTooManyParameters = 8003
)

// IsTooManyParameters reports whether the driver rejected a statement because
// it binds more parameters than the store accepts.
func IsTooManyParameters(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, statement.ErrTooManyParameters) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "54000" && strings.Contains(pqErr.Message, "parameters") {
		return true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlTooManyPlaceholders {
		return true
	}

	var mssqlErr mssql.Error
	if errors.As(err, &mssqlErr) && mssqlErr.Number == mssqlTooManyParameters {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && strings.Contains(sqliteErr.Error(), "too many SQL variables") {
		return true
	}

	// lib/pq refuses to send more than 65535 parameters before contacting the server.
	return strings.Contains(err.Error(), "only supports 65535 parameters")
}

// classify translates driver errors the sync ladder reacts to into their
// sentinel errors. Other errors are returned unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, statement.ErrTooManyParameters) {
		return err
	}

	if IsTooManyParameters(err) {
		return fmt.Errorf("%w: %v", statement.ErrTooManyParameters, err)
	}

	return err
}
