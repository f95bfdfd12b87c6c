package datastore

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/glsql"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

func TestIsTooManyParameters(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		err      error
		expected bool
	}{
		{desc: "nil", err: nil},
		{desc: "unrelated", err: errors.New("connection refused")},
		{desc: "sentinel", err: fmt.Errorf("build: %w", statement.ErrTooManyParameters), expected: true},
		{desc: "lib/pq client side", err: errors.New("pq: got 70000 parameters but PostgreSQL only supports 65535 parameters"), expected: true},
		{desc: "postgres", err: &pq.Error{Code: "54000", Message: "too many parameters"}, expected: true},
		{desc: "postgres other limit", err: &pq.Error{Code: "54000", Message: "index row size exceeds maximum"}},
		{desc: "mysql", err: &mysql.MySQLError{Number: 1390, Message: "Prepared statement contains too many placeholders"}, expected: true},
		{desc: "mysql duplicate", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}},
		{desc: "sqlserver", err: mssql.Error{Number: 8003, Message: "The incoming request has too many parameters."}, expected: true},
		{desc: "sqlserver wrapped", err: fmt.Errorf("exec: %w", mssql.Error{Number: 8003}), expected: true},
		{desc: "sqlserver deadlock", err: mssql.Error{Number: 1205}},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			require.Equal(t, tc.expected, IsTooManyParameters(tc.err))

			classified := classify(tc.err)
			require.Equal(t, tc.expected, errors.Is(classified, statement.ErrTooManyParameters))
			if tc.err != nil {
				require.Contains(t, classified.Error(), tc.err.Error())
			}
		})
	}
}

func TestIsTooManyParameters_sqlite(t *testing.T) {
	db := glsql.NewSQLiteDB(t)

	const n = 40000
	args := make([]interface{}, n)
	for i := range args {
		args[i] = i
	}

	_, err := db.Exec("SELECT "+strings.TrimSuffix(strings.Repeat("?,", n), ","), args...)
	require.Error(t, err)
	require.True(t, IsTooManyParameters(err), err.Error())
}
