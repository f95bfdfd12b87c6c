package main

import (
	"bytes"
	"flag"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/migrations"
)

func TestSubCmdSqlMigrate(t *testing.T) {
	conf, dbs := newTestConfig(t)
	migrationCt := len(migrations.All())

	var stdout bytes.Buffer
	migrateCmd := sqlMigrateSubcommand{w: &stdout, ignoreUnknown: true}
	require.NoError(t, migrateCmd.Exec(flag.NewFlagSet("", flag.PanicOnError), conf))

	for _, out := range []string{
		fmt.Sprintf("rowsync sql-migrate: migrations to apply: %d", migrationCt),
		"20240311094512_cycles_table: migrating",
		"20240311094512_cycles_table: applied (",
		fmt.Sprintf("rowsync sql-migrate: OK (applied %d migrations)", migrationCt),
	} {
		assert.Contains(t, stdout.String(), out)
	}
	dbs.source.RequireRowsInTable(t, "rowsync_cycles", 0)

	stdout.Reset()
	require.NoError(t, migrateCmd.Exec(flag.NewFlagSet("", flag.PanicOnError), conf))
	assert.Equal(t, "rowsync sql-migrate: all migrations are up\n", stdout.String())

	stdout.Reset()
	statusCmd := newSQLMigrateStatusSubcommand(&stdout)
	require.NoError(t, statusCmd.Exec(flag.NewFlagSet("", flag.PanicOnError), conf))
	assert.Contains(t, stdout.String(), "20240318140233_cycle_entities_table")
	assert.NotContains(t, stdout.String(), "| no ")
}

func TestSubCmdSync(t *testing.T) {
	conf, dbs := newTestConfig(t)

	var stdout bytes.Buffer
	require.NoError(t, newSQLMigrateSubCommand(&stdout).Exec(flag.NewFlagSet("", flag.PanicOnError), conf))

	stdout.Reset()
	syncCmd := newSyncSubcommand(&stdout)
	require.NoError(t, syncCmd.Exec(syncCmd.FlagSet(), conf))
	assert.Contains(t, stdout.String(), "Synced replica")
	assert.Contains(t, stdout.String(), "rowsync sync: OK (cycle ")
	dbs.target.RequireRowsInTable(t, "customers", 3)

	var pending int
	require.NoError(t, dbs.source.QueryRow(`SELECT COUNT(*) FROM customers WHERE sync_status <> 1`).Scan(&pending))
	require.Zero(t, pending)

	stdout.Reset()
	statusCmd := newStatusSubcommand(&stdout)
	flags := statusCmd.FlagSet()
	require.NoError(t, flags.Parse([]string{"-limit", "5"}))
	require.NoError(t, statusCmd.Exec(flags, conf))
	assert.Contains(t, stdout.String(), "Last error")

	var cycleID string
	require.NoError(t, dbs.source.QueryRow(`SELECT id FROM rowsync_cycles`).Scan(&cycleID))
	assert.Contains(t, stdout.String(), cycleID)
}

func TestSubCmdSync_targetFailure(t *testing.T) {
	conf, dbs := newTestConfig(t)
	conf.Sync.History = false
	dbs.target.MustExec(t, `DROP TABLE customers`)

	var stdout bytes.Buffer
	syncCmd := newSyncSubcommand(&stdout)
	err := syncCmd.Exec(syncCmd.FlagSet(), conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rowsync sync: fail")
	assert.Contains(t, stdout.String(), "error: ")
}

func TestSubCmdStatus_historyDisabled(t *testing.T) {
	conf, _ := newTestConfig(t)
	conf.Sync.History = false

	statusCmd := newStatusSubcommand(&bytes.Buffer{})
	require.EqualError(t, statusCmd.Exec(statusCmd.FlagSet(), conf), "rowsync status: cycle history is disabled")
}

func TestSubCmdSqlPing(t *testing.T) {
	conf, _ := newTestConfig(t)

	var stdout bytes.Buffer
	require.NoError(t, newSQLPingSubcommand(&stdout).Exec(flag.NewFlagSet("", flag.PanicOnError), conf))
	assert.Equal(t, "rowsync sql-ping: source: OK\nrowsync sql-ping: target replica: OK\n", stdout.String())

	conf.Targets[0].Database = config.DB{Dialect: "sqlite"}
	err := newSQLPingSubcommand(&stdout).Exec(flag.NewFlagSet("", flag.PanicOnError), conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rowsync sql-ping: target replica: fail")
}

func TestSubCmdCheckConfig(t *testing.T) {
	conf, _ := newTestConfig(t)

	var stdout bytes.Buffer
	cmd := newCheckConfigSubcommand(&stdout)
	require.NoError(t, cmd.Exec(cmd.FlagSet(), conf))
	assert.Equal(t, "rowsync check-config: OK (1 entities, 1 targets, complete status 1)\n", stdout.String())

	conf.Targets = append(conf.Targets, config.Target{Name: "warehouse", Database: config.DB{Dialect: "postgres"}})
	conf.Entities[0].Generated = []string{"id"}
	err := cmd.Exec(cmd.FlagSet(), conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rowsync check-config: fail")
}
