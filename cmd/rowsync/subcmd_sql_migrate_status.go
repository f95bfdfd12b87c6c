package main

import (
	"flag"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore/glsql"
)

const (
	sqlMigrateStatusCmdName = "sql-migrate-status"
)

type sqlMigrateStatusSubcommand struct {
	w io.Writer
}

func newSQLMigrateStatusSubcommand(w io.Writer) *sqlMigrateStatusSubcommand {
	return &sqlMigrateStatusSubcommand{w: w}
}

func (s *sqlMigrateStatusSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(sqlMigrateStatusCmdName, flag.ExitOnError)
}

func (s *sqlMigrateStatusSubcommand) Exec(flags *flag.FlagSet, conf config.Config) error {
	dialect, err := conf.Source.StatementDialect()
	if err != nil {
		return err
	}

	db, clean, err := openDB(conf.Source)
	if err != nil {
		return err
	}
	defer clean()

	migrations, err := glsql.MigrateStatus(db, dialect)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(migrations))
	for id := range migrations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := tablewriter.NewWriter(s.w)
	table.SetHeader([]string{"Migration", "Applied"})
	table.SetColWidth(60)

	for _, id := range ids {
		m := migrations[id]
		var applied string

		switch {
		case m.Unknown:
			applied = "unknown migration"
		case m.Migrated:
			applied = m.AppliedAt.String()
		default:
			applied = "no"
		}

		table.Append([]string{id, applied})
	}

	table.Render()

	return nil
}
