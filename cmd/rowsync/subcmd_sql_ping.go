package main

import (
	"flag"
	"fmt"
	"io"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
)

const (
	sqlPingCmdName = "sql-ping"
)

type sqlPingSubcommand struct {
	w io.Writer
}

func newSQLPingSubcommand(w io.Writer) *sqlPingSubcommand {
	return &sqlPingSubcommand{w: w}
}

func (s *sqlPingSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(sqlPingCmdName, flag.ExitOnError)
}

func (s *sqlPingSubcommand) Exec(flags *flag.FlagSet, conf config.Config) error {
	const subCmd = progname + " " + sqlPingCmdName

	ping := func(name string, dbConf config.DB) error {
		_, clean, err := openDB(dbConf)
		if err != nil {
			return fmt.Errorf("%s: %s: fail: %v", subCmd, name, err)
		}
		clean()

		fmt.Fprintf(s.w, "%s: %s: OK\n", subCmd, name)
		return nil
	}

	if err := ping("source", conf.Source); err != nil {
		return err
	}

	for _, t := range conf.Targets {
		if err := ping("target "+t.Name, t.Database); err != nil {
			return err
		}
	}

	return nil
}
