package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gitlab.com/gitlab-org/rowsync/internal/rowsync"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore"
)

const checkConfigCmdName = "check-config"

type checkConfigSubcommand struct {
	w io.Writer
}

func newCheckConfigSubcommand(w io.Writer) *checkConfigSubcommand {
	return &checkConfigSubcommand{w: w}
}

func (cmd *checkConfigSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(checkConfigCmdName, flag.ExitOnError)
}

// Exec registers every entity with a cycle whose databases are never
// connected to, which validates the entities against every dialect.
func (cmd *checkConfigSubcommand) Exec(flags *flag.FlagSet, conf config.Config) error {
	const subCmd = progname + " " + checkConfigCmdName

	sourceDialect, err := conf.Source.StatementDialect()
	if err != nil {
		return fmt.Errorf("%s: source: %w", subCmd, err)
	}

	targets := make([]datastore.Target, len(conf.Targets))
	for i, t := range conf.Targets {
		dialect, err := t.Database.StatementDialect()
		if err != nil {
			return fmt.Errorf("%s: target %q: %w", subCmd, t.Name, err)
		}
		targets[i] = datastore.Target{Index: i, Name: t.Name, Dialect: dialect}
	}

	resolver, err := conf.StaticResolver()
	if err != nil {
		return fmt.Errorf("%s: %w", subCmd, err)
	}

	cycle, err := rowsync.NewCycle(logger, datastore.NewSource(nil, sourceDialect), targets, rowsync.WithResolver(resolver))
	if err != nil {
		return fmt.Errorf("%s: %w", subCmd, err)
	}

	if err := registerEntities(context.Background(), cycle, conf); err != nil {
		return fmt.Errorf("%s: fail: %w", subCmd, err)
	}

	fmt.Fprintf(cmd.w, "%s: OK (%d entities, %d targets, complete status %d)\n", subCmd, len(conf.Entities), len(conf.Targets), cycle.Complete())
	return nil
}
