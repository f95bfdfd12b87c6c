package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/datastore"
)

const statusCmdName = "status"

type statusSubcommand struct {
	w     io.Writer
	limit int
}

func newStatusSubcommand(w io.Writer) *statusSubcommand {
	return &statusSubcommand{w: w}
}

func (cmd *statusSubcommand) FlagSet() *flag.FlagSet {
	flags := flag.NewFlagSet(statusCmdName, flag.ExitOnError)
	flags.IntVar(&cmd.limit, "limit", 10, "number of cycles to list")
	return flags
}

func (cmd *statusSubcommand) Exec(flags *flag.FlagSet, conf config.Config) error {
	const subCmd = progname + " " + statusCmdName

	if !conf.Sync.History {
		return fmt.Errorf("%s: cycle history is disabled", subCmd)
	}

	dialect, err := conf.Source.StatementDialect()
	if err != nil {
		return err
	}

	db, clean, err := openDB(conf.Source)
	if err != nil {
		return err
	}
	defer clean()

	records, err := datastore.NewHistory(db, dialect).Recent(context.Background(), cmd.limit)
	if err != nil {
		return fmt.Errorf("%s: %w", subCmd, err)
	}

	if len(records) == 0 {
		fmt.Fprintf(cmd.w, "%s: no cycles recorded\n", subCmd)
		return nil
	}

	table := tablewriter.NewWriter(cmd.w)
	table.SetColWidth(60)
	table.SetHeader([]string{"Cycle", "Started", "Duration", "Loaded", "Synced", "Errors", "Last error"})
	table.SetAutoFormatHeaders(false)

	for _, rec := range records {
		table.Append([]string{
			rec.ID,
			rec.StartedAt.UTC().Format(timeFmt),
			rec.FinishedAt.Sub(rec.StartedAt).String(),
			strconv.Itoa(rec.Loaded),
			strconv.Itoa(rec.Synced),
			strconv.Itoa(rec.ErrorCount),
			rec.LastError,
		})
	}

	table.Render()

	return nil
}
