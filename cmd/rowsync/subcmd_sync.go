package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
)

const syncCmdName = "sync"

type syncSubcommand struct {
	w io.Writer
}

func newSyncSubcommand(w io.Writer) *syncSubcommand {
	return &syncSubcommand{w: w}
}

func (cmd *syncSubcommand) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet(syncCmdName, flag.ExitOnError)
}

func (cmd *syncSubcommand) Exec(flags *flag.FlagSet, conf config.Config) error {
	const subCmd = progname + " " + syncCmdName

	ctx := context.Background()

	r, err := newReplicator(ctx, logger, conf)
	if err != nil {
		return fmt.Errorf("%s: %w", subCmd, err)
	}
	defer r.Close()

	res, err := r.cycle.Run(ctx)
	if res.Skipped {
		fmt.Fprintf(cmd.w, "%s: skipped, another cycle is running\n", subCmd)
		return nil
	}

	writeResult(cmd.w, res, conf.TargetNames())

	if err != nil {
		return fmt.Errorf("%s: fail: %w", subCmd, err)
	}

	fmt.Fprintf(cmd.w, "%s: OK (cycle %s)\n", subCmd, res.ID)
	return nil
}

func writeResult(w io.Writer, res rowsync.Result, targets []string) {
	entities := append([]rowsync.EntityResult(nil), res.Entities...)
	sort.Slice(entities, func(i, j int) bool { return entities[i].Entity < entities[j].Entity })

	header := []string{"Entity", "Loaded"}
	for _, t := range targets {
		header = append(header, "Synced "+t)
	}
	header = append(header, "Skipped", "Errors")

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)

	for _, e := range entities {
		row := []string{e.Entity, strconv.Itoa(e.Loaded)}
		for _, t := range targets {
			row = append(row, strconv.Itoa(e.Synced[t]))
		}
		row = append(row, strconv.Itoa(e.Skipped), strconv.Itoa(len(e.Errors)))
		table.Append(row)
	}

	table.Render()

	for _, err := range res.Errors() {
		fmt.Fprintf(w, "error: %s\n", strings.TrimSpace(err.Error()))
	}
}
