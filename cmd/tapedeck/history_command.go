package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"tapedeck/internal/api"
	"tapedeck/internal/daemonctl"
	"tapedeck/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	var evictions bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled capture cycles and segment evictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.HistoryResponse
			err := ctx.withClient(func(client *ipc.Client) error {
				hist, err := client.History(limit)
				if err != nil {
					return err
				}
				resp = *hist
				return nil
			})
			if errors.Is(err, errDaemonOffline) {
				resp, err = daemonctl.OfflineHistory(cmd.Context(), ctx.configValue(), limit)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			printHistorySummary(out, resp.Summary)
			if evictions {
				printEvictions(out, resp.Evictions)
			} else {
				printCycles(out, resp.Cycles)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show (0 for all)")
	cmd.Flags().BoolVar(&evictions, "evictions", false, "Show segment evictions instead of cycles")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print history as JSON")
	return cmd
}

func printHistorySummary(out io.Writer, summary api.HistorySummary) {
	outcomes := make([]string, 0, len(summary.Outcomes))
	for outcome := range summary.Outcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	fmt.Fprintf(out, "%d cycles", summary.Cycles)
	for _, outcome := range outcomes {
		fmt.Fprintf(out, ", %d %s", summary.Outcomes[outcome], outcome)
	}
	fmt.Fprintf(out, "; %d evictions (%s)\n", summary.Evictions, formatBytes(summary.EvictedBytes))
}

func printCycles(out io.Writer, cycles []api.Cycle) {
	if len(cycles) == 0 {
		fmt.Fprintln(out, "No cycles journaled")
		return
	}
	rows := make([][]string, 0, len(cycles))
	for _, c := range cycles {
		exit := "-"
		if c.PID > 0 {
			exit = fmt.Sprintf("%d", c.ExitCode)
		}
		rows = append(rows, []string{
			shortID(c.ID),
			formatTimestamp(c.StartedAt),
			formatMillis(c.DurationMS),
			exit,
			valueOrDash(c.ShutdownStage),
			api.CycleOutcomeLabel(c),
		})
	}
	fmt.Fprint(out, renderTable([]tableColumn{
		{title: "Cycle"},
		{title: "Started"},
		{title: "Duration", align: alignRight},
		{title: "Exit", align: alignRight},
		{title: "Stage"},
		{title: "Outcome"},
	}, rows, nil))
}

func printEvictions(out io.Writer, evictions []api.Eviction) {
	if len(evictions) == 0 {
		fmt.Fprintln(out, "No evictions journaled")
		return
	}
	rows := make([][]string, 0, len(evictions))
	for _, e := range evictions {
		rows = append(rows, []string{e.Path, formatBytes(e.SizeBytes), e.Reason, formatTimestamp(e.DeletedAt)})
	}
	fmt.Fprint(out, renderTable([]tableColumn{
		{title: "Segment"},
		{title: "Size", align: alignRight},
		{title: "Reason"},
		{title: "Deleted"},
	}, rows, nil))
}
