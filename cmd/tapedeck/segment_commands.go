package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tapedeck/internal/api"
	"tapedeck/internal/daemonctl"
	"tapedeck/internal/ipc"
	"tapedeck/internal/logging"
)

func newSegmentsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "segments",
		Aliases: []string{"ls"},
		Short:   "List recorded segments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.SegmentListResponse
			err := ctx.withClient(func(client *ipc.Client) error {
				segs, err := client.Segments()
				if err != nil {
					return err
				}
				resp = *segs
				return nil
			})
			if errors.Is(err, errDaemonOffline) {
				resp, err = daemonctl.OfflineSegments(ctx.configValue())
			}
			if err != nil {
				return err
			}
			resp.Segments = api.SortSegmentsNewestFirst(resp.Segments)
			if asJSON {
				return writeJSON(cmd, resp)
			}
			printSegments(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print segments as JSON")
	return cmd
}

func printSegments(out io.Writer, resp api.SegmentListResponse) {
	if len(resp.Segments) == 0 {
		fmt.Fprintln(out, "No segments recorded")
		return
	}
	rows := make([][]string, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		live := ""
		if seg.Live {
			live = "recording"
		}
		rows = append(rows, []string{seg.Name, formatBytes(seg.SizeBytes), formatTimestamp(seg.CreatedAt), live})
	}
	footer := []string{fmt.Sprintf("%d files", len(resp.Segments)), formatBytes(resp.TotalBytes)}
	fmt.Fprint(out, renderTable([]tableColumn{
		{title: "Segment"},
		{title: "Size", align: alignRight},
		{title: "Created"},
		{title: "State"},
	}, rows, footer))
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention caps now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.PruneResponse
			err := ctx.withClient(func(client *ipc.Client) error {
				result, err := client.Prune()
				if err != nil {
					return err
				}
				resp = *result
				return nil
			})
			if errors.Is(err, errDaemonOffline) {
				resp, err = daemonctl.OfflinePrune(cmd.Context(), ctx.configValue(), logging.NewNop())
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			printPrune(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the prune result as JSON")
	return cmd
}

func printPrune(out io.Writer, resp api.PruneResponse) {
	if len(resp.Deleted) == 0 {
		fmt.Fprintln(out, "Nothing to prune")
	}
	var freed int64
	for _, e := range resp.Deleted {
		fmt.Fprintf(out, "Deleted %s (%s, %s)\n", e.Path, formatBytes(e.SizeBytes), e.Reason)
		freed += e.SizeBytes
	}
	for _, path := range resp.Failed {
		fmt.Fprintf(out, "Failed to delete %s\n", path)
	}
	fmt.Fprintf(out, "Freed %s; %d segments (%s) remain\n",
		formatBytes(freed), resp.Retention.Remaining, formatBytes(resp.Retention.TotalBytes))
}
