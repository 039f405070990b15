package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/ipc"
	"tapedeck/internal/logging"
	"tapedeck/internal/logs"
)

type logsOptions struct {
	follow    bool
	lines     int
	raw       bool
	component string
	cycle     string
	level     string
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logsOptions
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			err := ctx.withClient(func(client *ipc.Client) error {
				return tailViaIPC(cmd.Context(), client, out, opts)
			})
			if !errors.Is(err, errDaemonOffline) {
				return err
			}
			cfg := ctx.configValue()
			return tailLocal(cmd.Context(), filepath.Join(cfg.Paths.StateDir, "tapedeck.log"), out, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print JSON lines as written")
	cmd.Flags().StringVar(&opts.component, "component", "", "Only show lines from this component")
	cmd.Flags().StringVar(&opts.cycle, "cycle", "", "Only show lines for this capture cycle (prefix match)")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level to show (debug, info, warn, error)")
	return cmd
}

func (o logsOptions) initialWindow() (int64, int) {
	if o.lines <= 0 {
		return 0, 0
	}
	return -1, o.lines
}

func (o logsOptions) filter() logs.Filter {
	filter := logs.Filter{Component: o.component, CycleID: o.cycle}
	if level := strings.TrimSpace(o.level); level != "" {
		parsed := logging.ParseLevel(level)
		filter.MinLevel = &parsed
	}
	return filter
}

func tailViaIPC(ctx context.Context, client *ipc.Client, out io.Writer, opts logsOptions) error {
	offset, limit := opts.initialWindow()
	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     opts.follow,
			WaitMillis: 1000,
			Component:  opts.component,
			CycleID:    opts.cycle,
			MinLevel:   opts.level,
		})
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		printed = printLogLines(out, resp.Lines, opts.raw) || printed
		offset = resp.Offset
		limit = 0
		if !opts.follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func tailLocal(ctx context.Context, path string, out io.Writer, opts logsOptions) error {
	offset, limit := opts.initialWindow()
	printed := false
	for {
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: offset,
			Limit:  limit,
			Follow: opts.follow,
			Wait:   time.Second,
			Filter: opts.filter(),
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		printed = printLogLines(out, result.Lines, opts.raw) || printed
		offset = result.Offset
		limit = 0
		if !opts.follow || ctx.Err() != nil {
			if !printed && !opts.follow {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
	}
}

func printLogLines(out io.Writer, lines []string, raw bool) bool {
	for _, line := range lines {
		if raw {
			fmt.Fprintln(out, line)
			continue
		}
		fmt.Fprintln(out, formatLogLine(line))
	}
	return len(lines) > 0
}

// formatLogLine renders a JSON log line as a single readable line. Lines
// that do not decode are returned unchanged.
func formatLogLine(line string) string {
	entry, ok := logs.ParseLine(line)
	if !ok {
		return line
	}
	var b strings.Builder
	if !entry.Time.IsZero() {
		b.WriteString(entry.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", entry.Level.String())
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	if entry.CycleID != "" {
		fmt.Fprintf(&b, " (%s)", shortID(entry.CycleID))
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Fields[key])
	}
	return b.String()
}
