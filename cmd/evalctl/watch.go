package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/workspace"
)

func watchCmd() *cobra.Command {
	var versionID, runID string
	var untilComplete bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream run progress events of a version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching version %s (Ctrl-C to stop)\n", versionID)
			return newClient().Watch(cmd.Context(), versionID, func(ev domain.FeedEvent) error {
				if runID != "" && ev.RunID != runID {
					return nil
				}
				fmt.Fprintln(out, formatEvent(ev))
				if untilComplete && ev.Type == domain.FeedEventRunCompleted {
					return workspace.ErrStopWatching
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&versionID, "version", "", "Version ID (required)")
	f.StringVar(&runID, "run", "", "Only show events of this run")
	f.BoolVar(&untilComplete, "until-complete", false, "Exit after the first run.completed event")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func formatEvent(ev domain.FeedEvent) string {
	ts := time.UnixMilli(ev.Ts).Format("15:04:05.000")
	switch ev.Type {
	case domain.FeedEventRunQueued:
		return fmt.Sprintf("%s %s run %s (%d cases)", ts, color.CyanString("queued"), ev.RunID, ev.CaseCount)
	case domain.FeedEventRunCompleted:
		return fmt.Sprintf("%s %s run %s", ts, color.GreenString("completed"), ev.RunID)
	default:
		line := fmt.Sprintf("%s %s %s", ts, statusMarker(&domain.RunSummary{Status: ev.Status, DurationMs: ev.LatencyMs}), ev.CaseID)
		if ev.Error != "" {
			line += " " + color.RedString(ev.Error)
		}
		return line
	}
}
