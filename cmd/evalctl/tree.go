package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/domusnext/eval/internal/domain"
)

func treeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show every version with its contexts and cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := newClient().Tree(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, tree)
			}
			renderTree(cmd.OutOrStdout(), tree)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw tree as JSON")
	return cmd
}

func renderTree(w io.Writer, tree []domain.Version) {
	if len(tree) == 0 {
		fmt.Fprintln(w, "No versions yet. Create one with 'evalctl version create'.")
		return
	}
	for _, v := range tree {
		fmt.Fprintf(w, "%s %s %s\n", color.New(color.Bold).Sprint(v.Label), color.HiBlackString(v.ID), agentURL(v))
		for _, c := range v.Contexts {
			fmt.Fprintf(w, "  %s %s (%d cases)\n", color.CyanString(c.Name), color.HiBlackString(c.ID), len(c.Cases))
			for _, cs := range c.Cases {
				fmt.Fprintf(w, "    %s %s %s\n", statusMarker(cs.LastRunSummary), cs.Title, color.HiBlackString(cs.ID))
			}
		}
	}
}

func agentURL(v domain.Version) string {
	if v.AgentBaseURL == nil || *v.AgentBaseURL == "" {
		return ""
	}
	return color.HiBlackString("-> " + *v.AgentBaseURL)
}

func statusMarker(summary *domain.RunSummary) string {
	if summary == nil {
		return color.HiBlackString("[never run]")
	}
	label := fmt.Sprintf("[%s]", summary.Status)
	if summary.DurationMs != nil {
		label = fmt.Sprintf("[%s %dms]", summary.Status, *summary.DurationMs)
	}
	switch summary.Status {
	case domain.ResultStatusSucceeded:
		return color.GreenString(label)
	case domain.ResultStatusFailed, domain.ResultStatusTimeout:
		return color.RedString(label)
	case domain.ResultStatusRunning:
		return color.YellowString(label)
	default:
		return color.HiBlackString(label)
	}
}
