package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/workspace"
)

var runFlags struct {
	versionID   string
	contextID   string
	caseID      string
	contextIDs  []string
	caseIDs     []string
	maxCases    int
	concurrency int
	configPath  string
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Queue a run for a version, context, case or selection",
		Long: `Queue a run against the agent configured on a version.

Scope:
  (default)              every case of the version
  --context ID           every case of one context
  --context ID --case ID one case
  --contexts A,B --cases C
                         the union of the listed contexts and cases

--max-cases and --concurrency are remembered for later runs.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	f := cmd.Flags()
	f.StringVar(&runFlags.versionID, "version", "", "Version ID (required)")
	f.StringVar(&runFlags.contextID, "context", "", "Run one context")
	f.StringVar(&runFlags.caseID, "case", "", "Run one case (requires --context)")
	f.StringSliceVar(&runFlags.contextIDs, "contexts", nil, "Run a selection of contexts")
	f.StringSliceVar(&runFlags.caseIDs, "cases", nil, "Run a selection of cases")
	f.IntVar(&runFlags.maxCases, "max-cases", 0, "Maximum cases per run")
	f.IntVar(&runFlags.concurrency, "concurrency", 0, "Concurrent agent requests")
	f.StringVar(&runFlags.configPath, "run-config", runConfigPath(), "File that stores run settings")

	_ = cmd.MarkFlagRequired("version")
	cmd.MarkFlagsMutuallyExclusive("context", "contexts")
	cmd.MarkFlagsMutuallyExclusive("case", "cases")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	scope, err := runScope()
	if err != nil {
		return err
	}

	cfg := workspace.LoadRunConfig(runFlags.configPath)
	changed := false
	if cmd.Flags().Changed("max-cases") {
		cfg.MaxCasesPerRun = runFlags.maxCases
		changed = true
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.ConcurrentRequests = runFlags.concurrency
		changed = true
	}
	cfg = cfg.Clamp()
	if changed {
		if err := workspace.SaveRunConfig(runFlags.configPath, cfg); err != nil {
			newLogger().Sugar().Warnf("failed to save run config: %v", err)
		}
	}

	session := workspace.NewSession(newClient())
	if err := session.Refresh(cmd.Context()); err != nil {
		return err
	}
	state := session.Dispatch(workspace.SelectVersion{VersionID: runFlags.versionID})
	if state.ActiveVersionID != runFlags.versionID {
		return fmt.Errorf("version %s not found", runFlags.versionID)
	}
	session.Dispatch(workspace.SetRunConfig{Config: cfg})

	ticket, err := session.Run(cmd.Context(), scope)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s run %s with %d case(s)\n", color.GreenString("queued"), ticket.RunID, ticket.CaseCount)
	fmt.Fprintf(out, "Follow progress with 'evalctl watch --version %s' or fetch 'evalctl results %s'.\n", runFlags.versionID, ticket.RunID)
	return nil
}

func runScope() (workspace.RunScope, error) {
	switch {
	case len(runFlags.contextIDs) > 0 || len(runFlags.caseIDs) > 0:
		return workspace.SelectionScope(runFlags.contextIDs, runFlags.caseIDs), nil
	case runFlags.caseID != "":
		if runFlags.contextID == "" {
			return workspace.RunScope{}, errors.New("--case requires --context")
		}
		return workspace.CaseScope(runFlags.contextID, runFlags.caseID), nil
	case runFlags.contextID != "":
		return workspace.ContextScope(runFlags.contextID), nil
	default:
		return workspace.VersionScope(), nil
	}
}

func resultsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "results <run-id>",
		Short: "Show the results recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := newClient().RunResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, results)
			}
			renderResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw results as JSON")
	return cmd
}

func renderResults(w io.Writer, results []domain.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results for this run.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tSTATUS\tLATENCY\tERROR")
	for _, r := range results {
		latency := "-"
		if r.LatencyMs != nil {
			latency = fmt.Sprintf("%dms", *r.LatencyMs)
		}
		errText := ""
		if r.Error != nil {
			errText = *r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.CaseID, statusMarker(&domain.RunSummary{Status: r.Status}), latency, errText)
	}
	tw.Flush()
}
