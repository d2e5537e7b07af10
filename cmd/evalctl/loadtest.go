package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/domusnext/eval/internal/loadtest"
)

func loadtestCmd() *cobra.Command {
	var scenarioPath, outPath, target string
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Fire bursts of chat requests at the agent and record latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario := loadtest.DefaultScenario()
			if scenarioPath != "" {
				var err error
				if scenario, err = loadtest.LoadScenario(scenarioPath); err != nil {
					return err
				}
			}
			if target != "" {
				scenario.TargetURL = target
			}

			logger := newLogger()
			defer logger.Sync()

			runner, err := loadtest.NewRunner(scenario, nil, logger)
			if err != nil {
				return err
			}
			summary, runErr := runner.Run(cmd.Context())
			if summary != nil {
				if err := loadtest.WriteSummary(outPath, summary); err != nil {
					return err
				}
				printSummary(cmd, summary, outPath)
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringVar(&scenarioPath, "scenario", "", "YAML scenario file")
	f.StringVar(&outPath, "out", "load_test_results.json", "Where to write the summary")
	f.StringVar(&target, "target", "", "Override the scenario target URL")
	return cmd
}

func printSummary(cmd *cobra.Command, s *loadtest.Summary, path string) {
	out := cmd.OutOrStdout()
	ts := s.TestSummary
	fmt.Fprintln(out, color.New(color.Bold).Sprint("Load test summary"))
	fmt.Fprintf(out, "  total requests:     %d\n", ts.TotalRequests)
	fmt.Fprintf(out, "  completed:          %s\n", color.GreenString("%d", ts.CompletedRequests))
	fmt.Fprintf(out, "  errors:             %s\n", color.RedString("%d", ts.ErrorCount))
	fmt.Fprintf(out, "  success rate:       %s\n", ts.SuccessRate)
	fmt.Fprintf(out, "  avg response time:  %.2fms\n", s.Performance.AverageResponseTime)
	fmt.Fprintf(out, "  min response time:  %dms\n", s.Performance.MinResponseTime)
	fmt.Fprintf(out, "  max response time:  %dms\n", s.Performance.MaxResponseTime)
	fmt.Fprintf(out, "  results written to: %s\n", path)
}
