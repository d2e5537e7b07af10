// evalctl manages evaluation fixtures and runs against an evaluation server.
//
// Usage:
//
//	evalctl tree
//	evalctl version create --label v2
//	evalctl case create --context <id> --message "hello"
//	evalctl run --version <id> [--context <id>] [--case <id>]
//	evalctl watch --version <id>
//	evalctl loadtest --scenario scenario.yaml --out results.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/logging"
	"github.com/domusnext/eval/internal/workspace"
)

var globalFlags struct {
	server  string
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "evalctl",
		Short:         "Manage evaluation versions, contexts, cases and runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	defaultServer := os.Getenv("EVAL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	f := cmd.PersistentFlags()
	f.StringVar(&globalFlags.server, "server", defaultServer, "Evaluation server base URL")
	f.BoolVarP(&globalFlags.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(treeCmd())
	cmd.AddCommand(versionCmd())
	cmd.AddCommand(contextCmd())
	cmd.AddCommand(caseCmd())
	cmd.AddCommand(runCmd())
	cmd.AddCommand(resultsCmd())
	cmd.AddCommand(uploadCmd())
	cmd.AddCommand(watchCmd())
	cmd.AddCommand(loadtestCmd())
	return cmd
}

func newClient() *workspace.Client {
	return workspace.NewClient(globalFlags.server)
}

func newLogger() *zap.Logger {
	level := "warn"
	if globalFlags.verbose {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// runConfigPath is where run knobs persist between invocations.
func runConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".evalctl", "run-config.json")
	}
	return filepath.Join(dir, "evalctl", "run-config.json")
}

// jsonFlag validates a JSON flag value before it is sent.
func jsonFlag(name, value string) (json.RawMessage, error) {
	if !json.Valid([]byte(value)) {
		return nil, fmt.Errorf("--%s is not valid JSON", name)
	}
	return json.RawMessage(value), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCreated(cmd *cobra.Command, kind, id string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", color.GreenString("created"), kind, id)
}

func printDone(cmd *cobra.Command, verb, kind, id string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", color.GreenString(verb), kind, id)
}
