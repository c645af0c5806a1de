package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "claudechain",
		Short: "ClaudeChain - Incremental AI development runs",
		Long: `ClaudeChain drives incremental development runs from per-project spec.md
files. It resolves the triggering event into a base branch, runs the
project's action scripts around the task execution, parses the executor's
JSON log into a pass/fail outcome, and posts Slack notifications.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
