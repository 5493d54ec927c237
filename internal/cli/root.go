// Package cli implements the opspulse command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "opspulse",
	Short: "opspulse - operational signal pipeline for client engagements",
	Long: `opspulse folds domain events (messages, blockers, stages, agreements,
finance entries) into per-engagement signal state, derives threshold-classified
signals and composite scores, and generates evidence-backed recommendations.

Each engagement is identified by a scope. Events are ingested into a per-scope
log and evaluated on demand; the pipeline is deterministic for a given event
log and evaluation time.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("opspulse %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
