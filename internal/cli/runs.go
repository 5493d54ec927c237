package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	runsScope string
	runsJSON  bool
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recorded pipeline runs",
	Long: `Show the pipeline run history from the workspace run log. Without
--scope, runs for all scopes are shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := RunLog.Read(runsScope)
		if err != nil {
			return fmt.Errorf("reading run log: %w", err)
		}

		if runsLimit > 0 && len(records) > runsLimit {
			records = records[len(records)-runsLimit:]
		}

		if runsJSON {
			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting runs as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(records) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		fmt.Printf("  %-20s %-16s %8s %6s %8s %8s\n", "time", "scope", "events", "recs", "health", "risk")
		for _, r := range records {
			fmt.Printf("  %-20s %-16s %8d %6d %8.1f %8.1f\n",
				r.Time.Format(time.RFC3339)[:19], r.Scope,
				r.ProcessedEvents, r.Recommendations, r.ProjectHealth, r.Risk)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsScope, "scope", "", "Filter runs by scope")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Output runs as JSON")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Show at most the last N runs (0 for all)")
	rootCmd.AddCommand(runsCmd)
}
