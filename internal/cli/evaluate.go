package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opspulse/opspulse/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	evaluateScope string
	evaluateAt    string
	evaluateJSON  bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Fold new events and run the full pipeline for a scope",
	Long: `Fold any events past the scope's cursor into its signal state, derive
signals, composite scores, and recommendations, and persist the result.

The evaluation time defaults to now; pin it with --at for reproducible runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := resolveScope(evaluateScope)
		if err != nil {
			return err
		}
		now, err := resolveNow(evaluateAt)
		if err != nil {
			return err
		}

		result, err := Runner.Evaluate(cmd.Context(), scope, now)
		if err != nil {
			return err
		}

		if evaluateJSON {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting result as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		printRunSummary(result)
		return nil
	},
}

func printRunSummary(result *pipeline.RunResult) {
	fmt.Printf("Scope %s evaluated at %s\n\n", result.Scope, result.EvaluatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  %-24s %d\n", "Events processed:", result.ProcessedEvents)

	fmt.Println("\n  Signals:")
	for _, s := range result.Signals {
		fmt.Printf("    %-26s %8.2f  %s\n", string(s.Key)+":", s.Value, statusBadge(string(s.Status)))
	}

	fmt.Println("\n  Scores:")
	for _, s := range result.Scores {
		fmt.Printf("    %-26s %8.1f  %s\n", string(s.Type)+":", s.Score, string(s.Level))
	}

	if len(result.Recommendations) == 0 {
		fmt.Println("\n  No recommendations.")
		return
	}
	fmt.Printf("\n  Recommendations (%d):\n", len(result.Recommendations))
	for _, rec := range result.Recommendations {
		fmt.Printf("    [P%d] %-28s %s\n", rec.Priority, string(rec.Category), firstLine(rec.Title))
	}
}

func statusBadge(status string) string {
	return strings.ToUpper(status)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateScope, "scope", "", "Scope (engagement) to evaluate")
	evaluateCmd.Flags().StringVar(&evaluateAt, "at", "", "Evaluation time (RFC3339, default now)")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Output the full run result as JSON")
	rootCmd.AddCommand(evaluateCmd)
}
