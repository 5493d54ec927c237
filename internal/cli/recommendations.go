package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	recsScope string
	recsAt    string
	recsJSON  bool
)

var recommendationsCmd = &cobra.Command{
	Use:     "recommendations",
	Aliases: []string{"recs"},
	Short:   "Show the current recommendations for a scope",
	Long: `Derive recommendations from the scope's persisted state without folding
new events or writing anything. Recommendations are recomputed on every call;
use the dedupe key to recognize ones already surfaced.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := resolveScope(recsScope)
		if err != nil {
			return err
		}
		now, err := resolveNow(recsAt)
		if err != nil {
			return err
		}

		recs, err := Runner.Recommendations(cmd.Context(), scope, now)
		if err != nil {
			return err
		}

		if recsJSON {
			data, err := json.MarshalIndent(recs, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting recommendations as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(recs) == 0 {
			fmt.Printf("No recommendations for scope %s.\n", scope)
			return nil
		}

		fmt.Printf("Recommendations for scope %s (at %s)\n\n", scope, now.Format("2006-01-02 15:04:05 MST"))
		for _, rec := range recs {
			fmt.Printf("  [P%d] %s\n", rec.Priority, rec.Title)
			fmt.Printf("       category: %s  dedupe: %s\n", string(rec.Category), rec.DedupeKey)
			fmt.Printf("       %s\n", rec.Rationale)
			if rec.Template != "" {
				fmt.Printf("       draft: %s\n", rec.Template)
			}
			fmt.Printf("       evidence: %d ref(s)\n\n", len(rec.EvidenceRefs))
		}
		return nil
	},
}

func init() {
	recommendationsCmd.Flags().StringVar(&recsScope, "scope", "", "Scope (engagement) to inspect")
	recommendationsCmd.Flags().StringVar(&recsAt, "at", "", "Evaluation time (RFC3339, default now)")
	recommendationsCmd.Flags().BoolVar(&recsJSON, "json", false, "Output recommendations as JSON")
	rootCmd.AddCommand(recommendationsCmd)
}
