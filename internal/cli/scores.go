package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	scoresScope   string
	scoresAt      string
	scoresJSON    bool
	scoresFactors bool
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Show the composite scores for a scope",
	Long: `Derive the four composite scores (project_health, risk, client_value,
upsell_likelihood) from the scope's persisted state without folding new
events.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := resolveScope(scoresScope)
		if err != nil {
			return err
		}
		now, err := resolveNow(scoresAt)
		if err != nil {
			return err
		}

		scores, err := Runner.Scores(scope, now)
		if err != nil {
			return err
		}

		if scoresJSON {
			data, err := json.MarshalIndent(scores, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting scores as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Scores for scope %s (at %s)\n\n", scope, now.Format("2006-01-02 15:04:05 MST"))
		for _, s := range scores {
			fmt.Printf("  %-22s %6.1f  %s\n", string(s.Type)+":", s.Score, string(s.Level))
			if scoresFactors {
				for _, f := range s.Factors {
					fmt.Printf("      %-24s %8.2f\n", f.Key, f.Contribution)
				}
			}
		}
		return nil
	},
}

func init() {
	scoresCmd.Flags().StringVar(&scoresScope, "scope", "", "Scope (engagement) to inspect")
	scoresCmd.Flags().StringVar(&scoresAt, "at", "", "Evaluation time (RFC3339, default now)")
	scoresCmd.Flags().BoolVar(&scoresJSON, "json", false, "Output scores as JSON")
	scoresCmd.Flags().BoolVar(&scoresFactors, "factors", false, "Show per-factor contributions")
	rootCmd.AddCommand(scoresCmd)
}
