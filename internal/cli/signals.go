package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	signalsScope string
	signalsAt    string
	signalsJSON  bool
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Show the current signals for a scope",
	Long: `Derive the ten signals from the scope's persisted state without folding
new events. Run "evaluate" first to pick up newly ingested events.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := resolveScope(signalsScope)
		if err != nil {
			return err
		}
		now, err := resolveNow(signalsAt)
		if err != nil {
			return err
		}

		signals, err := Runner.Signals(scope, now)
		if err != nil {
			return err
		}

		if signalsJSON {
			data, err := json.MarshalIndent(signals, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting signals as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Signals for scope %s (at %s)\n\n", scope, now.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("  %-26s %10s  %-8s %10s %10s\n", "signal", "value", "status", "warn", "critical")
		for _, s := range signals {
			fmt.Printf("  %-26s %10.2f  %-8s %10.2f %10.2f\n",
				string(s.Key), s.Value, string(s.Status), s.ThresholdWarn, s.ThresholdCritical)
		}
		return nil
	},
}

func init() {
	signalsCmd.Flags().StringVar(&signalsScope, "scope", "", "Scope (engagement) to inspect")
	signalsCmd.Flags().StringVar(&signalsAt, "at", "", "Evaluation time (RFC3339, default now)")
	signalsCmd.Flags().BoolVar(&signalsJSON, "json", false, "Output signals as JSON")
	rootCmd.AddCommand(signalsCmd)
}
