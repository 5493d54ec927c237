package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opspulse/opspulse/pkg/models"
	"github.com/spf13/cobra"
)

var (
	ingestScope    string
	ingestEvaluate bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Append events to a scope's event log",
	Long: `Append domain events to a scope's event log.

Events are read from the given file, or from stdin when no file (or "-") is
given. The input is either a JSON array of events or JSONL with one event per
line. Ingested events are not evaluated until the next "evaluate" run unless
--evaluate is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := resolveScope(ingestScope)
		if err != nil {
			return err
		}

		var r io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening events file: %w", err)
			}
			defer f.Close()
			r = f
		}

		events, err := decodeEvents(r)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events to ingest.")
			return nil
		}

		if err := Runner.Ingest(scope, events); err != nil {
			return err
		}
		fmt.Printf("Ingested %d event(s) into scope %s.\n", len(events), scope)

		if ingestEvaluate {
			now, err := resolveNow("")
			if err != nil {
				return err
			}
			result, err := Runner.Evaluate(cmd.Context(), scope, now)
			if err != nil {
				return fmt.Errorf("evaluating scope after ingest: %w", err)
			}
			printRunSummary(result)
		}
		return nil
	},
}

// decodeEvents accepts a JSON array or JSONL stream of events.
func decodeEvents(r io.Reader) ([]models.Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var events []models.Event
		if err := json.Unmarshal([]byte(trimmed), &events); err != nil {
			return nil, fmt.Errorf("parsing events array: %w", err)
		}
		return events, nil
	}

	var events []models.Event
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var evt models.Event
		if err := json.Unmarshal([]byte(text), &evt); err != nil {
			return nil, fmt.Errorf("parsing event on line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning events: %w", err)
	}
	return events, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestScope, "scope", "", "Scope (engagement) to ingest into")
	ingestCmd.Flags().BoolVar(&ingestEvaluate, "evaluate", false, "Run the pipeline after ingesting")
	rootCmd.AddCommand(ingestCmd)
}
