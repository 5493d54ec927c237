package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// commandRequest is the JSON document piped to an external template command.
type commandRequest struct {
	Key  string            `json:"key"`
	Vars map[string]string `json:"vars"`
}

// NewCommandGenerator returns a TemplateGenerator that shells out to the
// given command. The command receives {"key":..., "vars":...} as JSON on
// stdin and must print the rendered message to stdout. A failing or
// empty-output command is an error, so the caller can fall back or abort.
func NewCommandGenerator(command string) TemplateGenerator {
	return func(ctx context.Context, key string, vars map[string]string) (string, error) {
		payload, err := json.Marshal(commandRequest{Key: key, Vars: vars})
		if err != nil {
			return "", fmt.Errorf("encoding template request: %w", err)
		}

		parts := strings.Fields(command)
		if len(parts) == 0 {
			return "", fmt.Errorf("template command is empty")
		}

		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		cmd.Stdin = bytes.NewReader(payload)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("running template command %q: %w", parts[0], err)
		}

		message := strings.TrimSpace(out.String())
		if message == "" {
			return "", fmt.Errorf("template command %q produced no output", parts[0])
		}
		return message, nil
	}
}
