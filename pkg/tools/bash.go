package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nstogner/autodev/pkg/security"
)

// BashTool executes a shell command in a subprocess rooted at the project
// directory. Every command passes through the security gate first; there is
// no bypass path.
type BashTool struct {
	root string
}

func (t *BashTool) Name() string { return "Bash" }

func (t *BashTool) Description() string {
	return "Run a bash command in the project directory. Arguments: command (string)."
}

func (t *BashTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "The command to run."},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	command, err := stringArg(input, "command")
	if err != nil {
		return "", err
	}

	if decision := security.Evaluate(command); !decision.Allow {
		slog.Warn("Command blocked by security gate", "command", command, "reason", decision.Reason)
		return "", fmt.Errorf("%s%s", security.BlockedPrefix, decision.Reason)
	}

	slog.Info("Executing command", "command", command)

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.root
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Command failures still carry useful output for the model; append
		// the error rather than dropping what was captured.
		combined := string(output)
		if combined != "" {
			combined += "\n"
		}
		return combined + fmt.Sprintf("Error executing command: %v", err), nil
	}

	if strings.TrimSpace(string(output)) == "" {
		return "[Command finished with no output]", nil
	}
	return string(output), nil
}
