package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// --- Read Tool ---

// ReadTool reads one or more files relative to the project directory.
// Per-path failures are encoded in the returned string; Execute itself never
// fails on a missing file.
type ReadTool struct {
	root string
}

func (t *ReadTool) Name() string { return "Read" }

func (t *ReadTool) Description() string {
	return "Read the content of one or more files. Arguments: paths (list of relative paths)."
}

func (t *ReadTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"paths": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Relative paths of the files to read.",
			},
		},
		"required": []string{"paths"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	raw, ok := input["paths"].([]any)
	if !ok {
		// Accept a single path string as a convenience.
		if p, ok := input["paths"].(string); ok {
			raw = []any{p}
		} else {
			return "", fmt.Errorf("argument 'paths' is required and must be a list of strings")
		}
	}

	var results []string
	for _, r := range raw {
		p, ok := r.(string)
		if !ok {
			results = append(results, fmt.Sprintf("---\n%v ---\n[Error: path must be a string]\n", r))
			continue
		}

		full, err := resolvePath(t.root, p)
		if err != nil {
			results = append(results, fmt.Sprintf("---\n%s ---\n[Error: %v]\n", p, err))
			continue
		}

		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			results = append(results, fmt.Sprintf("---\n%s ---\n[File not found]\n", p))
			continue
		}

		data, err := os.ReadFile(full)
		if err != nil {
			results = append(results, fmt.Sprintf("---\n%s ---\n[Error: %v]\n", p, err))
			continue
		}
		results = append(results, fmt.Sprintf("---\n%s ---\n%s\n", p, string(data)))
	}
	return strings.Join(results, "\n"), nil
}

// --- Write Tool ---

// WriteTool writes (or overwrites) a file, creating parent directories as
// needed.
type WriteTool struct {
	root string
}

func (t *WriteTool) Name() string { return "Write" }

func (t *WriteTool) Description() string {
	return "Write content to a file, overwriting it. Arguments: path (string), content (string)."
}

func (t *WriteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Relative path of the file to write."},
			"content": map[string]any{"type": "string", "description": "The content to write."},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return "", err
	}
	content, err := stringArg(input, "content")
	if err != nil {
		return "", err
	}

	full, err := resolvePath(t.root, path)
	if err != nil {
		return "", err
	}

	slog.Debug("Writing file", "path", path, "size", len(content))

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("error writing to %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("error writing to %s: %w", path, err)
	}
	return fmt.Sprintf("Successfully wrote to %s", path), nil
}

// --- Edit Tool ---

// EditTool replaces text in an existing file. The exact old string is tried
// first; a whitespace-trimmed match is the fallback. All occurrences are
// replaced.
type EditTool struct {
	root string
}

func (t *EditTool) Name() string { return "Edit" }

func (t *EditTool) Description() string {
	return "Replace text in a file. All occurrences of old_string are replaced. Arguments: path, old_string, new_string."
}

func (t *EditTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":       map[string]any{"type": "string", "description": "Relative path of the file to edit."},
			"old_string": map[string]any{"type": "string", "description": "The text to replace. Must match exactly."},
			"new_string": map[string]any{"type": "string", "description": "The replacement text."},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return "", err
	}
	oldStr, err := stringArg(input, "old_string")
	if err != nil {
		return "", err
	}
	newStr, err := stringArg(input, "new_string")
	if err != nil {
		return "", err
	}

	full, err := resolvePath(t.root, path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file %s not found", path)
		}
		return "", fmt.Errorf("error editing %s: %w", path, err)
	}
	content := string(data)

	switch {
	case strings.Contains(content, oldStr):
		content = strings.ReplaceAll(content, oldStr, newStr)
	case strings.Contains(content, strings.TrimSpace(oldStr)):
		// Sloppy fallback for whitespace drift in the model's quote.
		content = strings.ReplaceAll(content, strings.TrimSpace(oldStr), newStr)
	default:
		return "", fmt.Errorf("old_string not found in %s, check whitespace", path)
	}

	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("error editing %s: %w", path, err)
	}
	return fmt.Sprintf("Successfully edited %s", path), nil
}
