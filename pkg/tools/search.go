package tools

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// --- Glob Tool ---

// GlobTool matches files recursively under the project directory. Patterns
// support ** via doublestar semantics. Only regular files are reported, as
// paths relative to the project directory.
type GlobTool struct {
	root string
}

func (t *GlobTool) Name() string { return "Glob" }

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern (supports **). Arguments: pattern (string)."
}

func (t *GlobTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob pattern relative to the project directory."},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	pattern, err := stringArg(input, "pattern")
	if err != nil {
		return "", err
	}
	if _, err := resolvePath(t.root, pattern); err != nil {
		return "", err
	}

	matches, err := doublestar.Glob(os.DirFS(t.root), pattern)
	if err != nil {
		return "", fmt.Errorf("error globbing: %w", err)
	}

	var files []string
	for _, m := range matches {
		info, err := fs.Stat(os.DirFS(t.root), m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return "[No files found]", nil
	}
	sort.Strings(files)
	return strings.Join(files, "\n"), nil
}

// --- Grep Tool ---

// GrepTool searches recursively for a pattern. It shells out to grep like
// the rest of the toolchain expects; grep's own error text is part of the
// returned payload (exit status 1 just means no matches).
type GrepTool struct {
	root string
}

func (t *GrepTool) Name() string { return "Grep" }

func (t *GrepTool) Description() string {
	return "Search for a regex pattern in files. Arguments: pattern (string), path (relative path)."
}

func (t *GrepTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "The regex pattern to search for."},
			"path":    map[string]any{"type": "string", "description": "Relative file or directory to search in."},
		},
		"required": []string{"pattern", "path"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	pattern, err := stringArg(input, "pattern")
	if err != nil {
		return "", err
	}
	path, err := stringArg(input, "path")
	if err != nil {
		return "", err
	}
	if _, err := resolvePath(t.root, path); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "grep", "-rn", pattern, path)
	cmd.Dir = t.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	_ = cmd.Run() // grep exits 1 on no matches, which is fine.

	return stdout.String() + stderr.String(), nil
}
