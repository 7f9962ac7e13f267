// Package tools implements the capability providers the agent loop can
// dispatch to: file access, pattern search, gated shell execution, and any
// externally supplied extension tools (e.g. the feature tracker).
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nstogner/autodev/pkg/model"
)

// Tool defines the interface all capability providers implement.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any // Simple representation of JSON schema
	Execute(ctx context.Context, input map[string]any) (string, error)
}

// Registry holds the fixed core capability set plus injected extension
// tools, all rooted at one project directory. It is populated at startup and
// read-only afterwards.
type Registry struct {
	projectDir string
	tools      map[string]Tool
}

// NewRegistry creates a registry with the core tools (Read, Write, Edit,
// Bash, Glob, Grep) rooted at projectDir.
func NewRegistry(projectDir string) *Registry {
	r := &Registry{
		projectDir: projectDir,
		tools:      make(map[string]Tool),
	}
	r.Register(&ReadTool{root: projectDir})
	r.Register(&WriteTool{root: projectDir})
	r.Register(&EditTool{root: projectDir})
	r.Register(&BashTool{root: projectDir})
	r.Register(&GlobTool{root: projectDir})
	r.Register(&GrepTool{root: projectDir})
	return r
}

// Register adds a tool. Later registrations override earlier ones with the
// same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// ProjectDir returns the root every path-taking tool resolves against.
func (r *Registry) ProjectDir() string {
	return r.projectDir
}

// Definitions exports tool declarations for connection setup, in stable
// name order.
func (r *Registry) Definitions() []model.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		})
	}
	return defs
}

// resolvePath joins a relative path onto root and rejects anything that
// escapes it. Applied uniformly to every path-taking tool, including Glob
// and Grep.
func resolvePath(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", rel)
	}
	full := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the project directory: %s", rel)
	}
	return full, nil
}

func stringArg(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok {
		return "", fmt.Errorf("argument '%s' is required and must be a string", key)
	}
	return v, nil
}
