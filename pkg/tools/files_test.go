package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRegistry(dir), dir
}

func execute(t *testing.T, r *Registry, name string, input map[string]any) (string, error) {
	t.Helper()
	tool, ok := r.Get(name)
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	return tool.Execute(context.Background(), input)
}

func TestReadFramesEachFile(t *testing.T) {
	r, dir := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, r, "Read", map[string]any{"paths": []any{"a.txt", "missing.txt"}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(out, "a.txt ---\nhello") {
		t.Errorf("output missing framed content: %q", out)
	}
	if !strings.Contains(out, "missing.txt ---\n[File not found]") {
		t.Errorf("output missing not-found marker: %q", out)
	}
}

func TestReadRejectsEscapingPath(t *testing.T) {
	r, _ := newTestRegistry(t)
	out, err := execute(t, r, "Read", map[string]any{"paths": []any{"../outside.txt"}})
	if err != nil {
		t.Fatalf("Read should encode per-path failures, got error: %v", err)
	}
	if !strings.Contains(out, "escapes the project directory") {
		t.Errorf("expected containment error marker, got %q", out)
	}
}

func TestWriteCreatesParentDirs(t *testing.T) {
	r, dir := newTestRegistry(t)

	out, err := execute(t, r, "Write", map[string]any{
		"path":    "nested/deep/file.txt",
		"content": "data",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(out, "Successfully wrote") {
		t.Errorf("unexpected result: %q", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "nested/deep/file.txt"))
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(data) != "data" {
		t.Errorf("content = %q, want %q", data, "data")
	}
}

func TestWriteRejectsAbsolutePath(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := execute(t, r, "Write", map[string]any{
		"path":    "/etc/passwd",
		"content": "x",
	})
	if err == nil {
		t.Fatal("expected error for absolute path")
	}
}

func TestEditRoundTrip(t *testing.T) {
	r, dir := newTestRegistry(t)
	const content = "alpha beta gamma"
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, r, "Edit", map[string]any{
		"path":       "f.txt",
		"old_string": "beta",
		"new_string": "BETA",
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	out, err := execute(t, r, "Read", map[string]any{"paths": []any{"f.txt"}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(out, "alpha BETA gamma") {
		t.Errorf("edit not applied: %q", out)
	}
}

func TestEditReplacesAllOccurrences(t *testing.T) {
	r, dir := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x y x"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, r, "Edit", map[string]any{
		"path":       "f.txt",
		"old_string": "x",
		"new_string": "z",
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	if string(data) != "z y z" {
		t.Errorf("content = %q, want %q (all occurrences replaced)", data, "z y z")
	}
}

func TestEditTrimmedFallback(t *testing.T) {
	r, dir := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("needle in file"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, r, "Edit", map[string]any{
		"path":       "f.txt",
		"old_string": "  needle  ",
		"new_string": "thread",
	}); err != nil {
		t.Fatalf("Edit with trimmed fallback: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	if string(data) != "thread in file" {
		t.Errorf("content = %q", data)
	}
}

func TestEditMissingFile(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := execute(t, r, "Edit", map[string]any{
		"path":       "missing.txt",
		"old_string": "a",
		"new_string": "b",
	})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestEditOldStringAbsent(t *testing.T) {
	r, dir := newTestRegistry(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, r, "Edit", map[string]any{
		"path":       "f.txt",
		"old_string": "absent",
		"new_string": "b",
	})
	if err == nil || !strings.Contains(err.Error(), "old_string not found") {
		t.Errorf("expected old_string-not-found error, got %v", err)
	}
}
