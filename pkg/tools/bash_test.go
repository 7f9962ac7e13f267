package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nstogner/autodev/pkg/security"
)

func TestBashCapturesOutput(t *testing.T) {
	r, _ := newTestRegistry(t)
	out, err := execute(t, r, "Bash", map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatalf("Bash: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q, want %q", out, "hello")
	}
}

func TestBashRunsInProjectDir(t *testing.T) {
	r, dir := newTestRegistry(t)
	if _, err := execute(t, r, "Bash", map[string]any{"command": "touch created.txt"}); err != nil {
		t.Fatalf("Bash: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "created.txt")); err != nil {
		t.Errorf("command did not run in project dir: %v", err)
	}
}

func TestBashNoOutputMarker(t *testing.T) {
	r, _ := newTestRegistry(t)
	out, err := execute(t, r, "Bash", map[string]any{"command": "true"})
	if err != nil {
		t.Fatalf("Bash: %v", err)
	}
	if out != "[Command finished with no output]" {
		t.Errorf("output = %q, want no-output marker", out)
	}
}

func TestBashBlockedCommandNeverExecutes(t *testing.T) {
	r, dir := newTestRegistry(t)

	// A blocked command that would leave evidence if it ran.
	_, err := execute(t, r, "Bash", map[string]any{"command": "sudo touch sudo-ran.txt"})
	if err == nil {
		t.Fatal("expected blocked command to return an error")
	}
	if !strings.HasPrefix(err.Error(), security.BlockedPrefix) {
		t.Errorf("error = %q, want %q prefix", err.Error(), security.BlockedPrefix)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "sudo-ran.txt")); statErr == nil {
		t.Error("blocked command was executed")
	}
}

func TestBashDestructiveDenied(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := execute(t, r, "Bash", map[string]any{"command": "rm -rf /"})
	if err == nil || !strings.HasPrefix(err.Error(), security.BlockedPrefix) {
		t.Errorf("rm -rf / must be blocked with the gate prefix, got %v", err)
	}
}

func TestBashCommandFailureReturnedAsOutput(t *testing.T) {
	r, _ := newTestRegistry(t)
	out, err := execute(t, r, "Bash", map[string]any{"command": "ls /nonexistent-dir-xyz"})
	if err != nil {
		t.Fatalf("execution faults must be encoded in the result, got error: %v", err)
	}
	if !strings.Contains(out, "Error executing command") && !strings.Contains(out, "No such file") {
		t.Errorf("output should carry the failure, got %q", out)
	}
}
