// Package security provides the pre-execution filter for shell commands.
//
// The gate is a stateless policy decision, not a sandbox: it inspects the
// command text and either allows it or blocks it with a reason. Every shell
// execution must pass through Evaluate first.
package security

import (
	"regexp"
	"strings"
)

// Decision is the outcome of evaluating one shell command.
type Decision struct {
	Allow  bool
	Reason string
}

// BlockedPrefix prefixes every blocked-command result so the outcome is
// distinguishable downstream without parsing.
const BlockedPrefix = "Security Blocked: "

type rule struct {
	pattern *regexp.Regexp
	reason  string
}

var denyRules = []rule{
	{
		pattern: regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+(/|~|\$HOME|\.\.)(\s|$|/\s|/$)`),
		reason:  "recursive delete targets a path at or above the project root",
	},
	{
		pattern: regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+\*`),
		reason:  "recursive wildcard delete",
	},
	{
		pattern: regexp.MustCompile(`(^|\s|;|&&|\|\|)sudo\s`),
		reason:  "privilege escalation via sudo",
	},
	{
		pattern: regexp.MustCompile(`(^|\s|;|&&|\|\|)su\s+(-|root)`),
		reason:  "privilege escalation via su",
	},
	{
		pattern: regexp.MustCompile(`\bdd\s+[^|;]*of=/dev/`),
		reason:  "raw write to a block device",
	},
	{
		pattern: regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`),
		reason:  "filesystem format command",
	},
	{
		pattern: regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`),
		reason:  "fork bomb",
	},
	{
		pattern: regexp.MustCompile(`\b(curl|wget)\b[^|;]*\|\s*(ba|z|da)?sh\b`),
		reason:  "piping a remote script into a shell",
	},
	{
		pattern: regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]*R[a-zA-Z]*)\s+777\s+/(\s|$)`),
		reason:  "recursive permission change on the filesystem root",
	},
	{
		pattern: regexp.MustCompile(`>\s*/dev/sd[a-z]`),
		reason:  "redirect onto a block device",
	},
}

var (
	longRecursiveRE = regexp.MustCompile(`--recursive\b`)
	longForceRE     = regexp.MustCompile(`--force\b`)
	splitFlagsRE    = regexp.MustCompile(`(\s-[a-zA-Z]+)\s+-([a-zA-Z]+)\b`)
)

// normalizeFlags rewrites long-form options to their short equivalents and
// merges separated short flags, so `rm --recursive --force /` and
// `rm -r -f /` match the same deny rules as `rm -rf /`.
func normalizeFlags(command string) string {
	command = longRecursiveRE.ReplaceAllString(command, "-r")
	command = longForceRE.ReplaceAllString(command, "-f")
	for {
		merged := splitFlagsRE.ReplaceAllString(command, "$1$2")
		if merged == command {
			return command
		}
		command = merged
	}
}

// Evaluate decides whether a shell command may execute. It never executes
// anything itself.
func Evaluate(command string) Decision {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Decision{Allow: false, Reason: "empty command"}
	}
	normalized := normalizeFlags(trimmed)
	for _, r := range denyRules {
		if r.pattern.MatchString(normalized) {
			return Decision{Allow: false, Reason: r.reason}
		}
	}
	return Decision{Allow: true}
}
