// Package shell provides the execute_bash tool suite. Commands run
// inside the workspace with provider credentials scrubbed from the
// environment and, unless QUARRY_PRESERVE_HOME=1, HOME pointed at a
// workspace-local scratch directory.
package shell

import (
	"os"
	"path/filepath"
	"strings"
)

// credentialSuffixes mark environment variables that never reach a
// spawned command.
var credentialSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
}

var credentialNames = map[string]struct{}{
	"AWS_ACCESS_KEY_ID":     {},
	"AWS_SECRET_ACCESS_KEY": {},
	"AWS_SESSION_TOKEN":     {},
}

func isCredential(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := credentialNames[upper]; ok {
		return true
	}
	for _, suffix := range credentialSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// scrubEnv filters the parent environment for a spawned command. When
// preserveHome is false, HOME is redirected to scratchDir so commands
// cannot read dotfiles or credentials from the real home directory.
func scrubEnv(environ []string, preserveHome bool, scratchDir string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || isCredential(name) {
			continue
		}
		if !preserveHome && strings.EqualFold(name, "HOME") {
			continue
		}
		out = append(out, kv)
	}
	if !preserveHome && scratchDir != "" {
		out = append(out, "HOME="+scratchDir)
	}
	return out
}

// scratchHome returns the workspace-local HOME substitute, creating it
// on first use.
func scratchHome(workspace string) string {
	dir := filepath.Join(workspace, ".quarry", "home")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.TempDir()
	}
	return dir
}

func preserveHome(getenv func(string) string) bool {
	return getenv("QUARRY_PRESERVE_HOME") == "1"
}
