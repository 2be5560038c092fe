package shell

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/quarryhq/quarry/internal/tools"
)

func TestScrubEnvDropsCredentials(t *testing.T) {
	environ := []string{
		"PATH=/usr/bin",
		"OPENAI_API_KEY=sk-123",
		"MY_SECRET=shh",
		"GITHUB_TOKEN=ghp",
		"DB_PASSWORD=pw",
		"AWS_SECRET_ACCESS_KEY=aws",
		"HOME=/home/real",
		"LANG=C",
	}
	out := scrubEnv(environ, false, "/tmp/scratch")

	joined := strings.Join(out, "\n")
	for _, leaked := range []string{"OPENAI_API_KEY", "MY_SECRET", "GITHUB_TOKEN", "DB_PASSWORD", "AWS_SECRET_ACCESS_KEY"} {
		if strings.Contains(joined, leaked) {
			t.Fatalf("credential %s leaked: %v", leaked, out)
		}
	}
	if !strings.Contains(joined, "PATH=/usr/bin") || !strings.Contains(joined, "LANG=C") {
		t.Fatalf("benign vars dropped: %v", out)
	}
	if strings.Contains(joined, "HOME=/home/real") {
		t.Fatal("real HOME leaked")
	}
	if !strings.Contains(joined, "HOME=/tmp/scratch") {
		t.Fatal("scratch HOME missing")
	}
}

func TestScrubEnvPreserveHome(t *testing.T) {
	out := scrubEnv([]string{"HOME=/home/real"}, true, "/tmp/scratch")
	if len(out) != 1 || out[0] != "HOME=/home/real" {
		t.Fatalf("out = %v", out)
	}
}

func run(t *testing.T, reg *tools.Registry, args map[string]any) Result {
	t.Helper()
	out := reg.Execute(context.Background(), tools.Call{ID: "s1", Name: "execute_bash", Arguments: args})
	var res Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output not JSON: %q", out)
	}
	return res
}

func newShellRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	err := reg.RegisterSuite(Suite(Config{
		Workspace: t.TempDir(),
		Getenv:    func(string) string { return "" },
	}))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestExecuteBash(t *testing.T) {
	reg := newShellRegistry(t)

	res := run(t, reg, map[string]any{"command": "echo hello"})
	if strings.TrimSpace(res.Stdout) != "hello" || res.ExitCode != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteBashExitCode(t *testing.T) {
	reg := newShellRegistry(t)

	res := run(t, reg, map[string]any{"command": "exit 3"})
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
}

func TestExecuteBashStdin(t *testing.T) {
	reg := newShellRegistry(t)

	res := run(t, reg, map[string]any{"command": "cat", "input": "piped"})
	if res.Stdout != "piped" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestExecuteBashTimeout(t *testing.T) {
	reg := newShellRegistry(t)

	res := run(t, reg, map[string]any{"command": "sleep 5", "timeout_seconds": 1})
	if !res.TimedOut {
		t.Fatalf("expected timeout: %+v", res)
	}
}

func TestExecuteBashScrubbedEnv(t *testing.T) {
	t.Setenv("FAKE_API_KEY", "leak-me")

	reg := newShellRegistry(t)
	res := run(t, reg, map[string]any{"command": "printenv FAKE_API_KEY || true"})
	if strings.Contains(res.Stdout, "leak-me") {
		t.Fatalf("credential visible to command: %+v", res)
	}
}

func TestExecuteBashMissingCommand(t *testing.T) {
	reg := newShellRegistry(t)
	out := reg.Execute(context.Background(), tools.Call{
		ID: "s1", Name: "execute_bash", Arguments: map[string]any{},
	})
	if !strings.HasPrefix(out, `Invalid arguments for "execute_bash":`) {
		t.Fatalf("unexpected failure shape: %q", out)
	}
}
