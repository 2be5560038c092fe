package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/quarryhq/quarry/internal/capability"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/internal/tools/files"
	"github.com/quarryhq/quarry/internal/tools/policy"
)

const (
	defaultTimeout = 120 * time.Second
	maxTimeout     = 600 * time.Second
	maxOutputBytes = 64_000
)

// Config controls shell tool behavior.
type Config struct {
	Workspace string
	// Getenv defaults to os.Getenv; injectable for tests.
	Getenv func(string) string
}

// Result is the JSON payload returned by execute_bash.
type Result struct {
	Command    string `json:"command"`
	Cwd        string `json:"cwd"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

func executeBashTool(cfg Config) tools.Definition {
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	resolver := files.Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "execute_bash",
		Description: "Run a bash command in the workspace with a timeout. Output is captured and capped.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Shell command to execute.",
				},
				"cwd": map[string]any{
					"type":        "string",
					"description": "Working directory (relative to workspace).",
				},
				"input": map[string]any{
					"type":        "string",
					"description": "Stdin content to pass to the command.",
				},
				"timeout_seconds": map[string]any{
					"type":        "integer",
					"description": "Timeout in seconds (default: 120, cap: 600).",
				},
			},
			"required": []any{"command"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var in struct {
				Command        string `json:"command"`
				Cwd            string `json:"cwd"`
				Input          string `json:"input"`
				TimeoutSeconds int    `json:"timeout_seconds"`
			}
			data, err := json.Marshal(args)
			if err == nil {
				err = json.Unmarshal(data, &in)
			}
			if err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
			if strings.TrimSpace(in.Command) == "" {
				return nil, fmt.Errorf("command is required")
			}

			timeout := defaultTimeout
			if in.TimeoutSeconds > 0 {
				timeout = time.Duration(in.TimeoutSeconds) * time.Second
			}
			if timeout > maxTimeout {
				timeout = maxTimeout
			}
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			dir := cfg.Workspace
			if in.Cwd != "" {
				resolved, err := resolver.Resolve(in.Cwd)
				if err != nil {
					return nil, err
				}
				dir = resolved
			}

			cmd := exec.CommandContext(runCtx, "bash", "-c", in.Command)
			cmd.Dir = dir
			cmd.Env = scrubEnv(os.Environ(), preserveHome(cfg.Getenv), scratchHome(cfg.Workspace))
			if in.Input != "" {
				cmd.Stdin = strings.NewReader(in.Input)
			}

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			start := time.Now()
			runErr := cmd.Run()

			result := Result{
				Command:    in.Command,
				Cwd:        dir,
				Stdout:     capOutput(stdout.String()),
				Stderr:     capOutput(stderr.String()),
				ExitCode:   exitCode(runErr),
				DurationMs: time.Since(start).Milliseconds(),
				TimedOut:   errors.Is(runCtx.Err(), context.DeadlineExceeded),
			}
			return result, nil
		},
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func capOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes]
}

// Module contributes the shell suite to a capability host.
type Module struct {
	cfg Config
}

func NewModule(cfg Config) *Module {
	return &Module{cfg: cfg}
}

func (m *Module) ID() string { return policy.PluginShell }

func (m *Module) Create(_ context.Context, mc capability.ModuleContext) ([]capability.Contribution, error) {
	cfg := m.cfg
	if cfg.Workspace == "" {
		cfg.Workspace = mc.WorkingDir
	}
	if cfg.Getenv == nil {
		cfg.Getenv = mc.Env
	}
	return []capability.Contribution{{
		ID:          "shell",
		Description: "Sandboxed bash execution inside the workspace.",
		Suites:      []tools.Suite{Suite(cfg)},
	}}, nil
}

// Suite bundles the shell tools for direct registration.
func Suite(cfg Config) tools.Suite {
	return tools.Suite{
		ID:    "shell",
		Tools: []tools.Definition{executeBashTool(cfg)},
	}
}
