package files

import (
	"context"

	"github.com/quarryhq/quarry/internal/capability"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/internal/tools/policy"
)

// Module contributes the files suite to a capability host.
type Module struct {
	cfg Config
}

// NewModule returns the files capability module. An empty workspace
// falls back to the session working directory at bind time.
func NewModule(cfg Config) *Module {
	return &Module{cfg: cfg}
}

func (m *Module) ID() string { return policy.PluginFiles }

func (m *Module) Create(_ context.Context, mc capability.ModuleContext) ([]capability.Contribution, error) {
	cfg := m.cfg
	if cfg.Workspace == "" {
		cfg.Workspace = mc.WorkingDir
	}
	return []capability.Contribution{{
		ID:          "files",
		Description: "Workspace file access: read, write, list, glob, and grep.",
		Suites:      []tools.Suite{Suite(cfg)},
	}}, nil
}

// Suite bundles the filesystem tools for direct registration, bypassing
// the capability host.
func Suite(cfg Config) tools.Suite {
	return tools.Suite{
		ID: "files",
		Tools: []tools.Definition{
			readFileTool(cfg),
			writeFileTool(cfg),
			listDirTool(cfg),
			globSearchTool(cfg),
			grepSearchTool(cfg),
		},
	}
}
