package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/quarryhq/quarry/internal/capability"
	"github.com/quarryhq/quarry/internal/tools"
)

// EnvConfigList names the variable holding the config file list.
const EnvConfigList = "QUARRY_MCP_CONFIG"

// server is the subset of Client the bridge needs. Narrowed for tests.
type server interface {
	ListTools(ctx context.Context) ([]RemoteTool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

type connectFunc func(ctx context.Context, cfg ServerConfig) (server, error)

func dialServer(ctx context.Context, cfg ServerConfig) (server, error) {
	cli := NewClient(cfg)
	if err := cli.Connect(ctx); err != nil {
		return nil, err
	}
	return cli, nil
}

// Module contributes one suite per configured MCP server. Servers that
// fail to connect are logged and skipped so one broken config entry
// does not take down the session.
type Module struct {
	logger  *slog.Logger
	connect connectFunc

	// Servers overrides config-file discovery when non-nil.
	Servers map[string]ServerConfig
}

func NewModule(logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{logger: logger, connect: dialServer}
}

func (m *Module) ID() string { return "mcp" }

func (m *Module) Create(ctx context.Context, mc capability.ModuleContext) ([]capability.Contribution, error) {
	servers := m.Servers
	if servers == nil {
		if mc.Env == nil {
			return nil, nil
		}
		paths := ConfigPaths(mc.Env(EnvConfigList))
		if len(paths) == 0 {
			return nil, nil
		}
		loaded, err := LoadAll(paths)
		if err != nil {
			return nil, err
		}
		servers = loaded
	}

	var contribs []capability.Contribution
	for _, name := range sortedNames(servers) {
		cfg := servers[name]
		contrib, err := m.bridge(ctx, cfg)
		if err != nil {
			m.logger.Warn("mcp server unavailable", "server", name, "error", err)
			continue
		}
		contribs = append(contribs, contrib)
	}
	return contribs, nil
}

func (m *Module) bridge(ctx context.Context, cfg ServerConfig) (capability.Contribution, error) {
	srv, err := m.connect(ctx, cfg)
	if err != nil {
		return capability.Contribution{}, err
	}

	remote, err := srv.ListTools(ctx)
	if err != nil {
		_ = srv.Close()
		return capability.Contribution{}, err
	}

	defs := make([]tools.Definition, 0, len(remote))
	for _, rt := range remote {
		defs = append(defs, bridgeTool(srv, cfg.Name, rt))
	}

	suiteID := "mcp:" + cfg.Name
	return capability.Contribution{
		ID:          suiteID,
		Description: fmt.Sprintf("MCP server %s (%s)", cfg.Name, cfg.Transport),
		Suites:      []tools.Suite{{ID: suiteID, Tools: defs}},
		Metadata: map[string]any{
			"transport": cfg.Transport,
			"tools":     len(defs),
		},
		Dispose: func(context.Context) error { return srv.Close() },
	}, nil
}

// bridgeTool wraps one remote tool as a registry definition named
// mcp__<server>__<tool>.
func bridgeTool(srv server, serverName string, rt RemoteTool) tools.Definition {
	var params map[string]any
	if err := json.Unmarshal(rt.InputSchema, &params); err != nil || params == nil {
		params = map[string]any{"type": "object"}
	}

	remoteName := rt.Name
	return tools.Definition{
		Name:        BridgedName(serverName, rt.Name),
		Description: rt.Description,
		Parameters:  params,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return srv.CallTool(ctx, remoteName, args)
		},
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// BridgedName builds the registry name for a remote tool. Characters
// outside [a-zA-Z0-9_-] are replaced with underscores so provider-side
// tool name validation never rejects a bridged tool.
func BridgedName(serverName, toolName string) string {
	sanitize := func(s string) string {
		return unsafeNameChars.ReplaceAllString(s, "_")
	}
	return "mcp__" + sanitize(serverName) + "__" + sanitize(toolName)
}

func sortedNames(servers map[string]ServerConfig) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	// Deterministic bind order keeps manifests stable across runs.
	sort.Strings(names)
	return names
}
