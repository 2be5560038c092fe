// Package runtime is the composition root: it loads configuration,
// resolves the tool policy, builds the capability host and provider,
// and hands back a ready agent plus everything the CLI needs to
// describe the session.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/quarryhq/quarry/internal/agent"
	agentctx "github.com/quarryhq/quarry/internal/agent/context"
	"github.com/quarryhq/quarry/internal/agent/providers"
	"github.com/quarryhq/quarry/internal/capability"
	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/mcp"
	"github.com/quarryhq/quarry/internal/observability"
	"github.com/quarryhq/quarry/internal/profile"
	"github.com/quarryhq/quarry/internal/secrets"
	"github.com/quarryhq/quarry/internal/snapshot"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/internal/tools/codeintel"
	"github.com/quarryhq/quarry/internal/tools/files"
	"github.com/quarryhq/quarry/internal/tools/policy"
	"github.com/quarryhq/quarry/internal/tools/shell"
	"github.com/quarryhq/quarry/internal/tools/subagent"
	"github.com/quarryhq/quarry/internal/tools/websearch"
	"github.com/quarryhq/quarry/internal/workspace"
	"github.com/quarryhq/quarry/pkg/models"
)

// Options are the CLI-level knobs for one session.
type Options struct {
	// Profile is the --profile flag value; empty defers to env,
	// preference, then settings.
	Profile string

	// WorkingDir defaults to the process working directory.
	WorkingDir string

	Logger *slog.Logger

	// Getenv defaults to config.Getenv. Overridable for tests.
	Getenv func(string) string

	// DataDir overrides config.DataDir. Overridable for tests.
	DataDir string
}

// Runtime is one fully wired session.
type Runtime struct {
	Agent    *agent.Agent
	Registry *tools.Registry
	Tracer   *observability.Tracer

	Selected  profile.Selected
	Settings  *config.Settings
	DataDir   string
	Secrets   secrets.Store
	Snapshots snapshot.Store

	// Manifest lists bound capability contributions plus policy
	// warnings, for the session envelope.
	Manifest Manifest

	WorkingDir       string
	WorkspaceContext string

	host     *capability.Host
	logger   *slog.Logger
	shutdown []func(context.Context) error
}

// Manifest is the session envelope's capability summary.
type Manifest struct {
	Capabilities []capability.CapabilityInfo `json:"capabilities"`
	Warnings     []policy.LoadWarning        `json:"warnings,omitempty"`
}

// metrics collectors register with the default prometheus registry;
// a second registration panics, so the process shares one set.
var (
	metricsOnce sync.Once
	metrics     *observability.Metrics
)

func sharedMetrics() *observability.Metrics {
	metricsOnce.Do(func() { metrics = observability.NewMetrics() })
	return metrics
}

// Build wires a session. Call Close when done.
func Build(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = config.Getenv
	}

	workingDir := opts.WorkingDir
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workingDir = wd
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		dataDir = dir
	}

	rt := &Runtime{DataDir: dataDir, WorkingDir: workingDir, logger: logger}

	settings, err := config.LoadSettings(dataDir, logger)
	if err != nil {
		return nil, err
	}
	rt.Settings = settings

	store, err := buildSecrets(rt, dataDir)
	if err != nil {
		return nil, err
	}
	rt.Secrets = store

	selected, err := selectModel(dataDir, opts.Profile, settings, getenv)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Selected = selected

	resolution := policy.Resolve(
		&policy.ToolSettings{EnabledTools: settings.EnabledTools},
		policy.DefaultManifest(),
		store,
	)
	for _, w := range resolution.Warnings {
		logger.Warn("tool toggle unavailable", "toggle", w.ID, "reason", w.Reason, "secret", w.SecretID)
	}

	wsContext, err := workspace.Capture(ctx, workingDir, workspace.Config{Getenv: getenv})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("capture workspace context: %w", err)
	}
	rt.WorkspaceContext = wsContext

	obs := &metricsObserver{metrics: sharedMetrics()}

	registry := tools.NewRegistry()
	registry.AddObserver(obs)
	rt.Registry = registry

	host := buildHost(registry, resolution, getenv, logger)
	rt.host = host

	mc := capability.ModuleContext{
		Profile:          selected.Profile.Name,
		WorkingDir:       workingDir,
		WorkspaceContext: wsContext,
		Env:              getenv,
		Secrets:          store,
		Observer:         obs,
	}
	if err := host.Build(ctx, mc); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	snapshots, err := openSnapshots(settings, dataDir, getenv)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Snapshots = snapshots

	providerRegistry := providers.NewRegistry(store)
	prov, err := providerRegistry.Build(selected.Selection.Provider)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	manager := buildContextManager(selected.Selection, settings, logger)
	registry.SetTruncator(manager)

	// Sub-agents get a fresh registry and host under the parent's
	// resolution, without run_task itself.
	newAgent := func(ctx context.Context, sel models.ModelSelection, history []models.Message) (subagent.AgentRunner, error) {
		childProv, err := providerRegistry.Build(sel.Provider)
		if err != nil {
			return nil, err
		}
		childRegistry := tools.NewRegistry()
		childRegistry.AddObserver(obs)
		childHost := buildHost(childRegistry, resolution, getenv, logger)
		if err := childHost.Build(ctx, mc); err != nil {
			return nil, err
		}
		childManager := buildContextManager(sel, settings, logger)
		childRegistry.SetTruncator(childManager)
		child := agent.New(agent.Config{
			Provider:  childProv,
			Registry:  childRegistry,
			Context:   childManager,
			Selection: sel,
			History:   history,
			Logger:    logger,
		})
		return &childSession{Agent: child, host: childHost}, nil
	}
	runner := subagent.NewRunner(newAgent, snapshots, selected.Selection)
	if err := registry.RegisterSuite(subagent.Suite(runner)); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Agent = agent.New(agent.Config{
		Provider:  prov,
		Registry:  registry,
		Context:   manager,
		Selection: selected.Selection,
		Logger:    logger,
		Callbacks: agent.Callbacks{
			OnContextPruned: func(removed int, _ models.ContextStats) {
				sharedMetrics().PrunedMessages.Add(float64(removed))
			},
		},
	})

	tracer, stopTracer := observability.NewTracer(observability.TraceConfig{
		ServiceVersion: observability.Version,
		Endpoint:       getenv("QUARRY_OTLP_ENDPOINT"),
	})
	rt.Tracer = tracer
	rt.shutdown = append(rt.shutdown, stopTracer)

	rt.Manifest = Manifest{
		Capabilities: host.DescribeCapabilities(),
		Warnings:     resolution.Warnings,
	}
	return rt, nil
}

// Close disposes capabilities and every acquired resource. Safe on a
// partially built runtime.
func (r *Runtime) Close(ctx context.Context) {
	if r.host != nil {
		r.host.Dispose(ctx)
	}
	if r.Snapshots != nil {
		if err := r.Snapshots.Close(); err != nil {
			r.logger.Warn("snapshot store close failed", "error", err)
		}
	}
	for i := len(r.shutdown) - 1; i >= 0; i-- {
		if err := r.shutdown[i](ctx); err != nil {
			r.logger.Warn("shutdown hook failed", "error", err)
		}
	}
	r.shutdown = nil
}

func buildSecrets(rt *Runtime, dataDir string) (secrets.Store, error) {
	fileStore, err := secrets.NewFileStore(filepath.Join(dataDir, "secrets.yaml"))
	if err != nil {
		return nil, fmt.Errorf("open secrets file: %w", err)
	}
	rt.shutdown = append(rt.shutdown, func(context.Context) error {
		return fileStore.Close()
	})
	// Env wins over the file on conflicts.
	return secrets.Chain{secrets.NewEnvStore(), fileStore}, nil
}

func selectModel(dataDir, cliProfile string, settings *config.Settings, getenv func(string) string) (profile.Selected, error) {
	catalog, err := profile.LoadCatalog(dataDir)
	if err != nil {
		return profile.Selected{}, err
	}
	pref, err := profile.LoadPreference(dataDir)
	if err != nil {
		return profile.Selected{}, err
	}
	// The settings default slots below the persisted preference.
	if pref.Profile == "" {
		pref.Profile = settings.Profile
	}
	return catalog.Select(profile.SelectorInput{
		CLIProfile: cliProfile,
		Preference: pref,
		Getenv:     getenv,
	})
}

// childSession is a sub-agent plus the capability host backing its
// registry; Close disposes MCP clients and other contributions.
type childSession struct {
	*agent.Agent
	host *capability.Host
}

func (c *childSession) Close() error {
	c.host.Dispose(context.Background())
	return nil
}

func buildHost(registry *tools.Registry, resolution policy.Resolution, getenv func(string) string, logger *slog.Logger) *capability.Host {
	host := capability.NewHost(registry, resolution, logger)
	// Registration order fixes suite bind order.
	_ = host.Register(files.NewModule(files.Config{}))
	_ = host.Register(shell.NewModule(shell.Config{Getenv: getenv}))
	_ = host.Register(codeintel.NewModule(codeintel.Config{}))
	_ = host.Register(websearch.NewModule(websearch.Config{}))
	_ = host.Register(mcp.NewModule(logger))
	return host
}

func buildContextManager(sel models.ModelSelection, settings *config.Settings, logger *slog.Logger) *agentctx.Manager {
	var estimator agentctx.Estimator
	if settings.Estimator == "tiktoken" {
		est, err := agentctx.NewTiktokenEstimator("cl100k_base")
		if err != nil {
			logger.Warn("tiktoken estimator unavailable, using chars", "error", err)
		} else {
			estimator = est
		}
	}
	return agentctx.NewManager(agentctx.Config{
		Model:         sel.Model,
		WindowFor:     providers.WindowFor,
		Estimator:     estimator,
		TruncateChars: settings.TruncateChars,
		Logger:        logger,
	})
}

func openSnapshots(settings *config.Settings, dataDir string, getenv func(string) string) (snapshot.Store, error) {
	if dsn := getenv("QUARRY_SNAPSHOT_DSN"); dsn != "" {
		return snapshot.NewPostgres(dsn)
	}
	switch settings.SnapshotDriver {
	case "postgres":
		return nil, fmt.Errorf("snapshotDriver postgres requires QUARRY_SNAPSHOT_DSN")
	case "memory":
		return snapshot.NewMemory(), nil
	default: // sqlite
		return snapshot.NewSQLite(filepath.Join(dataDir, "snapshots.db"))
	}
}
