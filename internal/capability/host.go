// Package capability assembles a session's tool surface. Modules
// contribute suites of tools; the host binds them in order, enforces
// the permission resolution, and tears everything down when the
// session ends.
package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quarryhq/quarry/internal/secrets"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/internal/tools/policy"
)

var (
	// ErrSessionFrozen is returned when a module is registered after
	// the first Build.
	ErrSessionFrozen = errors.New("capability host is frozen after build")

	// ErrDuplicateSuite is returned when two contributions claim the
	// same contribution or suite id.
	ErrDuplicateSuite = errors.New("duplicate capability suite")
)

// Module is a source of tool contributions. ID must be stable across
// sessions; Create is invoked once per Build.
type Module interface {
	ID() string
	Create(ctx context.Context, mc ModuleContext) ([]Contribution, error)
}

// ModuleContext carries everything a module may need to build its
// contributions. It is a plain value; modules must not retain the host.
type ModuleContext struct {
	Profile          string
	WorkingDir       string
	WorkspaceContext string
	Env              func(string) string
	Secrets          secrets.Store
	Observer         tools.Observer
}

// Contribution is one named bundle of suites produced by a module.
type Contribution struct {
	ID          string
	Description string
	Suites      []tools.Suite
	Metadata    map[string]any

	// Dispose releases resources held by the contribution. Optional.
	Dispose func(ctx context.Context) error
}

// CapabilityInfo describes one bound contribution for the session
// manifest.
type CapabilityInfo struct {
	ContributionID string         `json:"contribution_id"`
	ModuleID       string         `json:"module_id"`
	Description    string         `json:"description,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type boundContribution struct {
	moduleID string
	contrib  Contribution
}

// Host owns the module list and the registry they populate.
type Host struct {
	registry   *tools.Registry
	resolution policy.Resolution
	logger     *slog.Logger

	modules []Module
	frozen  bool
	bound   []boundContribution
}

// NewHost returns a host that registers allowed suites into registry.
func NewHost(registry *tools.Registry, resolution policy.Resolution, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		registry:   registry,
		resolution: resolution,
		logger:     logger,
	}
}

// Register adds a module. Must be called before Build.
func (h *Host) Register(m Module) error {
	if h.frozen {
		return ErrSessionFrozen
	}
	h.modules = append(h.modules, m)
	return nil
}

// Build invokes every module in registration order and registers the
// permitted suites. The first error aborts the build; already-bound
// contributions are disposed.
func (h *Host) Build(ctx context.Context, mc ModuleContext) error {
	h.frozen = true

	seenContrib := make(map[string]struct{})
	seenSuite := make(map[string]struct{})

	for _, m := range h.modules {
		if !h.resolution.Allows(m.ID()) {
			h.logger.Debug("capability module skipped by policy", "module", m.ID())
			continue
		}

		contribs, err := m.Create(ctx, mc)
		if err != nil {
			h.Dispose(ctx)
			return fmt.Errorf("module %q: %w", m.ID(), err)
		}

		for _, c := range contribs {
			if _, dup := seenContrib[c.ID]; dup {
				h.Dispose(ctx)
				return fmt.Errorf("%w: contribution %q", ErrDuplicateSuite, c.ID)
			}
			seenContrib[c.ID] = struct{}{}

			for _, suite := range c.Suites {
				if _, dup := seenSuite[suite.ID]; dup {
					h.Dispose(ctx)
					return fmt.Errorf("%w: suite %q", ErrDuplicateSuite, suite.ID)
				}
				seenSuite[suite.ID] = struct{}{}

				if err := h.registry.RegisterSuite(suite); err != nil {
					h.Dispose(ctx)
					return fmt.Errorf("module %q suite %q: %w", m.ID(), suite.ID, err)
				}
			}

			h.bound = append(h.bound, boundContribution{moduleID: m.ID(), contrib: c})
		}
	}

	return nil
}

// Dispose tears down bound contributions in reverse order. Errors and
// panics are logged, never propagated.
func (h *Host) Dispose(ctx context.Context) {
	for i := len(h.bound) - 1; i >= 0; i-- {
		b := h.bound[i]
		if b.contrib.Dispose == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Warn("capability dispose panicked",
						"contribution", b.contrib.ID, "panic", fmt.Sprint(r))
				}
			}()
			if err := b.contrib.Dispose(ctx); err != nil {
				h.logger.Warn("capability dispose failed",
					"contribution", b.contrib.ID, "error", err)
			}
		}()
	}
	h.bound = nil
}

// DescribeCapabilities lists bound contributions for the session
// manifest, in bind order.
func (h *Host) DescribeCapabilities() []CapabilityInfo {
	infos := make([]CapabilityInfo, 0, len(h.bound))
	for _, b := range h.bound {
		infos = append(infos, CapabilityInfo{
			ContributionID: b.contrib.ID,
			ModuleID:       b.moduleID,
			Description:    b.contrib.Description,
			Metadata:       b.contrib.Metadata,
		})
	}
	return infos
}
