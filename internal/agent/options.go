package agent

import (
	"log/slog"

	agentctx "github.com/quarryhq/quarry/internal/agent/context"
	"github.com/quarryhq/quarry/internal/agent/providers"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

// DefaultMaxTurns bounds provider round-trips per Send.
const DefaultMaxTurns = 32

// Callbacks are out-of-band observer hooks. They are not AgentEvents;
// the stream is unaffected by them.
type Callbacks struct {
	// OnContextPruned fires after pruning removed messages, before
	// the next provider call.
	OnContextPruned func(removed int, stats models.ContextStats)
}

// Config assembles an agent.
type Config struct {
	Provider  providers.Provider
	Registry  *tools.Registry
	Context   *agentctx.Manager
	Selection models.ModelSelection

	// History seeds the conversation, e.g. from a snapshot.
	History []models.Message

	// MaxTurns defaults to DefaultMaxTurns.
	MaxTurns int

	Callbacks Callbacks
	Logger    *slog.Logger
}

func (c *Config) sanitize() {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Context == nil {
		c.Context = agentctx.NewManager(agentctx.Config{
			Model:     c.Selection.Model,
			WindowFor: providers.WindowFor,
		})
	}
}
