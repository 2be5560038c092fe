package context

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/quarryhq/quarry/pkg/models"
)

// Window fractions. The hard ceiling leaves a sliver of the provider
// window for the response; pruning aims well below the ceiling so the
// conversation has room to grow between prunes.
const (
	maxWindowFraction    = 0.97
	targetWindowFraction = 0.75

	// Fallbacks when the model is not in the catalog.
	fallbackMaxTokens    = 130_000
	fallbackTargetTokens = 100_000
)

// Config tunes the manager.
type Config struct {
	// Model selects the window from WindowFor. Empty or unknown
	// models use the fallback thresholds.
	Model string

	// WindowFor maps a model id to its context window in tokens.
	// Returns 0 when unknown.
	WindowFor func(model string) int

	// Estimator defaults to CharEstimator{} when nil.
	Estimator Estimator

	// PreserveRecentMessages is the number of trailing user turns
	// pruning keeps intact. Defaults to 2.
	PreserveRecentMessages int

	// TruncateChars caps tool output. Defaults to
	// DefaultTruncateChars.
	TruncateChars int

	Logger *slog.Logger
}

// Manager tracks the token budget of one conversation.
type Manager struct {
	cfg          Config
	est          Estimator
	maxTokens    int
	targetTokens int
	debug        bool
}

// NewManager resolves thresholds for the configured model.
func NewManager(cfg Config) *Manager {
	est := cfg.Estimator
	if est == nil {
		est = CharEstimator{}
	}
	if cfg.PreserveRecentMessages <= 0 {
		cfg.PreserveRecentMessages = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	maxTokens, targetTokens := fallbackMaxTokens, fallbackTargetTokens
	if cfg.WindowFor != nil {
		if window := cfg.WindowFor(cfg.Model); window > 0 {
			maxTokens = int(float64(window) * maxWindowFraction)
			targetTokens = int(float64(maxTokens) * targetWindowFraction)
		}
	}

	return &Manager{
		cfg:          cfg,
		est:          est,
		maxTokens:    maxTokens,
		targetTokens: targetTokens,
		debug:        os.Getenv("DEBUG_CONTEXT") == "1",
	}
}

// MaxTokens is the hard ceiling for this model.
func (m *Manager) MaxTokens() int { return m.maxTokens }

// TargetTokens is the pruning trigger and goal.
func (m *Manager) TargetTokens() int { return m.targetTokens }

// EstimateTokens sums the estimator over messages.
func (m *Manager) EstimateTokens(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		total += m.est.EstimateMessage(msg)
	}
	return total
}

// Stats derives the current window pressure. Never persisted.
func (m *Manager) Stats(messages []models.Message) models.ContextStats {
	total := m.EstimateTokens(messages)
	pct := 0.0
	if m.maxTokens > 0 {
		pct = float64(total) / float64(m.maxTokens) * 100
	}
	// The approaching flag is the prune trigger: whenever it is
	// false, Prune must be a no-op.
	return models.ContextStats{
		TotalTokens:        total,
		Percentage:         pct,
		IsApproachingLimit: total >= m.targetTokens,
		IsOverLimit:        total > m.maxTokens,
	}
}

// Prune drops old history once the estimate reaches the target. The
// first system message survives; the most recent user turns (default
// 2), each with its assistant and tool tail, survive; everything in
// between is replaced by a synthetic summary notice. Returns the
// pruned slice and the number of removed messages.
func (m *Manager) Prune(messages []models.Message) ([]models.Message, int) {
	total := m.EstimateTokens(messages)
	if total < m.targetTokens {
		return messages, 0
	}

	keepFrom := m.pruneBoundary(messages)
	if keepFrom <= 0 {
		return messages, 0
	}

	var pruned []models.Message
	systemKept := false
	if messages[0].Role == models.RoleSystem {
		pruned = append(pruned, messages[0])
		systemKept = true
	}

	removed := keepFrom
	if systemKept {
		removed--
	}
	if removed <= 0 {
		return messages, 0
	}

	pruned = append(pruned, models.Message{
		Role: models.RoleSystem,
		Content: fmt.Sprintf(
			"[Context Manager: Removed %d old messages to conserve context window]",
			removed),
	})
	pruned = append(pruned, messages[keepFrom:]...)

	m.debugf("pruned history",
		"removed", removed,
		"before_tokens", total,
		"after_tokens", m.EstimateTokens(pruned))
	return pruned, removed
}

// pruneBoundary walks from the tail counting user turns and returns
// the index of the oldest message to keep.
func (m *Manager) pruneBoundary(messages []models.Message) int {
	userTurns := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			userTurns++
			if userTurns >= m.cfg.PreserveRecentMessages {
				return i
			}
		}
	}
	return 0
}

func (m *Manager) debugf(msg string, args ...any) {
	if m.debug {
		m.cfg.Logger.Debug(msg, args...)
	}
}
