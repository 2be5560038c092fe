// Package agent drives the conversation loop: ask the provider, run
// the tools it requests, feed the results back, repeat until a plain
// message or the turn ceiling. One agent owns one conversation.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	agentctx "github.com/quarryhq/quarry/internal/agent/context"
	"github.com/quarryhq/quarry/internal/agent/providers"
	"github.com/quarryhq/quarry/internal/events"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

// Agent runs one conversation against one provider and registry.
// Send and SendStream are mutually exclusive per instance; a second
// call while a run is active fails with ErrAlreadyRunning.
type Agent struct {
	provider  providers.Provider
	registry  *tools.Registry
	ctxmgr    *agentctx.Manager
	selection models.ModelSelection
	maxTurns  int
	callbacks Callbacks
	logger    *slog.Logger

	running atomic.Bool

	// history is mutated only by the active run.
	history []models.Message
	usage   models.Usage

	// emit forwards registry observer callbacks to the active run's
	// stream. Nil outside a streaming run.
	emitMu sync.RWMutex
	emit   func(models.AgentEvent)
}

// New assembles an agent and attaches it to the registry's observer
// list. The registry also gets the context manager as its output
// truncator.
func New(cfg Config) *Agent {
	cfg.sanitize()

	a := &Agent{
		provider:  cfg.Provider,
		registry:  cfg.Registry,
		ctxmgr:    cfg.Context,
		selection: cfg.Selection,
		maxTurns:  cfg.MaxTurns,
		callbacks: cfg.Callbacks,
		logger:    cfg.Logger,
		history:   append([]models.Message(nil), cfg.History...),
	}
	a.registry.AddObserver(a)
	a.registry.SetTruncator(a.ctxmgr)
	return a
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []models.Message {
	return append([]models.Message(nil), a.history...)
}

// Usage returns the tokens consumed across the agent's lifetime.
func (a *Agent) Usage() models.Usage { return a.usage }

// Stats reports current window pressure.
func (a *Agent) Stats() models.ContextStats {
	return a.ctxmgr.Stats(a.history)
}

// Selection returns the immutable model selection. Switching models
// means building a new agent from History().
func (a *Agent) Selection() models.ModelSelection { return a.selection }

// Send runs one user turn to completion and returns the final
// assistant text. Tool calls requested along the way are executed
// transparently.
func (a *Agent) Send(ctx context.Context, text string) (string, error) {
	if !a.running.CompareAndSwap(false, true) {
		return "", ErrAlreadyRunning
	}
	defer a.running.Store(false)

	a.history = append(a.history, models.Message{Role: models.RoleUser, Content: text})

	for turn := 0; turn < a.maxTurns; turn++ {
		a.pruneHistory()

		resp, err := a.provider.Generate(ctx, a.buildRequest())
		if err != nil {
			return "", err
		}
		a.addUsage(resp.Usage)

		if resp.Kind == providers.ResponseToolCalls && len(resp.ToolCalls) > 0 {
			if resp.Content != "" {
				// Narration precedes the tool events.
				a.emitEvent(models.NewMessageDelta(resp.Content, false))
			}
			a.history = append(a.history, models.Message{
				Role:      models.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			a.history = append(a.history, a.executeTools(ctx, resp.ToolCalls)...)
			continue
		}

		a.history = append(a.history, models.Message{
			Role:    models.RoleAssistant,
			Content: resp.Content,
		})
		return resp.Content, nil
	}

	return "", &TurnLimitError{Limit: a.maxTurns}
}

// SendStream runs one user turn, delivering progress on the returned
// stream. Failures surface as a single error event before close.
func (a *Agent) SendStream(ctx context.Context, text string) *events.Stream {
	stream := events.New(events.DefaultCapacity)

	if !a.running.CompareAndSwap(false, true) {
		stream.Push(models.NewError(ErrAlreadyRunning.Error(), "already_running"))
		stream.Close()
		return stream
	}

	go func() {
		defer a.running.Store(false)
		defer stream.Close()

		a.setEmit(stream.Push)
		defer a.setEmit(nil)

		stream.Push(models.NewMessageStart())

		if err := a.runStreaming(ctx, text, stream); err != nil {
			a.logger.Error("agent run failed", "error", err)
			stream.Push(models.NewError(err.Error(), errorCode(err)))
		}
	}()

	return stream
}

func (a *Agent) runStreaming(ctx context.Context, text string, stream *events.Stream) error {
	start := time.Now()
	a.history = append(a.history, models.Message{Role: models.RoleUser, Content: text})

	var lastUsage *models.Usage

	for turn := 0; turn < a.maxTurns; turn++ {
		// A cancelled consumer makes the stream terminal; stop before
		// starting another provider call.
		if stream.Done() {
			return nil
		}
		a.pruneHistory()

		chunks, err := a.provider.Stream(ctx, a.buildRequest())
		if err != nil {
			return err
		}

		var content strings.Builder
		var calls []models.ToolCall

		for chunk := range chunks {
			switch {
			case chunk.Err != nil:
				return chunk.Err
			case chunk.Text != "":
				content.WriteString(chunk.Text)
				stream.Push(models.NewMessageDelta(chunk.Text, false))
			case chunk.ToolCall != nil:
				calls = append(calls, *chunk.ToolCall)
			case chunk.Usage != nil:
				a.addUsage(chunk.Usage)
				lastUsage = chunk.Usage
			}
		}

		if len(calls) > 0 {
			a.history = append(a.history, models.Message{
				Role:      models.RoleAssistant,
				Content:   content.String(),
				ToolCalls: calls,
			})
			a.history = append(a.history, a.executeTools(ctx, calls)...)
			if stream.Done() {
				return nil
			}
			continue
		}

		a.history = append(a.history, models.Message{
			Role:    models.RoleAssistant,
			Content: content.String(),
		})
		stream.Push(models.NewMessageComplete(content.String(), time.Since(start)))
		if lastUsage != nil {
			stream.Push(models.NewUsage(*lastUsage))
		}
		return nil
	}

	return &TurnLimitError{Limit: a.maxTurns}
}

func (a *Agent) buildRequest() *providers.Request {
	return &providers.Request{
		Model:           a.selection.Model,
		System:          a.selection.SystemPrompt,
		Messages:        a.history,
		Tools:           a.registry.ProviderTools(),
		Temperature:     a.selection.Temperature,
		MaxTokens:       a.selection.MaxTokens,
		ReasoningEffort: a.selection.ReasoningEffort,
		Verbosity:       a.selection.Verbosity,
	}
}

func (a *Agent) pruneHistory() {
	pruned, removed := a.ctxmgr.Prune(a.history)
	if removed == 0 {
		return
	}
	a.history = pruned
	if a.callbacks.OnContextPruned != nil {
		a.callbacks.OnContextPruned(removed, a.ctxmgr.Stats(a.history))
	}
}

func (a *Agent) addUsage(u *models.Usage) {
	if u != nil {
		a.usage.Add(*u)
	}
}

func (a *Agent) setEmit(fn func(models.AgentEvent)) {
	a.emitMu.Lock()
	a.emit = fn
	a.emitMu.Unlock()
}

func (a *Agent) emitEvent(ev models.AgentEvent) {
	a.emitMu.RLock()
	fn := a.emit
	a.emitMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Registry observer hooks: forward tool lifecycle into the active
// run's stream.

// OnToolStart implements tools.Observer.
func (a *Agent) OnToolStart(name, id string, args map[string]any) {
	a.emitEvent(models.NewToolStart(name, id, args))
}

// OnToolResult implements tools.Observer.
func (a *Agent) OnToolResult(name, id, result string) {
	a.emitEvent(models.NewToolComplete(name, id, result))
}

// OnToolError implements tools.Observer.
func (a *Agent) OnToolError(name, id, errMsg string) {
	a.emitEvent(models.NewToolError(name, id, errMsg))
}

// OnCacheHit implements tools.Observer. Cache hits surface through
// OnToolResult; nothing extra goes on the stream.
func (a *Agent) OnCacheHit(name, id string) {}

func errorCode(err error) string {
	switch {
	case IsTurnLimit(err):
		return "turn_limit_exceeded"
	case providers.IsMissingSecret(err):
		return "missing_secret"
	case providers.IsRateLimited(err):
		return "rate_limited"
	default:
		return ""
	}
}
