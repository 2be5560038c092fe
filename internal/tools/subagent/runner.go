package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/quarryhq/quarry/internal/snapshot"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/pkg/models"
)

// Runner executes delegated tasks on child agents.
type Runner struct {
	newAgent  NewAgentFunc
	snapshots snapshot.Store
	selection models.ModelSelection
}

// NewRunner builds a runner. selection is the parent's resolved
// selection; children inherit its provider and base system prompt.
func NewRunner(newAgent NewAgentFunc, snapshots snapshot.Store, selection models.ModelSelection) *Runner {
	return &Runner{newAgent: newAgent, snapshots: snapshots, selection: selection}
}

// TaskParams are the run_task arguments.
type TaskParams struct {
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
	SubagentType string `json:"subagent_type"`
	Model        string `json:"model,omitempty"`
	ResumeID     string `json:"resume_id,omitempty"`
}

// Report is the structured outcome of one delegated task.
type Report struct {
	SubagentType string
	Thinking     string
	Response     string
	Duration     time.Duration
	Usage        models.Usage
	ResumeID     string
}

// Run executes one task and persists its snapshot.
func (r *Runner) Run(ctx context.Context, params TaskParams) (*Report, error) {
	st, err := lookupType(params.SubagentType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	var history []models.Message
	if params.ResumeID != "" {
		snap, err := r.snapshots.Load(ctx, params.ResumeID)
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResumeNotFound, params.ResumeID)
		}
		if err != nil {
			return nil, fmt.Errorf("load resume snapshot: %w", err)
		}
		history = snap.History
	}

	sel := r.selection
	sel.SystemPrompt = composePrompt(r.selection.SystemPrompt, st, params.Description)
	if params.Model != "" {
		sel.Model = params.Model
	} else if st.ModelHint != "" {
		sel.Model = st.ModelHint
	}

	child, err := r.newAgent(ctx, sel, history)
	if err != nil {
		return nil, fmt.Errorf("build sub-agent: %w", err)
	}
	// Sessions carrying their own capability host release it here.
	if closer, ok := child.(io.Closer); ok {
		defer closer.Close()
	}

	start := time.Now()
	raw, err := child.Send(ctx, params.Prompt)
	if err != nil {
		return nil, fmt.Errorf("sub-agent run: %w", err)
	}

	snap := &models.Snapshot{
		ID:      params.ResumeID,
		History: child.History(),
		Profile: st.Name,
		Model:   sel.Model,
	}
	if err := r.snapshots.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	thinking, response := splitResponse(raw)
	return &Report{
		SubagentType: st.Name,
		Thinking:     thinking,
		Response:     response,
		Duration:     time.Since(start),
		Usage:        child.Usage(),
		ResumeID:     snap.ID,
	}, nil
}

func composePrompt(base string, st SubType, description string) string {
	parts := []string{}
	if base != "" {
		parts = append(parts, base)
	}
	parts = append(parts, st.Directive)
	if strings.TrimSpace(description) != "" {
		parts = append(parts, "Task: "+strings.TrimSpace(description))
	}
	return strings.Join(parts, "\n\n")
}

var (
	thinkingRe = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
	responseRe = regexp.MustCompile(`(?s)<response>(.*?)</response>`)
)

// splitResponse extracts optional <thinking> and <response> blocks.
// Without markers the whole text is the response.
func splitResponse(raw string) (thinking, response string) {
	if m := thinkingRe.FindStringSubmatch(raw); m != nil {
		thinking = strings.TrimSpace(m[1])
	}
	if m := responseRe.FindStringSubmatch(raw); m != nil {
		return thinking, strings.TrimSpace(m[1])
	}
	cleaned := thinkingRe.ReplaceAllString(raw, "")
	return thinking, strings.TrimSpace(cleaned)
}

// Format renders the report as the run_task tool result.
func (rep *Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Sub-agent report (%s)\n\n", rep.SubagentType)
	b.WriteString(rep.Response)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "duration: %s | tokens: %d in / %d out (%d total) | resume_id: %s\n",
		rep.Duration.Round(time.Millisecond),
		rep.Usage.InputTokens, rep.Usage.OutputTokens, rep.Usage.TotalTokens,
		rep.ResumeID)
	return b.String()
}

// Tool wires the runner into the registry as run_task.
func Tool(r *Runner) tools.Definition {
	return tools.Definition{
		Name:        "run_task",
		Description: "Delegate a task to a scoped sub-agent and return its report. Use resume_id to continue a prior sub-agent session.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{
					"type":        "string",
					"description": "Short summary of the task, shown to the sub-agent.",
				},
				"prompt": map[string]any{
					"type":        "string",
					"description": "Full task prompt for the sub-agent.",
				},
				"subagent_type": map[string]any{
					"type":        "string",
					"description": "Sub-agent flavor.",
					"enum":        []any{"general-purpose", "explore", "plan"},
				},
				"model": map[string]any{
					"type":        "string",
					"description": "Model override for the child (default: inherit).",
				},
				"resume_id": map[string]any{
					"type":        "string",
					"description": "Snapshot id of a prior run to resume.",
				},
			},
			"required": []any{"prompt", "subagent_type"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var params TaskParams
			data, err := json.Marshal(args)
			if err == nil {
				err = json.Unmarshal(data, &params)
			}
			if err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}

			report, err := r.Run(ctx, params)
			if err != nil {
				return nil, err
			}
			return report.Format(), nil
		},
	}
}

// Suite bundles run_task for registration.
func Suite(r *Runner) tools.Suite {
	return tools.Suite{
		ID:    "subagent",
		Tools: []tools.Definition{Tool(r)},
	}
}
