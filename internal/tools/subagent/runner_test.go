package subagent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quarryhq/quarry/internal/snapshot"
	"github.com/quarryhq/quarry/pkg/models"
)

// fakeAgent records the selection it was built with and replies with a
// canned message.
type fakeAgent struct {
	sel     models.ModelSelection
	seed    []models.Message
	reply   string
	prompt  string
	history []models.Message
}

func (f *fakeAgent) Send(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	f.history = append(append([]models.Message{}, f.seed...),
		models.Message{Role: models.RoleUser, Content: prompt},
		models.Message{Role: models.RoleAssistant, Content: f.reply},
	)
	return f.reply, nil
}

func (f *fakeAgent) History() []models.Message { return f.history }

func (f *fakeAgent) Usage() models.Usage {
	return models.Usage{InputTokens: 100, OutputTokens: 40, TotalTokens: 140}
}

func newTestRunner(reply string) (*Runner, *fakeAgent, *snapshot.MemoryStore) {
	agent := &fakeAgent{reply: reply}
	store := snapshot.NewMemory()
	factory := func(_ context.Context, sel models.ModelSelection, history []models.Message) (AgentRunner, error) {
		agent.sel = sel
		agent.seed = history
		return agent, nil
	}
	parent := models.ModelSelection{
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-20250514",
		SystemPrompt: "You are Quarry.",
	}
	return NewRunner(factory, store, parent), agent, store
}

func TestRunComposesPromptAndPersists(t *testing.T) {
	runner, agent, store := newTestRunner("the repo has three packages")

	report, err := runner.Run(context.Background(), TaskParams{
		Description:  "map the repo",
		Prompt:       "list the packages",
		SubagentType: "explore",
	})
	if err != nil {
		t.Fatal(err)
	}

	sys := agent.sel.SystemPrompt
	if !strings.HasPrefix(sys, "You are Quarry.") {
		t.Fatalf("parent base missing: %q", sys)
	}
	if !strings.Contains(sys, "exploration sub-agent") || !strings.Contains(sys, "Task: map the repo") {
		t.Fatalf("directives missing: %q", sys)
	}
	if agent.sel.Model != "claude-sonnet-4-20250514" {
		t.Fatalf("model = %s", agent.sel.Model)
	}

	if report.Response != "the repo has three packages" {
		t.Fatalf("response = %q", report.Response)
	}
	if report.ResumeID == "" {
		t.Fatal("no resume id")
	}
	if report.Usage.TotalTokens != 140 {
		t.Fatalf("usage = %+v", report.Usage)
	}

	snap, err := store.Load(context.Background(), report.ResumeID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Profile != "explore" || len(snap.History) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRunResume(t *testing.T) {
	runner, agent, store := newTestRunner("continuing")

	seed := &models.Snapshot{History: []models.Message{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier answer"},
	}}
	if err := store.Save(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	report, err := runner.Run(context.Background(), TaskParams{
		Prompt:       "keep going",
		SubagentType: "general-purpose",
		ResumeID:     seed.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(agent.seed) != 2 || agent.seed[0].Content != "earlier question" {
		t.Fatalf("resume history not seeded: %+v", agent.seed)
	}
	if report.ResumeID != seed.ID {
		t.Fatalf("resume id changed: %s vs %s", report.ResumeID, seed.ID)
	}
}

func TestRunResumeNotFound(t *testing.T) {
	runner, _, _ := newTestRunner("x")

	_, err := runner.Run(context.Background(), TaskParams{
		Prompt:       "go",
		SubagentType: "general-purpose",
		ResumeID:     "missing",
	})
	if !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunUnknownType(t *testing.T) {
	runner, _, _ := newTestRunner("x")
	_, err := runner.Run(context.Background(), TaskParams{Prompt: "go", SubagentType: "wizard"})
	if err == nil || !strings.Contains(err.Error(), "unknown subagent_type") {
		t.Fatalf("err = %v", err)
	}
}

func TestSplitResponse(t *testing.T) {
	thinking, response := splitResponse("<thinking>weighing options</thinking><response>done</response>")
	if thinking != "weighing options" || response != "done" {
		t.Fatalf("split = %q / %q", thinking, response)
	}

	thinking, response = splitResponse("plain answer")
	if thinking != "" || response != "plain answer" {
		t.Fatalf("split = %q / %q", thinking, response)
	}

	// Thinking without explicit response: strip the thinking block.
	thinking, response = splitResponse("<thinking>hmm</thinking>the rest")
	if thinking != "hmm" || response != "the rest" {
		t.Fatalf("split = %q / %q", thinking, response)
	}
}

func TestReportFormat(t *testing.T) {
	runner, _, _ := newTestRunner("<response>all clear</response>")

	report, err := runner.Run(context.Background(), TaskParams{
		Prompt:       "check",
		SubagentType: "plan",
	})
	if err != nil {
		t.Fatal(err)
	}
	out := report.Format()
	for _, want := range []string{"## Sub-agent report (plan)", "all clear", "resume_id: " + report.ResumeID, "140 total"} {
		if !strings.Contains(out, want) {
			t.Fatalf("format missing %q:\n%s", want, out)
		}
	}
}
