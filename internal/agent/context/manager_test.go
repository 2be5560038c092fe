package context

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/quarryhq/quarry/pkg/models"
)

func TestCharEstimator(t *testing.T) {
	est := CharEstimator{}
	msg := models.Message{Role: models.RoleUser, Content: "1234567"}
	if got := est.EstimateMessage(msg); got != 3 {
		t.Fatalf("ceil(7/3) = 3, got %d", got)
	}

	withCall := models.Message{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{{
			Name:      "read_file",
			Arguments: map[string]any{"path": "a.go"},
		}},
	}
	want := len("read_file") + len(`{"path":"a.go"}`)
	if got := est.EstimateMessage(withCall); got != want {
		t.Fatalf("tool call overhead: got %d, want %d", got, want)
	}
}

func TestManagerThresholds(t *testing.T) {
	m := NewManager(Config{
		Model:     "test-model",
		WindowFor: func(string) int { return 200_000 },
	})
	if m.MaxTokens() != 194_000 {
		t.Fatalf("maxTokens = %d", m.MaxTokens())
	}
	if m.TargetTokens() != 145_500 {
		t.Fatalf("targetTokens = %d", m.TargetTokens())
	}

	unknown := NewManager(Config{Model: "mystery", WindowFor: func(string) int { return 0 }})
	if unknown.MaxTokens() != 130_000 || unknown.TargetTokens() != 100_000 {
		t.Fatalf("fallback thresholds = %d/%d", unknown.MaxTokens(), unknown.TargetTokens())
	}
}

func TestStatsFlags(t *testing.T) {
	m := NewManager(Config{Model: "m", WindowFor: func(string) int { return 0 }})

	calm := []models.Message{{Role: models.RoleUser, Content: strings.Repeat("x", 300)}}
	if s := m.Stats(calm); s.IsApproachingLimit || s.IsOverLimit {
		t.Fatalf("small history flagged: %+v", s)
	}

	over := []models.Message{{Role: models.RoleUser, Content: strings.Repeat("x", 3*131_000)}}
	s := m.Stats(over)
	if !s.IsApproachingLimit || !s.IsOverLimit {
		t.Fatalf("oversized history not flagged: %+v", s)
	}
	if s.Percentage <= 100 {
		t.Fatalf("percentage = %f", s.Percentage)
	}
}

// Stats and Prune share the target threshold: a calm Stats reading
// guarantees Prune leaves the history alone, and any history Prune
// would touch is already flagged.
func TestApproachingFlagGatesPruning(t *testing.T) {
	m := NewManager(Config{Model: "m", WindowFor: func(string) int { return 0 }})

	mkHistory := func(tokens int) []models.Message {
		per := tokens / 6
		h := make([]models.Message, 0, 6)
		for i := 0; i < 6; i++ {
			role := models.RoleUser
			if i%2 == 1 {
				role = models.RoleAssistant
			}
			h = append(h, models.Message{Role: role, Content: strings.Repeat("x", per*3)})
		}
		return h
	}

	// Just over the 100k fallback target, below the old-style warn
	// band: must be flagged, and pruning may act.
	hot := mkHistory(100_002)
	if s := m.Stats(hot); !s.IsApproachingLimit {
		t.Fatalf("history at %d tokens not flagged: %+v", s.TotalTokens, s)
	}

	// Just under target: not flagged, and Prune must be a no-op.
	calm := mkHistory(99_996)
	s := m.Stats(calm)
	if s.IsApproachingLimit {
		t.Fatalf("history at %d tokens flagged early: %+v", s.TotalTokens, s)
	}
	if _, removed := m.Prune(calm); removed != 0 {
		t.Fatalf("IsApproachingLimit=false but Prune removed %d messages", removed)
	}
}

// bigMsg is large enough that a handful crosses the fallback target.
func bigMsg(role models.Role, tag string) models.Message {
	return models.Message{Role: role, Content: tag + " " + strings.Repeat("x", 90_000)}
}

func TestPruneKeepsSystemAndRecentTurns(t *testing.T) {
	m := NewManager(Config{Model: "m", WindowFor: func(string) int { return 0 }})

	history := []models.Message{
		{Role: models.RoleSystem, Content: "base instructions"},
		bigMsg(models.RoleUser, "u1"),
		bigMsg(models.RoleAssistant, "a1"),
		bigMsg(models.RoleUser, "u2"),
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "t1", Name: "read_file", Arguments: map[string]any{"path": "x"}}}},
		{Role: models.RoleTool, ToolCallID: "t1", ToolName: "read_file", Content: "tool output"},
		bigMsg(models.RoleAssistant, "a2"),
		bigMsg(models.RoleUser, "u3"),
		bigMsg(models.RoleAssistant, "a3"),
	}

	pruned, removed := m.Prune(history)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 (u1, a1)", removed)
	}

	if pruned[0].Content != "base instructions" {
		t.Fatal("first system message must survive")
	}
	want := fmt.Sprintf("[Context Manager: Removed %d old messages to conserve context window]", removed)
	if pruned[1].Role != models.RoleSystem || pruned[1].Content != want {
		t.Fatalf("synthetic notice = %+v", pruned[1])
	}
	if !strings.HasPrefix(pruned[2].Content, "u2") {
		t.Fatalf("oldest kept message should be u2, got %q", pruned[2].Content[:8])
	}
	// The tool tail of the kept turns is intact.
	if pruned[4].Role != models.RoleTool || pruned[4].ToolCallID != "t1" {
		t.Fatalf("tool message lost: %+v", pruned[4])
	}
}

func TestPruneBelowTargetNoop(t *testing.T) {
	m := NewManager(Config{Model: "m", WindowFor: func(string) int { return 0 }})
	history := []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	pruned, removed := m.Prune(history)
	if removed != 0 || len(pruned) != 3 {
		t.Fatalf("unexpected prune: removed=%d len=%d", removed, len(pruned))
	}
}

func TestPruneNothingOldEnough(t *testing.T) {
	m := NewManager(Config{Model: "m", WindowFor: func(string) int { return 0 }})
	// Over target but only two user turns total, both preserved.
	history := []models.Message{
		bigMsg(models.RoleUser, "u1"),
		bigMsg(models.RoleAssistant, "a1"),
		bigMsg(models.RoleUser, "u2"),
		bigMsg(models.RoleAssistant, "a2"),
	}
	pruned, removed := m.Prune(history)
	if removed != 0 || len(pruned) != 4 {
		t.Fatalf("prune should be a no-op, removed=%d", removed)
	}
}

var (
	linesMarker   = regexp.MustCompile(`\[\.\.\. (\d+) lines truncated \.\.\.\]`)
	resultsMarker = regexp.MustCompile(`\[\.\.\. (\d+) more results truncated \.\.\.\]`)
	charsMarker   = regexp.MustCompile(`\[\.\.\. (\d+) chars truncated \.\.\.\]`)
)

func truncMgr(capChars int) *Manager {
	return NewManager(Config{Model: "m", WindowFor: func(string) int { return 0 }, TruncateChars: capChars})
}

func TestTruncateReadHeadTailReconciles(t *testing.T) {
	m := truncMgr(2_000)

	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, fmt.Sprintf("line %03d padding padding", i))
	}
	original := strings.Join(lines, "\n")

	out := m.TruncateToolOutput("read_file", original)
	match := linesMarker.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("no marker in output: %q", out[:120])
	}
	removed, _ := strconv.Atoi(match[1])

	kept := 0
	for _, line := range strings.Split(out, "\n") {
		if !linesMarker.MatchString(line) {
			kept++
		}
	}
	if kept+removed != len(lines) {
		t.Fatalf("line accounting: kept %d + removed %d != %d", kept, removed, len(lines))
	}
	if !strings.HasPrefix(out, "line 000") || !strings.HasSuffix(out, lines[len(lines)-1]) {
		t.Fatal("head and tail must both survive")
	}
}

func TestTruncateGrepLeading(t *testing.T) {
	m := truncMgr(500)

	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf("match %02d: some context here", i))
	}
	out := m.TruncateToolOutput("grep_search", strings.Join(lines, "\n"))

	match := resultsMarker.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("no marker: %q", out)
	}
	removed, _ := strconv.Atoi(match[1])
	kept := len(strings.Split(out, "\n")) - 1
	if kept+removed != 100 {
		t.Fatalf("result accounting: %d + %d != 100", kept, removed)
	}
	if !strings.HasPrefix(out, "match 00") {
		t.Fatal("leading results must survive")
	}
}

func TestTruncateBashTailHeavy(t *testing.T) {
	m := truncMgr(1_000)

	original := strings.Repeat("h", 2_000) + "TAIL-SENTINEL"
	out := m.TruncateToolOutput("execute_bash", original)

	match := charsMarker.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("no marker: %q", out)
	}
	removed, _ := strconv.Atoi(match[1])
	keptChars := len(out) - len(match[0]) - 2 // marker plus its surrounding newlines
	if keptChars+removed != len(original) {
		t.Fatalf("char accounting: %d + %d != %d", keptChars, removed, len(original))
	}
	if !strings.HasSuffix(out, "TAIL-SENTINEL") {
		t.Fatal("tail must survive")
	}
	if !strings.HasPrefix(out, "h") {
		t.Fatal("small head prefix must survive")
	}
}

func TestTruncateDefaultPrefix(t *testing.T) {
	m := truncMgr(100)

	original := strings.Repeat("a", 250)
	out := m.TruncateToolOutput("web_search", original)

	match := charsMarker.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("no marker: %q", out)
	}
	if removed, _ := strconv.Atoi(match[1]); removed != 150 {
		t.Fatalf("removed = %d, want 150", removed)
	}
	if !strings.HasPrefix(out, "aaa") {
		t.Fatal("prefix must survive")
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	m := truncMgr(1_000)

	// Three-byte runes put the raw byte cut points mid-character for
	// both the tail-heavy and prefix strategies.
	original := strings.Repeat("世", 700)
	for _, tool := range []string{"execute_bash", "web_search"} {
		out := m.TruncateToolOutput(tool, original)
		if out == original {
			t.Fatalf("%s: output not truncated", tool)
		}
		if !utf8.ValidString(out) {
			t.Fatalf("%s: truncated output is not valid UTF-8: %q", tool, out)
		}
	}
}

func TestTruncateUnderCapUntouched(t *testing.T) {
	m := truncMgr(1_000)
	if out := m.TruncateToolOutput("read_file", "short"); out != "short" {
		t.Fatalf("short output modified: %q", out)
	}
}
