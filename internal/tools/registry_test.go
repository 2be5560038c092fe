package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu        sync.Mutex
	starts    []string
	results   []string
	errs      []string
	cacheHits []string
}

func (o *recordingObserver) OnToolStart(name, id string, args map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, name)
}

func (o *recordingObserver) OnToolResult(name, id, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *recordingObserver) OnToolError(name, id, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, errMsg)
}

func (o *recordingObserver) OnCacheHit(name, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cacheHits = append(o.cacheHits, name)
}

func echoSuite() Suite {
	return Suite{
		ID: "test",
		Tools: []Definition{{
			Name:        "echo_tool",
			Description: "Echoes the message back.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string"},
				},
				"required": []any{"message"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				msg, _ := args["message"].(string)
				return "Echo: " + msg, nil
			},
		}},
	}
}

func TestExecuteEchoRoundTrip(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterSuite(echoSuite()); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := r.Execute(context.Background(), Call{ID: "c1", Name: "echo_tool", Arguments: map[string]any{"message": "hello"}})
	if got != "Echo: hello" {
		t.Fatalf("got %q", got)
	}

	// Arguments as a JSON-encoded string normalize to the same mapping.
	got = r.Execute(context.Background(), Call{ID: "c2", Name: "echo_tool", Arguments: `{"message":"hello"}`})
	if got != "Echo: hello" {
		t.Fatalf("string arguments: got %q", got)
	}
}

func TestExecuteMissingRequiredProperty(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterSuite(echoSuite()); err != nil {
		t.Fatalf("register: %v", err)
	}
	obs := &recordingObserver{}
	r.AddObserver(obs)

	got := r.Execute(context.Background(), Call{ID: "c2", Name: "echo_tool", Arguments: map[string]any{}})
	want := `Invalid arguments for "echo_tool": Missing required property "message".`
	if !strings.HasPrefix(got, want) {
		t.Fatalf("got %q, want prefix %q", got, want)
	}
	if len(obs.errs) != 1 {
		t.Fatalf("expected one OnToolError, got %d", len(obs.errs))
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	got := r.Execute(context.Background(), Call{ID: "c1", Name: "ghost"})
	if got != `Tool "ghost" is not available.` {
		t.Fatalf("got %q", got)
	}
}

func TestExecuteHandlerFailureInBand(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterSuite(Suite{ID: "s", Tools: []Definition{{
		Name: "broken",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("disk on fire")
		},
	}}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	got := r.Execute(context.Background(), Call{ID: "c1", Name: "broken"})
	if got != `Failed to run "broken": disk on fire` {
		t.Fatalf("got %q", got)
	}
}

func TestExecuteHandlerPanicContained(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterSuite(Suite{ID: "s", Tools: []Definition{{
		Name: "panicky",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			panic("kaboom")
		},
	}}})
	got := r.Execute(context.Background(), Call{ID: "c1", Name: "panicky"})
	if !strings.HasPrefix(got, `Failed to run "panicky": panic: kaboom`) {
		t.Fatalf("got %q", got)
	}
}

func TestCacheHitOnIdempotentTool(t *testing.T) {
	r := NewRegistry()
	calls := 0
	_ = r.RegisterSuite(Suite{ID: "files", Tools: []Definition{{
		Name: "Read",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			return fmt.Sprintf("content %d", calls), nil
		},
	}}})
	obs := &recordingObserver{}
	r.AddObserver(obs)

	args := map[string]any{"path": "README.md"}
	first := r.Execute(context.Background(), Call{ID: "c1", Name: "Read", Arguments: args})
	second := r.Execute(context.Background(), Call{ID: "c2", Name: "Read", Arguments: args})
	if first != second {
		t.Fatalf("cache returned different output: %q vs %q", first, second)
	}
	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1", calls)
	}
	if len(obs.cacheHits) != 1 {
		t.Fatalf("OnCacheHit fired %d times, want 1", len(obs.cacheHits))
	}
}

func TestCacheKeyCanonicalization(t *testing.T) {
	r := NewRegistry()
	calls := 0
	_ = r.RegisterSuite(Suite{ID: "files", Tools: []Definition{{
		Name: "Read",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			return "data", nil
		},
	}}})

	r.Execute(context.Background(), Call{ID: "c1", Name: "Read", Arguments: map[string]any{"a": 1.0, "b": "x"}})
	// Same arguments via a differently-ordered JSON string hit the cache.
	r.Execute(context.Background(), Call{ID: "c2", Name: "Read", Arguments: `{"b":"x","a":1}`})
	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1", calls)
	}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	r := NewRegistry()
	before := len(r.ProviderTools())
	if err := r.RegisterSuite(echoSuite()); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.UnregisterSuite("test")
	if got := len(r.ProviderTools()); got != before {
		t.Fatalf("listing not restored: %d tools", got)
	}
}

func TestDuplicateToolAcrossSuites(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterSuite(echoSuite())
	err := r.RegisterSuite(Suite{ID: "other", Tools: []Definition{{
		Name:    "echo_tool",
		Handler: func(ctx context.Context, args map[string]any) (any, error) { return "", nil },
	}}})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestSuiteReplaceIsAtomic(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterSuite(echoSuite())
	err := r.RegisterSuite(Suite{ID: "test", Tools: []Definition{{
		Name:    "renamed_tool",
		Handler: func(ctx context.Context, args map[string]any) (any, error) { return "ok", nil },
	}}})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if r.Has("echo_tool") {
		t.Fatal("replaced suite left old tool behind")
	}
	if !r.Has("renamed_tool") {
		t.Fatal("replacement tool missing")
	}
}

func TestReservedMCPPrefixRejected(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterSuite(Suite{ID: "local", Tools: []Definition{{
		Name:    "mcp__shady__tool",
		Handler: func(ctx context.Context, args map[string]any) (any, error) { return "", nil },
	}}})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected reserved-name rejection, got %v", err)
	}

	// The MCP bridge's own suites may use the prefix.
	err = r.RegisterSuite(Suite{ID: "mcp:shady", Tools: []Definition{{
		Name:    "mcp__shady__tool",
		Handler: func(ctx context.Context, args map[string]any) (any, error) { return "", nil },
	}}})
	if err != nil {
		t.Fatalf("mcp suite rejected: %v", err)
	}
}

func TestProviderToolsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	mk := func(name string) Definition {
		return Definition{Name: name, Handler: func(ctx context.Context, args map[string]any) (any, error) { return "", nil }}
	}
	_ = r.RegisterSuite(Suite{ID: "a", Tools: []Definition{mk("zeta"), mk("alpha")}})
	_ = r.RegisterSuite(Suite{ID: "b", Tools: []Definition{mk("mid")}})

	listing := r.ProviderTools()
	got := make([]string, len(listing))
	for i, s := range listing {
		got[i] = s.Name
	}
	want := []string{"zeta", "alpha", "mid"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	r := NewRegistryWithTTL(10 * time.Millisecond)
	calls := 0
	_ = r.RegisterSuite(Suite{ID: "files", Tools: []Definition{{
		Name: "Read",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			return "data", nil
		},
	}}})
	call := Call{ID: "c", Name: "Read", Arguments: map[string]any{"path": "x"}}
	r.Execute(context.Background(), call)
	time.Sleep(20 * time.Millisecond)
	r.Execute(context.Background(), call)
	if calls != 2 {
		t.Fatalf("expired entry served from cache (calls=%d)", calls)
	}
}
