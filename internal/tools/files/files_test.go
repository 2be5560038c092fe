package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quarryhq/quarry/internal/tools"
)

func newSuiteRegistry(t *testing.T, workspace string) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	if err := reg.RegisterSuite(Suite(Config{Workspace: workspace})); err != nil {
		t.Fatal(err)
	}
	return reg
}

func exec(t *testing.T, reg *tools.Registry, name string, args map[string]any) map[string]any {
	t.Helper()
	out := reg.Execute(context.Background(), tools.Call{ID: "t1", Name: name, Arguments: args})
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("%s output not JSON: %q", name, out)
	}
	return decoded
}

func TestResolverConfinesToWorkspace(t *testing.T) {
	r := Resolver{Root: t.TempDir()}

	if _, err := r.Resolve("../outside.txt"); err == nil {
		t.Fatal("expected escape to fail")
	}
	if _, err := r.Resolve("/etc/passwd"); err == nil {
		t.Fatal("expected absolute escape to fail")
	}
	if _, err := r.Resolve("sub/inside.txt"); err != nil {
		t.Fatalf("relative path rejected: %v", err)
	}
	if _, err := r.Resolve("  "); err == nil {
		t.Fatal("expected blank path to fail")
	}
}

func TestWriteThenRead(t *testing.T) {
	ws := t.TempDir()
	reg := newSuiteRegistry(t, ws)

	wrote := exec(t, reg, "write_file", map[string]any{
		"path":    "notes/hello.txt",
		"content": "hello quarry",
	})
	if wrote["bytes_written"].(float64) != 12 {
		t.Fatalf("bytes_written = %v", wrote["bytes_written"])
	}

	read := exec(t, reg, "read_file", map[string]any{"path": "notes/hello.txt"})
	if read["content"] != "hello quarry" {
		t.Fatalf("content = %v", read["content"])
	}
	if read["truncated"] != false {
		t.Fatal("unexpected truncation")
	}
}

func TestReadFileOffsetAndLimit(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "data.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := newSuiteRegistry(t, ws)

	read := exec(t, reg, "read_file", map[string]any{
		"path": "data.txt", "offset": 2, "max_bytes": 4,
	})
	if read["content"] != "2345" {
		t.Fatalf("content = %v", read["content"])
	}
	if read["truncated"] != true {
		t.Fatal("expected truncated flag")
	}
}

func TestReadMissingFileFailsInBand(t *testing.T) {
	reg := newSuiteRegistry(t, t.TempDir())
	out := reg.Execute(context.Background(), tools.Call{
		ID: "t1", Name: "read_file",
		Arguments: map[string]any{"path": "nope.txt"},
	})
	if !strings.HasPrefix(out, `Failed to run "read_file":`) {
		t.Fatalf("unexpected failure shape: %q", out)
	}
}

func TestListDirSortsAndTruncates(t *testing.T) {
	ws := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(ws, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reg := newSuiteRegistry(t, ws)

	out := exec(t, reg, "list_dir", map[string]any{"max_entries": 2})
	entries := out["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].(map[string]any)["name"] != "a.txt" {
		t.Fatalf("not sorted: %v", entries)
	}
	if out["truncated"] != true {
		t.Fatal("expected truncation")
	}
}

func TestGlobSearch(t *testing.T) {
	ws := t.TempDir()
	mustWrite := func(rel string) {
		path := filepath.Join(ws, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("main.go")
	mustWrite("pkg/util.go")
	mustWrite("pkg/util_test.go")
	mustWrite("node_modules/dep/index.go")
	reg := newSuiteRegistry(t, ws)

	out := exec(t, reg, "glob_search", map[string]any{"pattern": "*.go"})
	count := int(out["count"].(float64))
	if count != 3 {
		t.Fatalf("bare pattern matched %d files: %v", count, out["matches"])
	}

	out = exec(t, reg, "glob_search", map[string]any{"pattern": "**/util*.go"})
	if int(out["count"].(float64)) != 2 {
		t.Fatalf("doublestar matched: %v", out["matches"])
	}
}

func TestGrepSearch(t *testing.T) {
	ws := t.TempDir()
	content := "package main\n\nfunc HandleRequest() {}\nfunc helper() {}\n"
	if err := os.WriteFile(filepath.Join(ws, "main.go"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := newSuiteRegistry(t, ws)

	// Case-insensitive by default.
	out := exec(t, reg, "grep_search", map[string]any{"pattern": "handlerequest"})
	matches := out["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("matches = %v", matches)
	}
	m := matches[0].(map[string]any)
	if m["file"] != "main.go" || m["line"].(float64) != 3 {
		t.Fatalf("match = %v", m)
	}

	out = exec(t, reg, "grep_search", map[string]any{
		"pattern": "handlerequest", "case_sensitive": true,
	})
	if int(out["count"].(float64)) != 0 {
		t.Fatal("case-sensitive search should miss")
	}
}
