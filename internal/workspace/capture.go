// Package workspace captures a bounded textual snapshot of the working
// directory: a depth-limited file tree plus the leading portion of any
// README and doc files. The result seeds the session's workspace
// context string.
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultTreeDepth  = 3
	defaultMaxEntries = 200
	defaultDocLimit   = 4000
)

var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	".quarry":      {},
}

// docCandidates are collected, in order, until one matches per base
// name.
var docCandidates = []string{
	"README.md",
	"README",
	"ARCHITECTURE.md",
	"CONTRIBUTING.md",
	"docs/README.md",
}

// Config bounds the capture. Zero values fall back to the
// QUARRY_CONTEXT_* environment variables, then to built-in defaults.
type Config struct {
	TreeDepth  int
	MaxEntries int
	DocLimit   int
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (c *Config) fill() {
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.TreeDepth <= 0 {
		c.TreeDepth = envInt(getenv, "QUARRY_CONTEXT_TREE_DEPTH", defaultTreeDepth)
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = envInt(getenv, "QUARRY_CONTEXT_MAX_ENTRIES", defaultMaxEntries)
	}
	if c.DocLimit <= 0 {
		c.DocLimit = envInt(getenv, "QUARRY_CONTEXT_DOC_LIMIT", defaultDocLimit)
	}
}

func envInt(getenv func(string) string, name string, fallback int) int {
	if v := strings.TrimSpace(getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// Capture walks root and renders the workspace context string.
func Capture(ctx context.Context, root string, cfg Config) (string, error) {
	cfg.fill()

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", root)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Working directory: %s\n\n", abs)

	tree, truncated := renderTree(ctx, abs, cfg)
	b.WriteString("## File tree\n\n")
	b.WriteString(tree)
	if truncated {
		b.WriteString("(listing truncated)\n")
	}

	for _, rel := range docCandidates {
		doc, ok := readDoc(filepath.Join(abs, rel), cfg.DocLimit)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", rel, doc)
	}

	return b.String(), nil
}

func renderTree(ctx context.Context, root string, cfg Config) (string, bool) {
	var b strings.Builder
	entries := 0
	truncated := false

	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if depth > cfg.TreeDepth || truncated || ctx.Err() != nil {
			return
		}
		children, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		sort.Slice(children, func(i, j int) bool {
			if children[i].IsDir() != children[j].IsDir() {
				return children[i].IsDir()
			}
			return children[i].Name() < children[j].Name()
		})
		for _, child := range children {
			if strings.HasPrefix(child.Name(), ".") && child.Name() != ".github" {
				continue
			}
			if _, skip := skipDirs[child.Name()]; skip {
				continue
			}
			if entries >= cfg.MaxEntries {
				truncated = true
				return
			}
			entries++
			indent := strings.Repeat("  ", depth-1)
			if child.IsDir() {
				fmt.Fprintf(&b, "%s%s/\n", indent, child.Name())
				walk(filepath.Join(dir, child.Name()), depth+1)
			} else {
				fmt.Fprintf(&b, "%s%s\n", indent, child.Name())
			}
		}
	}
	walk(root, 1)
	return b.String(), truncated
}

func readDoc(path string, limit int) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	if info, err := file.Stat(); err != nil || info.IsDir() {
		return "", false
	}
	data, err := io.ReadAll(io.LimitReader(file, int64(limit)+1))
	if err != nil {
		return "", false
	}
	text := string(data)
	if len(text) > limit {
		text = text[:limit] + "\n(truncated)"
	}
	return strings.TrimRight(text, "\n"), true
}
