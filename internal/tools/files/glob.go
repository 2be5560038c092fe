package files

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/quarryhq/quarry/internal/tools"
)

const defaultGlobResults = 500

func globSearchTool(cfg Config) tools.Definition {
	resolver := Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "glob_search",
		Description: "Find workspace files matching a glob pattern, e.g. *.go or **/*.ts.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Glob pattern. A bare pattern matches file names anywhere; a path pattern matches workspace-relative paths.",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to search under (default: workspace root).",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum matches to return (default: 500).",
				},
			},
			"required": []any{"pattern"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var in struct {
				Pattern    string `json:"pattern"`
				Path       string `json:"path"`
				MaxResults int    `json:"max_results"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if strings.TrimSpace(in.Pattern) == "" {
				return nil, fmt.Errorf("pattern is required")
			}
			if in.Path == "" {
				in.Path = "."
			}
			if in.MaxResults <= 0 {
				in.MaxResults = defaultGlobResults
			}

			root, err := resolver.Resolve(in.Path)
			if err != nil {
				return nil, err
			}

			var matches []string
			truncated := false
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil // unreadable entries are skipped, not fatal
				}
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				if d.IsDir() {
					if _, skip := skipDirs[d.Name()]; skip && path != root {
						return filepath.SkipDir
					}
					return nil
				}
				rel, rerr := filepath.Rel(root, path)
				if rerr != nil {
					return nil
				}
				if matchGlob(in.Pattern, filepath.ToSlash(rel), d.Name()) {
					matches = append(matches, filepath.ToSlash(rel))
					if len(matches) >= in.MaxResults {
						truncated = true
						return fs.SkipAll
					}
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk workspace: %w", err)
			}

			return map[string]any{
				"pattern":   in.Pattern,
				"matches":   matches,
				"count":     len(matches),
				"truncated": truncated,
			}, nil
		},
	}
}

// matchGlob applies a glob pattern to a workspace-relative path. Patterns
// without a separator match the base name anywhere in the tree; a leading
// **/ matches the remainder against any path suffix.
func matchGlob(pattern, rel, base string) bool {
	if !strings.Contains(pattern, "/") {
		ok, err := filepath.Match(pattern, base)
		return err == nil && ok
	}
	if rest, found := strings.CutPrefix(pattern, "**/"); found {
		segs := strings.Split(rel, "/")
		for i := range segs {
			suffix := strings.Join(segs[i:], "/")
			if ok, err := filepath.Match(rest, suffix); err == nil && ok {
				return true
			}
		}
		return false
	}
	ok, err := filepath.Match(pattern, rel)
	return err == nil && ok
}
