package files

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/quarryhq/quarry/internal/tools"
)

const defaultListEntries = 500

func listDirTool(cfg Config) tools.Definition {
	resolver := Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "list_dir",
		Description: "List files and directories at a workspace path.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to list (default: workspace root).",
				},
				"max_entries": map[string]any{
					"type":        "integer",
					"description": "Maximum entries to return (default: 500).",
				},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			var in struct {
				Path       string `json:"path"`
				MaxEntries int    `json:"max_entries"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if in.Path == "" {
				in.Path = "."
			}
			if in.MaxEntries <= 0 {
				in.MaxEntries = defaultListEntries
			}

			resolved, err := resolver.Resolve(in.Path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(resolved)
			if err != nil {
				return nil, fmt.Errorf("read directory: %w", err)
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Name() < entries[j].Name()
			})

			truncated := false
			if len(entries) > in.MaxEntries {
				entries = entries[:in.MaxEntries]
				truncated = true
			}

			type entry struct {
				Name  string `json:"name"`
				IsDir bool   `json:"is_dir"`
				Size  int64  `json:"size,omitempty"`
			}
			out := make([]entry, 0, len(entries))
			for _, de := range entries {
				e := entry{Name: de.Name(), IsDir: de.IsDir()}
				if info, err := de.Info(); err == nil && !de.IsDir() {
					e.Size = info.Size()
				}
				out = append(out, e)
			}

			return map[string]any{
				"path":      in.Path,
				"entries":   out,
				"truncated": truncated,
			}, nil
		},
	}
}
