package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quarryhq/quarry/internal/tools"
)

func writeFileTool(cfg Config) tools.Definition {
	resolver := Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "write_file",
		Description: "Write content to a file in the workspace (overwrites by default).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to write (relative to workspace).",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "File contents to write.",
				},
				"append": map[string]any{
					"type":        "boolean",
					"description": "Append instead of overwrite (default: false).",
				},
			},
			"required": []any{"path", "content"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			var in struct {
				Path    string `json:"path"`
				Content string `json:"content"`
				Append  bool   `json:"append"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}

			resolved, err := resolver.Resolve(in.Path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return nil, fmt.Errorf("create directory: %w", err)
			}

			flags := os.O_CREATE | os.O_WRONLY
			if in.Append {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			file, err := os.OpenFile(resolved, flags, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open file: %w", err)
			}
			defer file.Close()

			n, err := file.WriteString(in.Content)
			if err != nil {
				return nil, fmt.Errorf("write file: %w", err)
			}

			return map[string]any{
				"path":          in.Path,
				"bytes_written": n,
				"append":        in.Append,
			}, nil
		},
	}
}
