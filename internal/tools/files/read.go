package files

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/quarryhq/quarry/internal/tools"
)

const defaultMaxReadBytes = 200_000

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

func readFileTool(cfg Config) tools.Definition {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = defaultMaxReadBytes
	}
	resolver := Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "read_file",
		Description: "Read a file from the workspace with optional byte offset and limit.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file (relative to workspace).",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "Byte offset to start reading from (default: 0).",
				},
				"max_bytes": map[string]any{
					"type":        "integer",
					"description": "Maximum bytes to read (capped by tool default).",
				},
			},
			"required": []any{"path"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			var in struct {
				Path     string `json:"path"`
				Offset   int64  `json:"offset"`
				MaxBytes int    `json:"max_bytes"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if in.Offset < 0 {
				return nil, fmt.Errorf("offset must be >= 0")
			}

			resolved, err := resolver.Resolve(in.Path)
			if err != nil {
				return nil, err
			}
			file, err := os.Open(resolved)
			if err != nil {
				return nil, fmt.Errorf("open file: %w", err)
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return nil, fmt.Errorf("stat file: %w", err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", in.Path)
			}
			if in.Offset > 0 {
				if _, err := file.Seek(in.Offset, io.SeekStart); err != nil {
					return nil, fmt.Errorf("seek file: %w", err)
				}
			}

			budget := limit
			if in.MaxBytes > 0 && in.MaxBytes < budget {
				budget = in.MaxBytes
			}
			buf, err := io.ReadAll(io.LimitReader(file, int64(budget)))
			if err != nil {
				return nil, fmt.Errorf("read file: %w", err)
			}

			return map[string]any{
				"path":      in.Path,
				"content":   string(buf),
				"offset":    in.Offset,
				"bytes":     len(buf),
				"truncated": in.Offset+int64(len(buf)) < info.Size(),
			}, nil
		},
	}
}
