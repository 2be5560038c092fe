package files

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/quarryhq/quarry/internal/tools"
)

const (
	grepDefaultMax = 50
	grepHardMax    = 200
	grepMaxLine    = 250
	// grepMaxFileBytes skips files too large to scan line by line.
	grepMaxFileBytes = 2 << 20
)

func grepSearchTool(cfg Config) tools.Definition {
	resolver := Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "grep_search",
		Description: "Search workspace file contents by regular expression, returning path, line number, and matched line.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Regular expression to search for.",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Directory or file to search (default: workspace root).",
				},
				"case_sensitive": map[string]any{
					"type":        "boolean",
					"description": "Case-sensitive matching (default: false).",
				},
				"file_glob": map[string]any{
					"type":        "string",
					"description": "Restrict to files matching this name pattern, e.g. *.go.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum matches to return (default: 50, cap: 200).",
				},
			},
			"required": []any{"pattern"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var in struct {
				Pattern       string `json:"pattern"`
				Path          string `json:"path"`
				CaseSensitive bool   `json:"case_sensitive"`
				FileGlob      string `json:"file_glob"`
				MaxResults    int    `json:"max_results"`
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
				in.MaxResults = grepDefaultMax
			}
			if in.MaxResults > grepHardMax {
				in.MaxResults = grepHardMax
			}

			expr := in.Pattern
			if !in.CaseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}

			root, err := resolver.Resolve(in.Path)
			if err != nil {
				return nil, err
			}

			type match struct {
				File string `json:"file"`
				Line int    `json:"line"`
				Text string `json:"text"`
			}
			var matches []match
			truncated := false

			scanFile := func(path, rel string) error {
				file, err := os.Open(path)
				if err != nil {
					return nil
				}
				defer file.Close()

				scanner := bufio.NewScanner(file)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				lineNum := 0
				for scanner.Scan() {
					lineNum++
					line := scanner.Text()
					if strings.ContainsRune(line, 0) {
						return nil // binary file
					}
					if !re.MatchString(line) {
						continue
					}
					if len(line) > grepMaxLine {
						line = line[:grepMaxLine] + "..."
					}
					matches = append(matches, match{File: rel, Line: lineNum, Text: line})
					if len(matches) >= in.MaxResults {
						truncated = true
						return fs.SkipAll
					}
				}
				return nil
			}

			if info, serr := os.Stat(root); serr == nil && !info.IsDir() {
				if err := scanFile(root, filepath.ToSlash(in.Path)); err != nil && err != fs.SkipAll {
					return nil, err
				}
				return map[string]any{
					"pattern":   in.Pattern,
					"matches":   matches,
					"count":     len(matches),
					"truncated": truncated,
				}, nil
			}

			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
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
				if in.FileGlob != "" {
					if ok, merr := filepath.Match(in.FileGlob, d.Name()); merr != nil || !ok {
						return nil
					}
				}
				if info, ierr := d.Info(); ierr != nil || info.Size() > grepMaxFileBytes {
					return nil
				}
				rel, rerr := filepath.Rel(root, path)
				if rerr != nil {
					return nil
				}
				return scanFile(path, filepath.ToSlash(rel))
			})
			if err != nil && err != fs.SkipAll {
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
