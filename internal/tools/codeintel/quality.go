package codeintel

import (
	"context"
	"fmt"
	"go/ast"
	"strings"

	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/internal/tools/files"
)

const longFuncLines = 50

// Finding is one quality issue in the report.
type Finding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// QualityReport summarizes a package's shape and its findings.
type QualityReport struct {
	Path          string    `json:"path"`
	Files         int       `json:"files"`
	Functions     int       `json:"functions"`
	ExportedFuncs int       `json:"exported_funcs"`
	AvgFuncLines  float64   `json:"avg_func_lines"`
	Findings      []Finding `json:"findings"`
}

func analyzeQualityTool(cfg Config) tools.Definition {
	resolver := files.Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "analyze_code_quality",
		Description: "Report structural quality signals for Go code: long functions, undocumented exports, and TODO markers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Go file or package directory (relative to workspace).",
				},
			},
			"required": []any{"path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			root, err := resolver.Resolve(in.Path)
			if err != nil {
				return nil, err
			}
			parsed, err := parseGoFiles(ctx, root)
			if err != nil {
				return nil, err
			}

			report := QualityReport{Path: in.Path, Findings: []Finding{}}
			totalFuncLines := 0
			for _, pf := range parsed {
				if strings.HasSuffix(pf.rel, "_test.go") {
					continue
				}
				report.Files++
				totalFuncLines += analyzeFile(pf, &report)
			}
			if report.Functions > 0 {
				report.AvgFuncLines = float64(totalFuncLines) / float64(report.Functions)
			}
			return report, nil
		},
	}
}

func analyzeFile(pf parsedFile, report *QualityReport) int {
	totalLines := 0
	addFinding := func(node ast.Node, kind, format string, args ...any) {
		report.Findings = append(report.Findings, Finding{
			File:    pf.rel,
			Line:    pf.fset.Position(node.Pos()).Line,
			Kind:    kind,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for _, decl := range pf.file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			report.Functions++
			exported := ast.IsExported(d.Name.Name) &&
				(d.Recv == nil || ast.IsExported(receiverType(d)))
			if exported {
				report.ExportedFuncs++
				if d.Doc == nil {
					addFinding(d, "missing_doc", "exported function %s has no doc comment", d.Name.Name)
				}
			}
			if d.Body != nil {
				lines := pf.fset.Position(d.Body.End()).Line - pf.fset.Position(d.Pos()).Line + 1
				totalLines += lines
				if lines > longFuncLines {
					addFinding(d, "long_function", "%s is %d lines (threshold %d)", d.Name.Name, lines, longFuncLines)
				}
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ast.IsExported(ts.Name.Name) {
					continue
				}
				if ts.Doc == nil && d.Doc == nil {
					addFinding(ts, "missing_doc", "exported type %s has no doc comment", ts.Name.Name)
				}
			}
		}
	}

	for _, group := range pf.file.Comments {
		for _, c := range group.List {
			text := c.Text
			if strings.Contains(text, "TODO") || strings.Contains(text, "FIXME") {
				report.Findings = append(report.Findings, Finding{
					File:    pf.rel,
					Line:    pf.fset.Position(c.Pos()).Line,
					Kind:    "todo",
					Message: strings.TrimSpace(strings.TrimPrefix(text, "//")),
				})
			}
		}
	}
	return totalLines
}
