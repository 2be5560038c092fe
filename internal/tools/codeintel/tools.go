package codeintel

import (
	"context"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"github.com/quarryhq/quarry/internal/capability"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/internal/tools/files"
	"github.com/quarryhq/quarry/internal/tools/policy"
)

// Config controls code intel tool defaults.
type Config struct {
	Workspace string
}

func decode(args map[string]any, out any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// Definition is one located symbol.
type Definition struct {
	Symbol    string `json:"symbol"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Signature string `json:"signature,omitempty"`
	Doc       string `json:"doc,omitempty"`
}

func findDefinitionTool(cfg Config) tools.Definition {
	resolver := files.Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "find_definition",
		Description: "Locate the definition of a Go symbol (function, method, type, const, or var) in the workspace.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Symbol name, optionally qualified as Type.Method.",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Directory or file to search (default: workspace root).",
				},
			},
			"required": []any{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var in struct {
				Symbol string `json:"symbol"`
				Path   string `json:"path"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			symbol := strings.TrimSpace(in.Symbol)
			if symbol == "" {
				return nil, fmt.Errorf("symbol is required")
			}
			if in.Path == "" {
				in.Path = "."
			}
			root, err := resolver.Resolve(in.Path)
			if err != nil {
				return nil, err
			}
			parsed, err := parseGoFiles(ctx, root)
			if err != nil {
				return nil, err
			}

			recvWant, nameWant := splitQualified(symbol)
			var defs []Definition
			for _, pf := range parsed {
				defs = append(defs, findInFile(pf, recvWant, nameWant)...)
			}

			return map[string]any{
				"symbol":      symbol,
				"definitions": defs,
				"count":       len(defs),
			}, nil
		},
	}
}

// splitQualified separates an optional Type.Method qualifier.
func splitQualified(symbol string) (recv, name string) {
	if i := strings.LastIndexByte(symbol, '.'); i > 0 {
		return symbol[:i], symbol[i+1:]
	}
	return "", symbol
}

func findInFile(pf parsedFile, recvWant, nameWant string) []Definition {
	var defs []Definition
	add := func(kind string, name *ast.Ident, sig string, doc *ast.CommentGroup) {
		defs = append(defs, Definition{
			Symbol:    name.Name,
			Kind:      kind,
			File:      pf.rel,
			Line:      pf.fset.Position(name.Pos()).Line,
			Signature: sig,
			Doc:       docSummary(doc),
		})
	}

	for _, decl := range pf.file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name.Name != nameWant {
				continue
			}
			recv := receiverType(d)
			if recvWant != "" && recv != recvWant {
				continue
			}
			kind := "func"
			if recv != "" {
				kind = "method"
			}
			add(kind, d.Name, funcSignature(pf.fset, d), d.Doc)
		case *ast.GenDecl:
			if recvWant != "" {
				continue
			}
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name.Name == nameWant {
						doc := s.Doc
						if doc == nil {
							doc = d.Doc
						}
						add("type", s.Name, "", doc)
					}
				case *ast.ValueSpec:
					for _, ident := range s.Names {
						if ident.Name != nameWant {
							continue
						}
						kind := "var"
						if d.Tok == token.CONST {
							kind = "const"
						}
						add(kind, ident, "", d.Doc)
					}
				}
			}
		}
	}
	return defs
}

func receiverType(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	t := fn.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	if idx, ok := t.(*ast.IndexExpr); ok {
		t = idx.X
	}
	if ident, ok := t.(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

// Export is one exported declaration.
type Export struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Signature string `json:"signature,omitempty"`
	Doc       string `json:"doc,omitempty"`
}

func extractExportsTool(cfg Config) tools.Definition {
	resolver := files.Resolver{Root: cfg.Workspace}

	return tools.Definition{
		Name:        "extract_exports",
		Description: "List the exported functions, types, constants, and variables of a Go file or package directory.",
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

			var exports []Export
			for _, pf := range parsed {
				if strings.HasSuffix(pf.rel, "_test.go") {
					continue
				}
				exports = append(exports, exportsOf(pf)...)
			}

			return map[string]any{
				"path":    in.Path,
				"exports": exports,
				"count":   len(exports),
			}, nil
		},
	}
}

func exportsOf(pf parsedFile) []Export {
	var out []Export
	add := func(kind string, name *ast.Ident, sig string, doc *ast.CommentGroup) {
		if !ast.IsExported(name.Name) {
			return
		}
		out = append(out, Export{
			Name:      name.Name,
			Kind:      kind,
			File:      pf.rel,
			Line:      pf.fset.Position(name.Pos()).Line,
			Signature: sig,
			Doc:       docSummary(doc),
		})
	}

	for _, decl := range pf.file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			// Methods surface through their receiver type.
			if d.Recv != nil && !ast.IsExported(receiverType(d)) {
				continue
			}
			kind := "func"
			if d.Recv != nil {
				kind = "method"
			}
			add(kind, d.Name, funcSignature(pf.fset, d), d.Doc)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					doc := s.Doc
					if doc == nil {
						doc = d.Doc
					}
					add("type", s.Name, "", doc)
				case *ast.ValueSpec:
					kind := "var"
					if d.Tok == token.CONST {
						kind = "const"
					}
					for _, ident := range s.Names {
						add(kind, ident, "", d.Doc)
					}
				}
			}
		}
	}
	return out
}

// Module contributes the code intel suite to a capability host.
type Module struct {
	cfg Config
}

func NewModule(cfg Config) *Module {
	return &Module{cfg: cfg}
}

func (m *Module) ID() string { return policy.PluginCodeIntel }

func (m *Module) Create(_ context.Context, mc capability.ModuleContext) ([]capability.Contribution, error) {
	cfg := m.cfg
	if cfg.Workspace == "" {
		cfg.Workspace = mc.WorkingDir
	}
	return []capability.Contribution{{
		ID:          "codeintel",
		Description: "Go source analysis: definitions, exports, and quality reports.",
		Suites:      []tools.Suite{Suite(cfg)},
	}}, nil
}

// Suite bundles the code intel tools for direct registration.
func Suite(cfg Config) tools.Suite {
	return tools.Suite{
		ID: "codeintel",
		Tools: []tools.Definition{
			findDefinitionTool(cfg),
			extractExportsTool(cfg),
			analyzeQualityTool(cfg),
		},
	}
}
