// Package codeintel provides Go source analysis tools built on go/parser:
// symbol lookup, export listing, and a lightweight quality report.
package codeintel

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"testdata":     {},
}

// parsedFile pairs a parsed AST with its fileset and workspace-relative
// path.
type parsedFile struct {
	rel  string
	fset *token.FileSet
	file *ast.File
}

// parseGoFiles parses every .go file under root. Files that fail to
// parse are skipped; analysis tools report on what parses.
func parseGoFiles(ctx context.Context, root string) ([]parsedFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	var out []parsedFile
	parse := func(path, rel string) {
		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return
		}
		out = append(out, parsedFile{rel: rel, fset: fset, file: file})
	}

	if !info.IsDir() {
		parse(root, filepath.Base(root))
		return out, nil
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
		if !strings.HasSuffix(d.Name(), ".go") {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		parse(path, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk path: %w", err)
	}
	return out, nil
}

// formatNode renders an AST node as source text.
func formatNode(fset *token.FileSet, node ast.Node) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, node); err != nil {
		return ""
	}
	return buf.String()
}

// funcSignature renders a function declaration without its body.
func funcSignature(fset *token.FileSet, fn *ast.FuncDecl) string {
	clone := *fn
	clone.Body = nil
	clone.Doc = nil
	return strings.TrimSpace(formatNode(fset, &clone))
}

// docSummary returns the first line of a doc comment.
func docSummary(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	text := strings.TrimSpace(doc.Text())
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return text
}
