package validate

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

// maxCodeLines is the per-file ceiling on non-blank, non-comment lines.
const maxCodeLines = 500

// structuralChecker enforces file size limits and exported naming
// conventions.
type structuralChecker struct{}

func newStructuralChecker() *structuralChecker {
	return &structuralChecker{}
}

func (c *structuralChecker) check(fset *token.FileSet, rel string, file *ast.File, src []byte) Result {
	var result Result

	if lines := countCodeLines(src); lines > maxCodeLines {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: file has %d code lines (max %d)", rel, lines, maxCodeLines))
	}

	if name := file.Name.Name; strings.ContainsAny(name, "_") || name != strings.ToLower(name) {
		if !strings.HasSuffix(name, "_test") {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: package name %q should be short lowercase with no underscores", rel, name))
		}
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			result.Warnings = append(result.Warnings, checkName(fset, d.Name)...)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					result.Warnings = append(result.Warnings, checkName(fset, s.Name)...)
				case *ast.ValueSpec:
					for _, name := range s.Names {
						result.Warnings = append(result.Warnings, checkName(fset, name)...)
					}
				}
			}
		}
	}
	return result
}

// checkName flags exported identifiers that use snake_case instead of
// MixedCaps. Initialisms like ID and URL are left alone.
func checkName(fset *token.FileSet, ident *ast.Ident) []string {
	if ident == nil || !ident.IsExported() {
		return nil
	}
	if strings.Contains(ident.Name, "_") {
		return []string{fmt.Sprintf("%s: exported identifier %q should use MixedCaps, not underscores",
			position(fset, ident.Pos()), ident.Name)}
	}
	return nil
}

// countCodeLines counts non-blank lines that are not pure line comments.
// Block comment interiors are counted; the limit is a coarse guardrail,
// not a precise metric.
func countCodeLines(src []byte) int {
	count := 0
	for _, line := range strings.Split(string(src), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		count++
	}
	return count
}
