package validate

import (
	"fmt"
	"go/ast"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codexweaver/codex/pkg/manifest"
)

// stackFile is the woven stack artifact name inside .codex.
const stackFile = "stack.yaml"

// Policy is the approved technology stack read from .codex/stack.yaml.
// Entries are module path prefixes; an import matches an entry when it
// equals the entry or lives beneath it.
type Policy struct {
	Allowed []string `yaml:"allowed_libraries"`
	Banned  []string `yaml:"banned_libraries"`

	// Module is the workspace's own module path, always permitted.
	Module string `yaml:"-"`
}

// defaultPolicy applies when no stack.yaml has been woven yet.
func defaultPolicy() Policy {
	return Policy{
		Allowed: []string{
			"gopkg.in/yaml.v3",
			"github.com/spf13/cobra",
			"github.com/stretchr/testify",
		},
		Banned: []string{
			"github.com/dgrijalva/jwt-go",
			"golang.org/x/crypto/md4",
		},
	}
}

// LoadPolicy reads the woven stack rules for a workspace, falling back
// to a conservative default set when stack.yaml does not exist.
func LoadPolicy(root string) (Policy, error) {
	module := modulePath(root)

	path := filepath.Join(root, manifest.CodexDir, stackFile)
	data, err := os.ReadFile(path) // #nosec G304 -- fixed path under the workspace root
	if os.IsNotExist(err) {
		p := defaultPolicy()
		p.Module = module
		return p, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	p.Module = module
	return p, nil
}

// modulePath extracts the module directive from go.mod, or "" when the
// workspace has none.
func modulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod")) // #nosec G304 -- fixed path under the workspace root
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// matches reports whether an import path equals entry or is a
// subpackage of it.
func matches(importPath, entry string) bool {
	return importPath == entry || strings.HasPrefix(importPath, entry+"/")
}

// stdlib reports whether an import path belongs to the standard
// library. Standard library paths never contain a dot in their first
// element.
func stdlib(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}

// stackChecker validates imports and flags dangerous constructs:
// unsafe pointer manipulation and shell command construction.
type stackChecker struct {
	policy Policy
}

func newStackChecker(policy Policy) *stackChecker {
	return &stackChecker{policy: policy}
}

func (c *stackChecker) check(fset *token.FileSet, rel string, file *ast.File) Result {
	var result Result

	// Track which local names bind the dangerous packages so call
	// sites can be attributed even under import renames.
	dangerous := map[string]string{}

	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}

		switch path {
		case "unsafe", "os/exec":
			name := path[strings.LastIndex(path, "/")+1:]
			if imp.Name != nil {
				name = imp.Name.Name
			}
			dangerous[name] = path
		}

		if stdlib(path) {
			continue
		}
		if c.policy.Module != "" && matches(path, c.policy.Module) {
			continue
		}

		if c.banned(path) {
			result.Violations = append(result.Violations,
				fmt.Sprintf("%s: banned import %q", position(fset, imp.Pos()), path))
			continue
		}
		if len(c.policy.Allowed) > 0 && !c.allowed(path) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: import %q not in approved stack", position(fset, imp.Pos()), path))
		}
	}

	if len(dangerous) > 0 {
		result.Violations = append(result.Violations,
			c.checkDangerous(fset, file, dangerous)...)
	}
	return result
}

func (c *stackChecker) banned(path string) bool {
	for _, entry := range c.policy.Banned {
		if matches(path, entry) {
			return true
		}
	}
	return false
}

func (c *stackChecker) allowed(path string) bool {
	for _, entry := range c.policy.Allowed {
		if matches(path, entry) {
			return true
		}
	}
	return false
}

// checkDangerous walks the file for uses of the flagged packages:
// unsafe.Pointer conversions and exec.Command construction.
func (c *stackChecker) checkDangerous(fset *token.FileSet, file *ast.File, pkgs map[string]string) []string {
	var findings []string
	ast.Inspect(file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		path, ok := pkgs[ident.Name]
		if !ok {
			return true
		}

		switch {
		case path == "unsafe" && sel.Sel.Name == "Pointer":
			findings = append(findings,
				fmt.Sprintf("%s: unsafe.Pointer use", position(fset, sel.Pos())))
		case path == "os/exec" && strings.HasPrefix(sel.Sel.Name, "Command"):
			findings = append(findings,
				fmt.Sprintf("%s: shell command construction via %s.%s",
					position(fset, sel.Pos()), ident.Name, sel.Sel.Name))
		}
		return true
	})
	return findings
}
