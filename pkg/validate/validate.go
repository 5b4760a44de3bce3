// Package validate runs static checks over a workspace's Go sources
// against the governance state woven into .codex/. The structural
// checker enforces file size and naming conventions; the stack checker
// enforces the approved dependency list from .codex/stack.yaml.
package validate

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Directories never worth checking, independent of user exclusions.
var defaultSkipDirs = map[string]struct{}{
	".git":         {},
	".codex":       {},
	"vendor":       {},
	"node_modules": {},
	"testdata":     {},
}

// Result aggregates findings from one or more checkers. Violations
// fail the run; warnings are advisory.
type Result struct {
	Violations   []string
	Warnings     []string
	FilesChecked int
}

// Passed reports whether the run produced no violations.
func (r *Result) Passed() bool {
	return len(r.Violations) == 0
}

func (r *Result) merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Options configures a validation run.
type Options struct {
	// Exclude holds doublestar glob patterns matched against
	// slash-separated paths relative to the workspace root.
	Exclude []string

	// SkipStack disables the stack checker.
	SkipStack bool

	// SkipStructural disables the structural checker.
	SkipStructural bool
}

// Runner walks a workspace and applies the enabled checkers to every
// Go source file that is not excluded.
type Runner struct {
	root   string
	opts   Options
	logger *slog.Logger
}

// NewRunner returns a runner rooted at the workspace root. A nil
// logger falls back to slog.Default().
func NewRunner(root string, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{root: root, opts: opts, logger: logger}
}

// Run parses every candidate file once and feeds it to the enabled
// checkers. Files that fail to parse are reported as violations and
// skipped; the run itself only errors on workspace-level problems.
func (r *Runner) Run() (*Result, error) {
	result := &Result{}

	var structural *structuralChecker
	if !r.opts.SkipStructural {
		structural = newStructuralChecker()
	}

	var stack *stackChecker
	if !r.opts.SkipStack {
		policy, err := LoadPolicy(r.root)
		if err != nil {
			return nil, fmt.Errorf("loading stack policy: %w", err)
		}
		r.logger.Debug("stack policy loaded",
			"allowed", len(policy.Allowed),
			"banned", len(policy.Banned))
		stack = newStackChecker(policy)
	}

	files, err := r.collectFiles()
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	for _, rel := range files {
		full := filepath.Join(r.root, rel)
		src, err := os.ReadFile(full) // #nosec G304 -- paths come from walking the workspace root
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rel, err)
		}

		file, err := parser.ParseFile(fset, rel, src, parser.ParseComments)
		if err != nil {
			result.Violations = append(result.Violations,
				fmt.Sprintf("%s: parse error: %v", rel, err))
			result.FilesChecked++
			continue
		}

		if structural != nil {
			result.merge(structural.check(fset, rel, file, src))
		}
		if stack != nil {
			result.merge(stack.check(fset, rel, file))
		}
		result.FilesChecked++
	}

	r.logger.Info("validation complete",
		"files", result.FilesChecked,
		"violations", len(result.Violations),
		"warnings", len(result.Warnings))
	return result, nil
}

// collectFiles returns root-relative slash paths of Go files to check,
// in walk order, honoring default skips and user exclusion globs.
func (r *Runner) collectFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := defaultSkipDirs[d.Name()]; skip && rel != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".go") {
			return nil
		}
		excluded, err := r.excluded(rel)
		if err != nil {
			return err
		}
		if excluded {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", r.root, err)
	}
	return files, nil
}

func (r *Runner) excluded(rel string) (bool, error) {
	for _, pattern := range r.opts.Exclude {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("bad exclusion pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// position renders a fileset position as "path:line" for findings.
func position(fset *token.FileSet, pos token.Pos) string {
	p := fset.Position(pos)
	return fmt.Sprintf("%s:%d", p.Filename, p.Line)
}
