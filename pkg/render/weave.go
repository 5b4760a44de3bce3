package render

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/codexweaver/codex/pkg/bundled"
	"github.com/codexweaver/codex/pkg/catalog"
	"github.com/codexweaver/codex/pkg/domain"
	"github.com/codexweaver/codex/pkg/manifest"
	"github.com/codexweaver/codex/pkg/merge"
	"github.com/codexweaver/codex/pkg/schema"
)

// CatalogCommitFile records the git commit of the catalog at weave time.
const CatalogCommitFile = ".codex/catalog-commit.txt"

// Anchor mappings per artifact: anchor name → structural rule key.
var (
	architectureAnchors = map[string]string{
		"LAYERS":    "architecture_layer_row",
		"DECISIONS": "architecture_decisions",
	}
	processAnchors = map[string]string{
		"BRANCHING": "process_flowchart",
		"CHECKLIST": "process_checklist_table",
		"RELEASE":   "process_flowchart",
	}
	securityAnchors = map[string]string{
		"CONTROLS":      "security_controls_table",
		"CRYPTO_POLICY": "security_crypto_policy",
	}
	agentsAnchors = []string{"STACK_SUMMARY", "SECURITY_RULES", "PROCESS_RULES"}
)

// Weaver resolves the manifest against the catalog, merges, and renders
// all workspace artifacts.
type Weaver struct {
	root    string
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewWeaver builds a weaver over a workspace root, with the bundled
// fragments as the base tier and .codex/fragments as the local tier.
func NewWeaver(root string, logger *slog.Logger) *Weaver {
	if logger == nil {
		logger = slog.Default()
	}
	cat := catalog.New(logger,
		catalog.NewFSSource(bundled.Fragments(), bundled.FragmentsRoot, "bundled"),
		catalog.NewDirSource(filepath.Join(root, manifest.FragmentsDir), "local"),
	)
	return &Weaver{root: root, catalog: cat, logger: logger}
}

// Catalog exposes the weaver's catalog for listing commands.
func (w *Weaver) Catalog() *catalog.Catalog {
	return w.catalog
}

// WeaveOptions controls a weave run.
type WeaveOptions struct {
	DryRun     bool // report what would be written, touch nothing
	Check      bool // compare resolution against the lock file, touch nothing
	SkipAgents bool // leave AGENTS.md alone
}

// WeaveResult reports what a weave run did (or would do).
type WeaveResult struct {
	Generated     []string // paths written
	WouldGenerate []string // artifact names, dry-run only
	Matches       bool     // check mode: lock still matches
	Drift         []string // check mode: divergences from the lock
}

// ResolveFragments resolves every manifest reference to a concrete
// fragment, in manifest order. Any unresolvable reference aborts: a
// missing fragment means the pipeline cannot produce a correct result.
func (w *Weaver) ResolveFragments() ([]*catalog.Fragment, error) {
	m, err := manifest.Load(w.root)
	if err != nil {
		return nil, err
	}

	fragments := make([]*catalog.Fragment, 0, len(m.Fragments))
	for _, ref := range m.Fragments {
		frag, err := w.catalog.ResolveRef(ref)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frag)
	}
	return fragments, nil
}

// Merged resolves, merges and vetoes the manifest's fragment set.
func (w *Weaver) Merged() (merge.Document, []*catalog.Fragment, error) {
	fragments, err := w.ResolveFragments()
	if err != nil {
		return nil, nil, err
	}

	contents := make([]merge.Document, len(fragments))
	for i, frag := range fragments {
		contents[i] = frag.Content
		w.logger.Debug("weaving fragment", "fragment", frag.FullName(), "domain", frag.Domain)
	}

	sch, err := schema.Load(w.root)
	if err != nil && !errors.Is(err, domain.ErrSchemaUnavailable) {
		return nil, nil, err
	}
	if sch == nil {
		w.logger.Debug("no merge schema, defaulting every field to replace")
	}

	resolver := sch.Resolver()
	merged := merge.Document{}
	for _, content := range merge.ReorderForSecurity(contents) {
		merged = merge.Merge(merged, content, resolver)
	}
	merged, vetoed := merge.ApplySecurityVeto(merged)
	if len(vetoed) > 0 {
		w.logger.Info("security veto removed allowed libraries", "libraries", vetoed)
	}
	return merged, fragments, nil
}

// renderArtifacts produces the artifact set from the merged tree. Keys
// are artifact filenames under .codex; markdown artifacts require their
// standards template and are skipped when the template is absent.
func (w *Weaver) renderArtifacts(merged merge.Document) (map[string]string, error) {
	rules, _ := merged["rules"].(merge.Document)
	material, _ := rules["material"].(merge.Document)
	structural, _ := rules["structural"].(merge.Document)

	artifacts := make(map[string]string)

	stackYAML, err := StackYAML(material)
	if err != nil {
		return nil, err
	}
	artifacts["stack.yaml"] = stackYAML

	templates := map[string]map[string]string{
		"architecture.md": architectureAnchors,
		"process.md":      processAnchors,
		"security.md":     securityAnchors,
	}
	for name, anchors := range templates {
		templatePath := filepath.Join(w.root, manifest.StandardsDir, name)
		data, err := os.ReadFile(templatePath) // #nosec G304 -- fixed workspace-relative path
		if os.IsNotExist(err) {
			w.logger.Debug("standards template missing, skipping artifact", "template", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", name, err)
		}
		artifacts[name] = InjectAll(string(data), structural, anchors)
	}
	return artifacts, nil
}

// Weave runs the full pipeline: resolve, merge, render, write artifacts,
// lock file and catalog commit record, and refresh AGENTS.md.
func (w *Weaver) Weave(opts WeaveOptions) (*WeaveResult, error) {
	merged, fragments, err := w.Merged()
	if err != nil {
		return nil, err
	}

	if opts.Check {
		lock, err := ReadLock(w.root)
		if err != nil {
			return nil, fmt.Errorf("check requires a lock file from a previous weave: %w", err)
		}
		drift := lock.Drift(fragments)
		return &WeaveResult{Matches: len(drift) == 0, Drift: drift}, nil
	}

	artifacts, err := w.renderArtifacts(merged)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		result := &WeaveResult{}
		for name := range artifacts {
			result.WouldGenerate = append(result.WouldGenerate, name)
		}
		sort.Strings(result.WouldGenerate)
		result.WouldGenerate = append(result.WouldGenerate, manifest.LockFile)
		if !opts.SkipAgents {
			result.WouldGenerate = append(result.WouldGenerate, manifest.AgentsFile)
		}
		return result, nil
	}

	codexDir := filepath.Join(w.root, manifest.CodexDir)
	if err := os.MkdirAll(codexDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", manifest.CodexDir, err)
	}

	result := &WeaveResult{}
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(codexDir, name)
		if err := os.WriteFile(path, []byte(artifacts[name]), 0o644); err != nil {
			return nil, fmt.Errorf("writing artifact %s: %w", name, err)
		}
		result.Generated = append(result.Generated, path)
	}

	lock, err := NewLock(w.root, fragments)
	if err != nil {
		return nil, err
	}
	if err := lock.Write(w.root); err != nil {
		return nil, err
	}
	result.Generated = append(result.Generated, filepath.Join(w.root, manifest.LockFile))

	commitPath := filepath.Join(w.root, CatalogCommitFile)
	if err := os.WriteFile(commitPath, []byte(lock.CatalogCommit+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing catalog commit: %w", err)
	}
	result.Generated = append(result.Generated, commitPath)

	if !opts.SkipAgents {
		updated, err := w.updateAgents(merged)
		if err != nil {
			return nil, err
		}
		if updated != "" {
			result.Generated = append(result.Generated, updated)
		}
	}

	return result, nil
}

// updateAgents refreshes the dynamic sections of AGENTS.md, preserving
// everything outside the anchors. A missing file or a file without our
// anchors is skipped, not an error: the user may have opted out.
func (w *Weaver) updateAgents(merged merge.Document) (string, error) {
	agentsPath := filepath.Join(w.root, manifest.AgentsFile)
	data, err := os.ReadFile(agentsPath) // #nosec G304 -- fixed workspace-relative path
	if os.IsNotExist(err) {
		w.logger.Debug("AGENTS.md not found, skipping update")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading AGENTS.md: %w", err)
	}

	content := string(data)
	if !anchorPattern(agentsAnchors[0]).MatchString(content) {
		w.logger.Debug("AGENTS.md has no anchors, skipping update")
		return "", nil
	}

	rules, _ := merged["rules"].(merge.Document)
	material, _ := rules["material"].(merge.Document)

	content = Inject(content, "STACK_SUMMARY", StackSummary(material))
	content = Inject(content, "SECURITY_RULES", SecuritySummary(material))
	content = Inject(content, "PROCESS_RULES", ProcessSummary(material))

	if err := os.WriteFile(agentsPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("updating AGENTS.md: %w", err)
	}
	return agentsPath, nil
}

// Diff compares freshly rendered artifacts against what is on disk from
// the last weave and returns the names that would change.
func (w *Weaver) Diff() ([]string, error) {
	merged, _, err := w.Merged()
	if err != nil {
		return nil, err
	}
	artifacts, err := w.renderArtifacts(merged)
	if err != nil {
		return nil, err
	}

	var changed []string
	for name, want := range artifacts {
		path := filepath.Join(w.root, manifest.CodexDir, name)
		current, err := os.ReadFile(path) // #nosec G304 -- fixed workspace-relative path
		switch {
		case os.IsNotExist(err):
			changed = append(changed, name+" (new)")
		case err != nil:
			return nil, fmt.Errorf("reading artifact %s: %w", name, err)
		case string(current) != want:
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed, nil
}
