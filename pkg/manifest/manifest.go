// Package manifest owns codex.manifest.yaml: the user's ordered
// declaration of which governance fragments apply. Order is significant;
// it is the merge-application order, subject only to the merge engine's
// security reordering.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codexweaver/codex/pkg/domain"
)

// Well-known workspace paths, all relative to the workspace root.
const (
	ManifestFile = "codex.manifest.yaml"
	SchemaFile   = "codex.schema.json"
	LockFile     = "codex.lock.json"
	CodexDir     = ".codex"
	FragmentsDir = ".codex/fragments"
	StandardsDir = ".codex/standards"
	AgentsFile   = "AGENTS.md"
	CopilotFile  = ".github/copilot-instructions.md"
)

// Manifest is the user-owned, hand-editable fragment declaration. Loading
// then saving an unchanged manifest reproduces semantically equivalent
// content with the top-level field order preserved.
type Manifest struct {
	Version   string   `yaml:"version"`
	Fragments []string `yaml:"fragments"`
}

// Default returns the manifest created by codex init.
func Default() *Manifest {
	return &Manifest{
		Version: "1.0",
		Fragments: []string{
			"base@1.0.0",
			"architecture-core@1.0.0",
			"stack-core@1.0.0",
			"process-core@1.0.0",
			"security-core@1.0.0",
		},
	}
}

// Path returns the manifest location inside a workspace.
func Path(root string) string {
	return filepath.Join(root, ManifestFile)
}

// Load reads and parses the workspace manifest.
func Load(root string) (*Manifest, error) {
	data, err := os.ReadFile(Path(root))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrManifestNotFound, Path(root))
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version == "" && len(m.Fragments) == 0 {
		return Default(), nil
	}
	return &m, nil
}

// Save writes the manifest back to the workspace.
func (m *Manifest) Save(root string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(Path(root), data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Add appends references not already present and returns the ones added.
func (m *Manifest) Add(refs ...string) []string {
	existing := make(map[string]struct{}, len(m.Fragments))
	for _, ref := range m.Fragments {
		existing[ref] = struct{}{}
	}

	var added []string
	for _, ref := range refs {
		if _, ok := existing[ref]; ok {
			continue
		}
		existing[ref] = struct{}{}
		m.Fragments = append(m.Fragments, ref)
		added = append(added, ref)
	}
	return added
}

// Remove deletes a reference, erroring if it is not declared.
func (m *Manifest) Remove(ref string) error {
	for i, existing := range m.Fragments {
		if existing == ref {
			m.Fragments = append(m.Fragments[:i], m.Fragments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("fragment not in manifest: %s", ref)
}
