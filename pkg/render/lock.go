package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codexweaver/codex/pkg/catalog"
	"github.com/codexweaver/codex/pkg/manifest"
)

// Lock pins the exact fragment set a weave used, for reproducibility
// audits: same lock, same inputs, same artifacts.
type Lock struct {
	SchemaVersion string         `json:"schema_version"`
	WeaveID       string         `json:"weave_id"`
	CatalogCommit string         `json:"catalog_commit"`
	Timestamp     string         `json:"weave_timestamp"`
	ManifestHash  string         `json:"manifest_hash"`
	Fragments     []LockFragment `json:"fragments"`
}

// LockFragment is one pinned fragment.
type LockFragment struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Path    string `json:"path"`
	SHA256  string `json:"sha256"`
}

// NewLock builds a lock for the resolved fragments. Fragment paths are
// stored relative to the workspace root where possible, for portability.
func NewLock(root string, fragments []*catalog.Fragment) (*Lock, error) {
	manifestHash, err := hashFile(manifest.Path(root))
	if err != nil {
		return nil, err
	}

	lock := &Lock{
		SchemaVersion: "1.0",
		WeaveID:       uuid.NewString(),
		CatalogCommit: gitCommit(root),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ManifestHash:  "sha256:" + manifestHash,
		Fragments:     make([]LockFragment, 0, len(fragments)),
	}

	for _, frag := range fragments {
		path := frag.Path
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
		lock.Fragments = append(lock.Fragments, LockFragment{
			Name:    frag.Name,
			Version: frag.Version,
			Path:    path,
			SHA256:  frag.SHA256,
		})
	}
	return lock, nil
}

// Write persists the lock as codex.lock.json.
func (l *Lock) Write(root string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, manifest.LockFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// ReadLock loads codex.lock.json from the workspace.
func ReadLock(root string) (*Lock, error) {
	data, err := os.ReadFile(filepath.Join(root, manifest.LockFile))
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	return &lock, nil
}

// Drift compares the lock's pins against a freshly resolved fragment set
// and reports one message per divergence. Empty means the lock still
// matches.
func (l *Lock) Drift(fragments []*catalog.Fragment) []string {
	pinned := make(map[string]LockFragment, len(l.Fragments))
	for _, lf := range l.Fragments {
		pinned[lf.Name+"@"+lf.Version] = lf
	}

	var drift []string
	seen := make(map[string]struct{}, len(fragments))
	for _, frag := range fragments {
		key := frag.FullName()
		seen[key] = struct{}{}
		pin, ok := pinned[key]
		if !ok {
			drift = append(drift, fmt.Sprintf("fragment %s not in lock file", key))
			continue
		}
		if pin.SHA256 != frag.SHA256 {
			drift = append(drift, fmt.Sprintf("fragment %s content changed since lock", key))
		}
	}
	for key := range pinned {
		if _, ok := seen[key]; !ok {
			drift = append(drift, fmt.Sprintf("locked fragment %s no longer woven", key))
		}
	}
	sort.Strings(drift)
	return drift
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- fixed workspace-relative path
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:]), nil
}

// gitCommit records catalog provenance; a workspace outside git is not an
// error, it just pins "unknown".
func gitCommit(root string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
