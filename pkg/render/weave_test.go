package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/codexweaver/codex/pkg/domain"
	"github.com/codexweaver/codex/pkg/manifest"
)

func initWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	_, err := manifest.Initialize(root, manifest.InitOptions{}, nil)
	require.NoError(t, err)
	return root
}

func TestWeaveGeneratesArtifacts(t *testing.T) {
	root := initWorkspace(t)
	weaver := NewWeaver(root, nil)

	result, err := weaver.Weave(WeaveOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Generated)

	for _, rel := range []string{
		".codex/architecture.md",
		".codex/stack.yaml",
		".codex/process.md",
		".codex/security.md",
		"codex.lock.json",
		CatalogCommitFile,
	} {
		_, err := os.Stat(filepath.Join(root, rel))
		assert.NoError(t, err, "expected %s after weave", rel)
	}

	// stack.yaml carries the merged stack material.
	data, err := os.ReadFile(filepath.Join(root, ".codex/stack.yaml"))
	require.NoError(t, err)
	var stack map[string]any
	require.NoError(t, yaml.Unmarshal(data, &stack))
	assert.Contains(t, stack, "allowed_libraries")
	assert.Contains(t, stack, "banned_libraries")

	// AGENTS.md dynamic sections are populated.
	agents, err := os.ReadFile(filepath.Join(root, manifest.AgentsFile))
	require.NoError(t, err)
	assert.Contains(t, string(agents), "**Go Version:**")
	assert.Contains(t, string(agents), "**Banned Libraries:**")
}

func TestWeaveSecurityVetoEndToEnd(t *testing.T) {
	root := initWorkspace(t)

	// A local stack override allows a library the security fragment bans.
	local := `kind: GovernanceFragment
metadata:
  name: team-stack
  version: 1.0.0
  domain: stack
rules:
  material:
    stack:
      allowed_libraries:
        - github.com/dgrijalva/jwt-go
        - gopkg.in/yaml.v3
`
	fragPath := filepath.Join(root, manifest.FragmentsDir, "team-stack@1.0.0.yaml")
	require.NoError(t, os.WriteFile(fragPath, []byte(local), 0o644))

	m, err := manifest.Load(root)
	require.NoError(t, err)
	m.Add("team-stack@1.0.0")
	require.NoError(t, m.Save(root))

	weaver := NewWeaver(root, nil)
	_, err = weaver.Weave(WeaveOptions{SkipAgents: true})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, ".codex/stack.yaml"))
	require.NoError(t, err)
	var stack map[string]any
	require.NoError(t, yaml.Unmarshal(data, &stack))

	allowed, _ := stack["allowed_libraries"].([]any)
	assert.Contains(t, allowed, "gopkg.in/yaml.v3")
	assert.NotContains(t, allowed, "github.com/dgrijalva/jwt-go",
		"banned library must not survive in the allow list")
}

func TestWeaveDryRun(t *testing.T) {
	root := initWorkspace(t)
	weaver := NewWeaver(root, nil)

	result, err := weaver.Weave(WeaveOptions{DryRun: true})
	require.NoError(t, err)
	assert.Contains(t, result.WouldGenerate, "stack.yaml")
	assert.Contains(t, result.WouldGenerate, manifest.AgentsFile)
	assert.Empty(t, result.Generated)

	_, err = os.Stat(filepath.Join(root, ".codex/stack.yaml"))
	assert.True(t, os.IsNotExist(err), "dry run must not write artifacts")
	_, err = os.Stat(filepath.Join(root, manifest.LockFile))
	assert.True(t, os.IsNotExist(err), "dry run must not write the lock file")
}

func TestWeaveCheckMode(t *testing.T) {
	root := initWorkspace(t)
	weaver := NewWeaver(root, nil)

	_, err := weaver.Weave(WeaveOptions{})
	require.NoError(t, err)

	result, err := weaver.Weave(WeaveOptions{Check: true})
	require.NoError(t, err)
	assert.True(t, result.Matches)
	assert.Empty(t, result.Drift)

	// Changing a local fragment's content breaks the lock.
	fragPath := filepath.Join(root, manifest.FragmentsDir, "stack-core@1.0.0.yaml")
	data, err := os.ReadFile(fragPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fragPath, append(data, []byte("# edited\n")...), 0o644))

	result, err = weaver.Weave(WeaveOptions{Check: true})
	require.NoError(t, err)
	assert.False(t, result.Matches)
	assert.NotEmpty(t, result.Drift)
}

func TestWeaveMissingFragmentAborts(t *testing.T) {
	root := initWorkspace(t)

	m, err := manifest.Load(root)
	require.NoError(t, err)
	m.Add("no-such-fragment@1.0.0")
	require.NoError(t, m.Save(root))

	weaver := NewWeaver(root, nil)
	_, err = weaver.Weave(WeaveOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFragmentNotFound))
	assert.Contains(t, err.Error(), "no-such-fragment@1.0.0")

	_, statErr := os.Stat(filepath.Join(root, manifest.LockFile))
	assert.True(t, os.IsNotExist(statErr), "failed weave must not write a lock file")
}

func TestWeavePreservesUserTextOutsideAnchors(t *testing.T) {
	root := initWorkspace(t)

	agentsPath := filepath.Join(root, manifest.AgentsFile)
	data, err := os.ReadFile(agentsPath)
	require.NoError(t, err)
	custom := string(data) + "\n## Team Notes\n\nDo not page the on-call for lint failures.\n"
	require.NoError(t, os.WriteFile(agentsPath, []byte(custom), 0o644))

	weaver := NewWeaver(root, nil)
	_, err = weaver.Weave(WeaveOptions{})
	require.NoError(t, err)

	after, err := os.ReadFile(agentsPath)
	require.NoError(t, err)
	assert.Contains(t, string(after), "Do not page the on-call")
}

func TestDiff(t *testing.T) {
	root := initWorkspace(t)
	weaver := NewWeaver(root, nil)

	// Before any weave, everything is new.
	changed, err := weaver.Diff()
	require.NoError(t, err)
	assert.NotEmpty(t, changed)

	_, err = weaver.Weave(WeaveOptions{SkipAgents: true})
	require.NoError(t, err)

	changed, err = weaver.Diff()
	require.NoError(t, err)
	assert.Empty(t, changed, "no changes expected immediately after a weave")

	// Editing a fragment shows up as a pending artifact change.
	local := `kind: GovernanceFragment
metadata:
  name: extra-stack
  version: 1.0.0
  domain: stack
rules:
  material:
    stack:
      extra_tooling: enabled
`
	fragPath := filepath.Join(root, manifest.FragmentsDir, "extra-stack@1.0.0.yaml")
	require.NoError(t, os.WriteFile(fragPath, []byte(local), 0o644))
	m, err := manifest.Load(root)
	require.NoError(t, err)
	m.Add("extra-stack@1.0.0")
	require.NoError(t, m.Save(root))

	changed, err = weaver.Diff()
	require.NoError(t, err)
	assert.Contains(t, changed, "stack.yaml")
}
