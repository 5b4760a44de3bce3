package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexweaver/codex/pkg/domain"
)

func fragmentYAML(name, domain string, extra string) []byte {
	doc := fmt.Sprintf(`kind: GovernanceFragment
metadata:
  name: %s
  domain: %s
rules:
  material: {}
  structural: {}
%s`, name, domain, extra)
	return []byte(doc)
}

func TestDiscoverVersionOrdering(t *testing.T) {
	source := NewMemorySource("test").
		Add("lib@1.0.0.yaml", fragmentYAML("lib", "stack", "")).
		Add("lib@10.0.0.yaml", fragmentYAML("lib", "stack", "")).
		Add("lib@2.0.0.yaml", fragmentYAML("lib", "stack", ""))

	cat := New(nil, source)
	index, err := cat.Discover()
	require.NoError(t, err)
	require.Len(t, index["lib"], 3)

	// Numeric comparison: 10.0.0 outranks 2.0.0.
	assert.Equal(t, "10.0.0", index["lib"][0].Version)
	assert.Equal(t, "2.0.0", index["lib"][1].Version)
	assert.Equal(t, "1.0.0", index["lib"][2].Version)

	frag, err := cat.Resolve("lib", "")
	require.NoError(t, err)
	assert.Equal(t, "lib@10.0.0", frag.FullName())
}

func TestDiscoverLocalShadowsBundled(t *testing.T) {
	bundled := NewMemorySource("bundled").
		Add("base@1.0.0.yaml", fragmentYAML("base", "architecture", "bundled: true\n"))
	local := NewMemorySource("local").
		Add("base@1.0.0.yaml", fragmentYAML("base", "architecture", "local: true\n")).
		Add("base@1.1.0.yaml", fragmentYAML("base", "architecture", ""))

	cat := New(nil, bundled, local)
	index, err := cat.Discover()
	require.NoError(t, err)

	// Same (name, version): local wins. Different version: coexists.
	require.Len(t, index["base"], 2)
	assert.Equal(t, "1.1.0", index["base"][0].Version)

	frag, err := cat.Resolve("base", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, true, frag.Content["local"])
	_, hasBundledMarker := frag.Content["bundled"]
	assert.False(t, hasBundledMarker)
}

func TestDiscoverSkipsInvalidFiles(t *testing.T) {
	source := NewMemorySource("test").
		Add("good@1.0.0.yaml", fragmentYAML("good", "stack", "")).
		Add("BadName.yaml", fragmentYAML("bad", "stack", "")).
		Add("broken@1.0.0.yaml", []byte("kind: [unclosed")).
		Add("wrongkind@1.0.0.yaml", []byte("kind: Something\n")).
		Add("empty@1.0.0.yaml", []byte(""))

	cat := New(nil, source)
	index, err := cat.Discover()
	require.NoError(t, err)
	assert.Len(t, index, 1)
	require.Contains(t, index, "good")
}

func TestResolveNotFound(t *testing.T) {
	cat := New(nil, NewMemorySource("empty"))

	_, err := cat.Resolve("missing", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFragmentNotFound))
	assert.Contains(t, err.Error(), "missing")

	source := NewMemorySource("test").
		Add("lib@1.0.0.yaml", fragmentYAML("lib", "stack", ""))
	cat = New(nil, source)

	_, err = cat.Resolve("lib", "9.9.9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFragmentNotFound))
	assert.Contains(t, err.Error(), "lib@9.9.9")
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib@1.0.0.yaml"), fragmentYAML("lib", "stack", ""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not yaml"), 0o644))

	source := NewDirSource(dir, "local")
	files, err := source.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "lib@1.0.0.yaml", files[0].Name)

	// Missing directory is not an error, just empty.
	missing := NewDirSource(filepath.Join(dir, "nope"), "local")
	files, err = missing.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLatestAndAll(t *testing.T) {
	source := NewMemorySource("test").
		Add("b@1.0.0.yaml", fragmentYAML("b", "stack", "")).
		Add("a@1.0.0.yaml", fragmentYAML("a", "stack", "")).
		Add("a@2.0.0.yaml", fragmentYAML("a", "stack", ""))

	cat := New(nil, source)

	latest, err := cat.Latest()
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "a@2.0.0", latest[0].FullName())
	assert.Equal(t, "b@1.0.0", latest[1].FullName())

	all, err := cat.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a@2.0.0", all[0].FullName())
	assert.Equal(t, "a@1.0.0", all[1].FullName())
	assert.Equal(t, "b@1.0.0", all[2].FullName())
}
