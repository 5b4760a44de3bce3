package render

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexweaver/codex/pkg/manifest"
)

func TestWatcherRelevant(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, func() error { return nil }, nil)
	require.NoError(t, err)
	defer w.Stop()

	event := func(rel string, op fsnotify.Op) fsnotify.Event {
		return fsnotify.Event{Name: filepath.Join(root, rel), Op: op}
	}

	assert.True(t, w.relevant(event(manifest.ManifestFile, fsnotify.Write)))
	assert.True(t, w.relevant(event(manifest.SchemaFile, fsnotify.Create)))
	assert.True(t, w.relevant(event(filepath.Join(manifest.FragmentsDir, "team@1.0.0.yaml"), fsnotify.Write)))
	assert.True(t, w.relevant(event(filepath.Join(manifest.FragmentsDir, "team@1.0.0.yaml"), fsnotify.Remove)))

	// Artifact writes and unrelated files must not trigger a re-weave.
	assert.False(t, w.relevant(event(".codex/stack.yaml", fsnotify.Write)))
	assert.False(t, w.relevant(event("main.go", fsnotify.Write)))
	assert.False(t, w.relevant(event(filepath.Join(manifest.FragmentsDir, "notes.txt"), fsnotify.Write)))
	assert.False(t, w.relevant(event(manifest.ManifestFile, fsnotify.Chmod)))
}

func TestWatcherStartStop(t *testing.T) {
	root := initWorkspace(t)

	var calls atomic.Int32
	w, err := NewWatcher(root, func() error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)
	w.debounceTime = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// Starting twice is a no-op.
	require.NoError(t, w.Start(ctx))

	m, err := manifest.Load(root)
	require.NoError(t, err)
	m.Add("base@1.0.0")
	require.NoError(t, m.Save(root))

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond, "expected a debounced re-weave after a manifest write")

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
