package render

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codexweaver/codex/pkg/manifest"
)

// Watcher re-weaves the workspace whenever the manifest, schema, or a
// local fragment changes. Events are debounced because editors typically
// emit several writes per save.
type Watcher struct {
	root         string
	watcher      *fsnotify.Watcher
	reweave      func() error
	logger       *slog.Logger
	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a watcher over the workspace root. reweave is called
// after each debounced batch of changes.
func NewWatcher(root string, reweave func() error, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:         root,
		watcher:      fw,
		reweave:      reweave,
		logger:       logger,
		stopCh:       make(chan struct{}),
		debounceTime: time.Second,
	}, nil
}

// Start begins watching. We watch directories rather than files because
// editors create temp files and rename them over the originals.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range []string{w.root, filepath.Join(w.root, manifest.FragmentsDir)} {
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}

	w.logger.Info("watching for governance changes", "root", w.root)
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("governance file changed", "file", event.Name, "op", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.debounceTime)
			pending = debounce.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-pending:
			pending = nil
			if err := w.reweave(); err != nil {
				w.logger.Error("re-weave failed", "error", err)
			} else {
				w.logger.Info("re-wove governance artifacts")
			}
		}
	}
}

// relevant filters events down to the files that feed a weave: the
// manifest, the merge schema, and local fragment files. Everything else,
// including our own artifact writes under .codex, is ignored to avoid
// weave loops.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if base == manifest.ManifestFile || base == manifest.SchemaFile {
		return true
	}
	dir := filepath.Dir(event.Name)
	return strings.HasSuffix(filepath.ToSlash(dir), manifest.FragmentsDir) &&
		strings.HasSuffix(base, ".yaml")
}
