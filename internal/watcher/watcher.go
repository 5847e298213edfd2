// Package watcher keeps tenant knowledge directories in sync with the document store.
// Files live at <root>/<tenant_id>/...; each change is debounced and reported with the
// tenant it belongs to.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// FileFunc receives the tenant a file belongs to and its path.
type FileFunc func(tenantID, path string)

// Watcher watches knowledge roots and invokes callbacks on file changes.
type Watcher struct {
	roots       []string
	extensions  []string
	onIngest    FileFunc
	onRemove    FileFunc
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the delay between the last write to a file and its ingestion.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. extensions filters which files are reported
// (empty = all). onIngest fires for created or written files, onRemove for removed or
// renamed ones.
func NewWatcher(roots []string, extensions []string, onIngest, onRemove FileFunc, opts ...WatcherOption) *Watcher {
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			clean = append(clean, filepath.Clean(abs))
		}
	}
	w := &Watcher{
		roots:       clean,
		extensions:  extensions,
		onIngest:    onIngest,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start creates missing roots, watches every directory below them and processes events
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions))
	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			_ = fw.Close()
			w.mu.Unlock()
			return err
		}
		if err := addTree(fw, root); err != nil {
			_ = fw.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = fw
	w.started = true
	w.mu.Unlock()
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	tenant, ok := w.tenantOf(path)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path), zap.String("tenant_id", tenant))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(fw, path)
			return
		}
		if ok && matchExtension(path, w.extensions) {
			w.debounceIngest(tenant, path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if ok && matchExtension(path, w.extensions) && w.onRemove != nil {
			w.onRemove(tenant, path)
		}
	}
}

// handleNewDirectory watches a directory created or moved under a root and ingests the
// files already inside it.
func (w *Watcher) handleNewDirectory(fw *fsnotify.Watcher, dir string) {
	if err := addTree(fw, dir); err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.syncDirectory(dir)
}

// tenantOf returns the tenant directory a path lives in. Paths directly inside a root,
// or outside every root, belong to no tenant.
func (w *Watcher) tenantOf(path string) (string, bool) {
	for _, root := range w.roots {
		if !inDir(root, path) {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return "", false
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) < 2 || parts[0] == "" || strings.HasPrefix(parts[0], ".") {
			return "", false
		}
		return parts[0], true
	}
	return "", false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	if len(extensions) == 0 {
		return true
	}
	for _, e := range extensions {
		eNorm := strings.TrimPrefix(strings.ToLower(e), ".")
		extNorm := strings.TrimPrefix(strings.ToLower(ext), ".")
		if eNorm == extNorm {
			return true
		}
	}
	return false
}

func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) debounceIngest(tenant, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("watcher ingesting file (debounced)", zap.String("tenant_id", tenant), zap.String("path", path))
		if w.onIngest != nil {
			w.onIngest(tenant, path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) syncDirectory(dir string) {
	w.logger.Debug("watcher syncing directory", zap.String("path", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		tenant, ok := w.tenantOf(path)
		if !ok || !matchExtension(path, w.extensions) {
			return nil
		}
		if w.onIngest != nil {
			w.onIngest(tenant, path)
		}
		return nil
	})
}

// Directories returns a copy of the watched roots.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles ingests every matching file already present under the roots.
// Call it after Start to pick up files that existed before the watcher began.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.roots {
		w.syncDirectory(root)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
