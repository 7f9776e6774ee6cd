// Package watch re-ingests source files as they change on disk.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/scan"
)

// DefaultDebounce is how long the watcher waits for events to settle.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives a batch of changed files, relative to the root and
// slash separated. Deleted files are not reported.
type Handler func(ctx context.Context, files []string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// Watcher batches filesystem events under a root into Handler calls.
type Watcher struct {
	root     string
	filter   *scan.Filter
	handler  Handler
	debounce time.Duration
	logger   *zap.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	flushes chan struct{}
}

// New creates a Watcher over every non-excluded directory below root.
func New(root string, opts scan.Options, handler Handler, options ...Option) (*Watcher, error) {
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", root)
	}
	filter, err := scan.NewFilter(root, opts)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		filter:   filter,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		flushes:  make(chan struct{}, 1),
	}
	for _, o := range options {
		o(w)
	}
	if err := w.addDirs(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch: add directories: %w", err)
	}
	return w, nil
}

// addDirs recursively registers dir and its subdirectories.
func (w *Watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && w.filter.SkipDir(rel) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Run processes events until ctx is done, then closes the watcher. Handler
// errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-w.flushes:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.filter.SkipDir(rel) {
				if err := w.addDirs(ev.Name); err != nil {
					w.logger.Warn("watch new directory", zap.String("dir", rel), zap.Error(err))
				}
			}
			return
		}
	}
	if !w.filter.Match(rel) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flushes <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// flush hands the pending batch to the handler.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(files) == 0 {
		return
	}
	sort.Strings(files)

	start := time.Now()
	if err := w.handler(ctx, files); err != nil {
		w.logger.Error("re-ingest failed", zap.Strings("files", files), zap.Error(err))
		return
	}
	w.logger.Info("re-ingested",
		zap.Int("files", len(files)),
		zap.Duration("took", time.Since(start)),
	)
}
