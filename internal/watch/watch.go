// Package watch re-runs a handler for files that change under a directory.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/logfields"
)

// DefaultDebounce coalesces bursts of events for one path.
const DefaultDebounce = 300 * time.Millisecond

// Handler is called with the absolute path of a changed file. Calls are
// sequential.
type Handler func(ctx context.Context, path string)

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// Filter selects the files the handler cares about. Nil accepts all.
	Filter func(path string) bool
	Logger *slog.Logger
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	fsw    *fsnotify.Watcher
	root   string
	handle Handler
	opts   Options

	mu     sync.Mutex
	timers map[string]*time.Timer
	queue  chan string
}

// New starts watching root and every directory below it.
func New(root string, handle Handler, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Filter == nil {
		opts.Filter = func(string) bool { return true }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to resolve watch root").Build()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "fsnotify").Build()
	}
	w := &Watcher{
		fsw:    fsw,
		root:   abs,
		handle: handle,
		opts:   opts,
		timers: make(map[string]*time.Timer),
		queue:  make(chan string, 256),
	}
	if err := w.addDirsRecursive(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches events until ctx is cancelled or the underlying watcher
// shuts down. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-w.queue:
				w.handle(ctx, path)
			}
		}
	}()
	defer func() {
		cancel()
		w.stopTimers()
		_ = w.fsw.Close()
		wg.Wait()
	}()

	w.opts.Logger.Info("Watching for changes", logfields.Path(w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if ShouldIgnore(ev.Name) {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	fi, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if ev.Has(fsnotify.Create) {
			_ = w.addDirsRecursive(ev.Name)
			w.scheduleTree(ctx, ev.Name)
		}
		return
	}
	if !w.opts.Filter(ev.Name) {
		return
	}
	w.opts.Logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	w.schedule(ctx, ev.Name)
}

// scheduleTree queues the files of a directory that appeared after its
// parent was watched; their own create events may have been missed.
func (w *Watcher) scheduleTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || ShouldIgnore(path) || !w.opts.Filter(path) {
			return nil
		}
		w.schedule(ctx, path)
		return nil
	})
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.queue <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) addDirsRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return errors.WrapError(err, errors.CategoryFileSystem, "failed to watch directory").
					WithContext("path", root).
					Build()
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.opts.Logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// ShouldIgnore reports whether path is a hidden, editor temporary or OS
// metadata file.
func ShouldIgnore(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}
