package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nuvos/nuvos-index/pkg/types"
)

// DefaultDebounce is the quiet period after the last event before a run starts
const DefaultDebounce = 2 * time.Second

// SkipFunc reports whether a path, relative to the root with forward
// slashes, should be ignored
type SkipFunc func(rel string, isDir bool) bool

// RunFunc is invoked once per burst of changes
type RunFunc func(ctx context.Context) error

// Options configure a Watcher
type Options struct {
	Root     string
	Debounce time.Duration
	Skip     SkipFunc

	// RunOnStart triggers a run before the first event arrives
	RunOnStart bool

	Logger *slog.Logger
}

// Watcher turns file system events under a root into debounced runs
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	skip     SkipFunc
	onStart  bool
	logger   *slog.Logger
}

// New creates a Watcher and registers every non-skipped directory under root
func New(opts Options) (*Watcher, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve watch root: %v", types.ErrConfig, err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: watch root %s is not a directory", types.ErrConfig, root)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Skip == nil {
		opts.Skip = func(string, bool) bool { return false }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: opts.Debounce,
		skip:     opts.Skip,
		onStart:  opts.RunOnStart,
		logger:   logger,
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Watch is a convenience wrapper: it creates a Watcher, runs it until ctx
// is done and closes it
func Watch(ctx context.Context, opts Options, run RunFunc) error {
	w, err := New(opts)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx, run)
}

// addTree watches dir and every directory below it that is not skipped
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(p); rel != "." && w.skip(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) rel(p string) string {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// relevant filters raw events. Removals are checked with directory rules
// only since the path can no longer be inspected.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel := w.rel(ev.Name)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return !w.skip(rel, true)
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return !w.skip(rel, true)
	}
	return !w.skip(rel, info.IsDir())
}

// Run blocks until ctx is done, calling run once after each burst of
// relevant events has been quiet for the debounce period. Errors from run
// are logged; the watcher keeps going.
func (w *Watcher) Run(ctx context.Context, run RunFunc) error {
	timer := time.NewTimer(w.debounce)
	if !w.onStart {
		timer.Stop()
	}
	defer timer.Stop()

	pending := w.onStart
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("change detected", "path", w.rel(ev.Name), "op", ev.Op.String())

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}

			pending = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := run(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("run after change failed", "error", err)
			}
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
