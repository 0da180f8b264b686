// Package watch re-runs a callback whenever PHP files under the watched
// directories change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for more changes before
// running the callback.
const DefaultDebounce = 200 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Root is the project root; Dirs are relative to it.
	Root string
	Dirs []string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher watches directories for PHP file changes.
type Watcher struct {
	cfg     Config
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// New creates a watcher over cfg.Dirs. Missing directories are skipped.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{cfg: cfg, watcher: fsw, logger: logger}
	for _, dir := range cfg.Dirs {
		root := filepath.Join(cfg.Root, dir)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			logger.Debug("not watching missing directory", zap.String("path", dir))
			continue
		}
		if err := w.addRecursive(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled, calling onChange once per burst of
// changes. An error from onChange is logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			if err := onChange(ctx); err != nil {
				w.logger.Error("change handler failed", zap.Error(err))
			}
		}
	}
}

// handle reports whether event touches a PHP file. New directories are
// added to the watch list.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			return false
		}
	}
	if filepath.Ext(event.Name) != ".php" || event.Op == fsnotify.Chmod {
		return false
	}
	w.logger.Debug("file change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	return true
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if !d.IsDir() {
			return nil
		}
		base := d.Name()
		if path != root && (base == "vendor" || base == "node_modules" || strings.HasPrefix(base, ".")) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
