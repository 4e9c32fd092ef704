package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dshills/cuecontrol/internal/logging"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the debounce duration for rapid changes.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(l *logging.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLookup sets the environment used when reloading.
func WithLookup(lookup LookupFunc) WatchOption {
	return func(w *Watcher) {
		w.lookup = lookup
	}
}

// Watcher reloads a configuration file when it or one of its script files
// changes. Directories are watched rather than files so editors that save by
// renaming are seen.
type Watcher struct {
	path     string
	fsys     FileSystem
	lookup   LookupFunc
	debounce time.Duration
	logger   *logging.Logger

	fsw       *fsnotify.Watcher
	closeOnce sync.Once

	mu    sync.RWMutex
	dirs  map[string]bool
	files map[string]bool
}

// NewWatcher creates a watcher for the configuration at path. cfg, when not
// nil, is the configuration currently in use; its script files are watched too.
func NewWatcher(path string, cfg *Config, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		fsys:     OSFS{},
		lookup:   os.LookupEnv,
		debounce: DefaultDebounce,
		logger:   logging.Nop(),
		fsw:      fsw,
		dirs:     make(map[string]bool),
		files:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("config")

	if err := w.track(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if cfg != nil {
		w.trackScripts(cfg)
	}
	return w, nil
}

func (w *Watcher) track(file string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(file)
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[file] = true
	return nil
}

func (w *Watcher) trackScripts(cfg *Config) {
	base := filepath.Dir(w.path)
	for _, b := range cfg.Bindings {
		if b.ScriptFile == "" {
			continue
		}
		p := b.ScriptFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		if err := w.track(filepath.Clean(p)); err != nil {
			w.logger.Warn("cannot watch script file", zap.String("path", p), zap.Error(err))
		}
	}
}

// Files returns the watched files.
func (w *Watcher) Files() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	return files
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.files[filepath.Clean(ev.Name)]
}

// Run watches until ctx is cancelled. After changes settle the configuration
// is loaded again and passed to onLoad; on failure onLoad receives the error
// and a nil configuration. The watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context, onLoad func(*Config, error)) error {
	defer w.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("config file changed",
				zap.String("path", ev.Name),
				zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			cfg, err := LoadFS(w.fsys, w.path, w.lookup)
			if err != nil {
				w.logger.Warn("config reload failed", zap.String("path", w.path), zap.Error(err))
			} else {
				w.trackScripts(cfg)
				w.logger.Info("config reloaded",
					zap.String("path", w.path),
					zap.Int("bindings", len(cfg.Bindings)))
			}
			onLoad(cfg, err)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}
