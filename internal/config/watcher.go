package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher keeps the current configuration and reloads it when the config
// file changes on disk.
type Watcher struct {
	onReload func(*Config)
	current  atomic.Pointer[Config]
	reloads  atomic.Uint32

	// mu serializes every use of v; viper is not safe for concurrent use.
	mu    sync.Mutex
	v     *viper.Viper
	file  string // config file in use, empty when running on defaults
	timer *time.Timer

	fs   *fsnotify.Watcher
	done chan struct{}
}

const reloadDebounce = 500 * time.Millisecond

// NewWatcher loads the configuration and, when a config file was found,
// starts watching it. onReload may be nil.
func NewWatcher(configFile string, onReload func(*Config)) (*Watcher, error) {
	v := newViper(configFile)
	found := readConfig(v)

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	w := &Watcher{v: v, onReload: onReload, done: make(chan struct{})}
	w.current.Store(cfg)

	if found {
		w.file = v.ConfigFileUsed()
		if err := w.watch(w.file); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// watch follows the directory of path so that editors replacing the file
// by rename are seen too.
func (w *Watcher) watch(path string) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}

	path = filepath.Clean(path)
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return fmt.Errorf("watching config dir: %w", err)
	}
	w.fs = fs

	go func() {
		for {
			select {
			case e, ok := <-fs.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) == path {
					w.handleEvent(e)
				}
			case err, ok := <-fs.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "error", err)
			case <-w.done:
				return
			}
		}
	}()

	slog.Info("watching config file", "path", path)
	return nil
}

// handleEvent debounces bursts of write events from editors.
func (w *Watcher) handleEvent(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.Reload)
}

// Reload re-reads the config file and swaps the result in. On failure the
// previous configuration stays active.
func (w *Watcher) Reload() {
	count := w.reloads.Add(1)

	w.mu.Lock()
	var err error
	if w.file != "" {
		err = w.v.ReadInConfig()
	}
	var cfg *Config
	if err == nil {
		cfg, err = decode(w.v)
	}
	w.mu.Unlock()

	if err != nil {
		slog.Error("failed to reload config, keeping previous settings", "error", err, "count", count)
		return
	}

	w.current.Store(cfg)
	slog.Info("config reloaded",
		"count", count,
		"voice", cfg.Speech.Voice,
		"sample_rate", cfg.Speech.SampleRate,
		"use_cache", cfg.Speech.UseCache)

	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Snapshot returns the current configuration.
func (w *Watcher) Snapshot() *Config {
	return w.current.Load()
}

// Speech returns a copy of the current speech settings.
func (w *Watcher) Speech() SpeechConfig {
	return w.current.Load().Speech
}

// ReloadCount returns the number of reloads attempted so far.
func (w *Watcher) ReloadCount() uint32 {
	return w.reloads.Load()
}

// Close stops watching the config file.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	if w.fs != nil {
		return w.fs.Close()
	}
	return nil
}
