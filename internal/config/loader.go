package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Provider hands out the current configuration.
type Provider interface {
	Config() *Config
}

// Static is a Provider that never changes.
type Static struct {
	C *Config
}

// Config implements Provider.
func (s Static) Config() *Config { return s.C }

// Loader reads a YAML config file, watches it for changes and writes operator updates back.
type Loader struct {
	path     string
	log      *slog.Logger
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
	// saving serializes Update so concurrent writers do not lose each other's changes.
	saving sync.Mutex
}

// NewLoader creates a Loader and performs the initial load.
// A missing file is not an error: defaults are used and the file is created on the first Update.
func NewLoader(path string, log *slog.Logger) (*Loader, error) {
	if log == nil {
		log = slog.Default()
	}
	l := &Loader{path: path, log: log}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Path returns the file backing the loader.
func (l *Loader) Path() string { return l.path }

// Config returns the current (latest) configuration. Callers must not mutate it.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config changes.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// The parent directory is watched so editors that replace the file are picked up.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.log.Warn("config reload failed, keeping previous config", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.swap(cfg)
	return cfg, nil
}

// Update applies fn to a copy of the current config, then normalizes, validates,
// persists and publishes the result. The current config is untouched on error.
func (l *Loader) Update(fn func(*Config)) (*Config, error) {
	l.saving.Lock()
	defer l.saving.Unlock()

	next := l.Config().Clone()
	fn(next)
	Normalize(next)
	if err := Validate(next); err != nil {
		return nil, err
	}
	if err := l.save(next); err != nil {
		return nil, err
	}
	l.swap(next)
	return next, nil
}

func (l *Loader) swap(cfg *Config) {
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.log.Info("config file not found, using defaults", "path", l.path)
		cfg := &Config{}
		Normalize(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	return Parse(data)
}

func (l *Loader) save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace config %s: %w", l.path, err)
	}
	return nil
}

// Parse decodes, normalizes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
