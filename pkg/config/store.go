package config

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Store holds the current configuration and replaces it when the file
// changes. A file that fails to load leaves the previous configuration
// in place.
type Store struct {
	path    string
	current atomic.Pointer[Config]
}

// NewStore loads path, falling back to the defaults.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.current.Store(LoadOrDefault(path))
	return s
}

// NewStaticStore returns a store that always serves cfg.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

func (s *Store) Get() *Config {
	return s.current.Load()
}

func (s *Store) Path() string {
	return s.path
}

// Reload reads the file again and reports whether the configuration was replaced.
func (s *Store) Reload() bool {
	cfg, err := Load(s.path)
	if err != nil {
		slog.Warn("Keeping previous configuration", "path", s.path, "error", err)
		return false
	}
	s.current.Store(cfg)
	slog.Info("Configuration reloaded", "path", s.path)
	return true
}

// Watch reloads the configuration whenever the file changes, until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := NewWatcher(s.path)
	if err != nil {
		return err
	}
	return s.watch(ctx, w)
}

func (s *Store) watch(ctx context.Context, w *Watcher) error {
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	for range w.Changes() {
		s.Reload()
	}
	return <-errc
}
