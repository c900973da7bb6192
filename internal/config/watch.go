// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/providers/file"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/metrics"
)

// ErrNoConfigFile is returned by Watcher.Serve when no file is being used.
var ErrNoConfigFile = errors.New("no configuration file to watch")

// ApplyFunc installs a new configuration generation. An error keeps the
// previous generation active.
type ApplyFunc func(ctx context.Context, cfg *Config) error

// Store holds the active configuration generation.
type Store struct {
	current atomic.Pointer[Config]
	mu      sync.Mutex
	apply   []ApplyFunc
}

// NewStore creates a store with cfg as generation 1.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	cfg.Generation = 1
	s.current.Store(cfg)
	return s
}

// Current returns the active configuration.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// OnChange registers fn for every later generation.
func (s *Store) OnChange(fn ApplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply = append(s.apply, fn)
}

// Swap numbers a loaded cfg as the next generation and makes it current
// once every ApplyFunc accepted it.
func (s *Store) Swap(ctx context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.Generation = s.current.Load().Generation + 1
	for _, fn := range s.apply {
		if err := fn(ctx, cfg); err != nil {
			metrics.RecordConfigReload(cfg.Generation, err)
			return fmt.Errorf("apply generation %d: %w", cfg.Generation, err)
		}
	}
	s.current.Store(cfg)
	metrics.RecordConfigReload(cfg.Generation, nil)
	logging.Info().Uint64("generation", cfg.Generation).Msg("Configuration generation applied")
	return nil
}

// Watcher reloads the configuration file on change. It implements
// suture.Service.
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration
}

// NewWatcher watches path and swaps reloaded generations into store.
func NewWatcher(store *Store, path string) *Watcher {
	return &Watcher{store: store, path: path, debounce: 500 * time.Millisecond}
}

// Serve watches until ctx is canceled.
func (w *Watcher) Serve(ctx context.Context) error {
	if w.path == "" {
		return fmt.Errorf("%w: %w", ErrNoConfigFile, suture.ErrDoNotRestart)
	}

	changed := make(chan struct{}, 1)
	provider := file.Provider(w.path)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			logging.Warn().Err(err).Str("path", w.path).Msg("Config file watch error")
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	defer func() { _ = provider.Unwatch() }()

	logging.Info().Str("path", w.path).Msg("Watching configuration file")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}

		// editors often write files in several steps
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.debounce):
		}
		w.reload(ctx)
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := LoadFile(w.path)
	if err != nil {
		metrics.RecordConfigReload(w.store.Current().Generation, err)
		logging.Error().Err(err).Str("path", w.path).Msg("Config reload failed, keeping active generation")
		return
	}
	if err := w.store.Swap(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Config generation rejected, keeping active generation")
	}
}

// String names the service in supervisor logs.
func (w *Watcher) String() string { return "config-watcher" }
