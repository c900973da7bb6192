// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import (
	"net/netip"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/tomtom215/palisade/internal/logging"
)

// FailureConfig configures the address based auth failure listener.
type FailureConfig struct {
	// Enabled turns failure tracking on.
	Enabled bool `koanf:"enabled"`

	// AllowedTries failures are tolerated within TimeWindow.
	// Default: 10
	AllowedTries int `koanf:"allowed_tries" validate:"gte=1"`

	// TimeWindow is the period AllowedTries refers to.
	// Default: 1h
	TimeWindow time.Duration `koanf:"time_window" validate:"gt=0"`

	// BlockExpiry is how long an address stays blocked.
	// Default: 10m
	BlockExpiry time.Duration `koanf:"block_expiry"`

	// MaxTrackedAddresses bounds the tracked address count.
	// Default: 100000
	MaxTrackedAddresses int `koanf:"max_tracked" validate:"gte=1"`
}

// DefaultFailureConfig returns the listener defaults.
func DefaultFailureConfig() FailureConfig {
	return FailureConfig{
		AllowedTries:        10,
		TimeWindow:          time.Hour,
		BlockExpiry:         10 * time.Minute,
		MaxTrackedAddresses: 100_000,
	}
}

// FailureListener blocks addresses that fail authentication too often.
// Each address gets a token bucket refilling AllowedTries per TimeWindow.
type FailureListener struct {
	cfg      FailureConfig
	blocks   *IPBlockRegistry
	limiters *expirable.LRU[netip.Addr, *rate.Limiter]
}

// NewFailureListener creates a listener feeding blocks. It returns nil when
// cfg is disabled; a nil listener ignores failures.
func NewFailureListener(cfg FailureConfig, blocks *IPBlockRegistry) *FailureListener {
	if !cfg.Enabled || blocks == nil {
		return nil
	}
	def := DefaultFailureConfig()
	if cfg.AllowedTries <= 0 {
		cfg.AllowedTries = def.AllowedTries
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = def.TimeWindow
	}
	if cfg.MaxTrackedAddresses <= 0 {
		cfg.MaxTrackedAddresses = def.MaxTrackedAddresses
	}
	return &FailureListener{
		cfg:      cfg,
		blocks:   blocks,
		limiters: expirable.NewLRU[netip.Addr, *rate.Limiter](cfg.MaxTrackedAddresses, nil, cfg.TimeWindow),
	}
}

// OnFailure records a failed attempt from addr and reports whether the
// address is now blocked.
func (f *FailureListener) OnFailure(addr netip.Addr) bool {
	if f == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	lim, ok := f.limiters.Get(addr)
	if !ok {
		every := f.cfg.TimeWindow / time.Duration(f.cfg.AllowedTries)
		lim = rate.NewLimiter(rate.Every(every), f.cfg.AllowedTries)
		f.limiters.Add(addr, lim)
	}
	if lim.Allow() {
		return false
	}
	f.blocks.Block(addr)
	f.limiters.Remove(addr)
	logging.Warn().
		Str("remote_addr", addr.String()).
		Int("allowed_tries", f.cfg.AllowedTries).
		Dur("time_window", f.cfg.TimeWindow).
		Msg("Blocking address after repeated authentication failures")
	return true
}
