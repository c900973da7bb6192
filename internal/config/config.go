// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/palisade/internal/audit"
	"github.com/tomtom215/palisade/internal/authc"
	"github.com/tomtom215/palisade/internal/cluster"
	"github.com/tomtom215/palisade/internal/ldap"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/privileges"
	"github.com/tomtom215/palisade/internal/tenancy"
)

// Config is one immutable generation of the gateway configuration.
//
// Loading order:
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Mapped environment variables
//
// Components never mutate a loaded Config. A reload produces a new value
// with a higher Generation and components swap their derived state.
type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Logging    LoggingConfig     `koanf:"logging"`
	Auth       authc.Config      `koanf:"auth"`
	LDAP       LDAPConfig        `koanf:"ldap"`
	Privileges privileges.Config `koanf:"privileges"`
	Filter     FilterConfig      `koanf:"filter"`
	Tenancy    tenancy.Settings  `koanf:"tenancy"`
	Audit      AuditConfig       `koanf:"audit"`
	Cluster    cluster.Config    `koanf:"cluster"`

	// Generation numbers successful loads, starting at 1.
	Generation uint64 `koanf:"-"`

	// Path is the file the configuration was read from, if any.
	Path string `koanf:"-"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	// Host is the bind address.
	// Default: 0.0.0.0
	Host string `koanf:"host"`

	// Port is the listen port.
	// Default: 9300
	Port int `koanf:"port" validate:"min=1,max=65535"`

	// Timeout bounds request reads and writes.
	// Default: 30s
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// NodeName identifies this node in shard listings and cluster state.
	// Default: hostname
	NodeName string `koanf:"node_name" validate:"required"`

	// RateLimitReqs requests are allowed per RateLimitWindow and client address.
	// Default: 100 per 1m
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// RateLimitDisabled turns rate limiting off.
	RateLimitDisabled bool `koanf:"rate_limit_disabled"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller adds file:line to entries.
	Caller bool `koanf:"caller"`
}

// Logging converts to the logging package configuration.
func (l LoggingConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// LDAPConfig configures the directory backends.
type LDAPConfig struct {
	// Enabled registers "ldap" as an authentication and authorization backend.
	Enabled bool `koanf:"enabled"`

	Connection ldap.ConnectionSettings `koanf:"connection"`
	Authc      ldap.AuthcSettings      `koanf:"authc"`
	Authz      ldap.AuthzSettings      `koanf:"authz"`
}

// FilterConfig configures the authorization filter.
type FilterConfig struct {
	// ImmutableIndices are index patterns whose documents can only be created.
	ImmutableIndices []string `koanf:"immutable_indices"`

	// RoleCacheSize bounds the mapped-roles cache; 0 disables it.
	// Default: 10000
	RoleCacheSize int `koanf:"role_cache_size" validate:"gte=0"`

	// RoleCacheTTL is the mapped-roles entry lifetime.
	// Default: 1h
	RoleCacheTTL time.Duration `koanf:"role_cache_ttl" validate:"gte=0"`
}

// AuditConfig adds the store choice to the audit logger settings.
type AuditConfig struct {
	Enabled            bool             `koanf:"enabled"`
	BufferSize         int              `koanf:"buffer_size" validate:"min=1"`
	RetentionDays      int              `koanf:"retention_days" validate:"min=1"`
	CleanupInterval    time.Duration    `koanf:"cleanup_interval"`
	LogToStdout        bool             `koanf:"log_to_stdout"`
	DisabledCategories []audit.Category `koanf:"disabled_categories"`
	IgnoreUsers        []string         `koanf:"ignore_users"`

	// Store is memory or badger.
	// Default: memory
	Store string `koanf:"store" validate:"oneof=memory badger"`

	// Path is the badger directory for the badger store.
	// Default: /data/palisade/audit
	Path string `koanf:"path"`

	// MemoryMaxEvents bounds the memory store.
	// Default: 10000
	MemoryMaxEvents int `koanf:"memory_max_events" validate:"min=1"`
}

// Logger converts to the audit logger configuration.
func (a AuditConfig) Logger() *audit.Config {
	return &audit.Config{
		Enabled:            a.Enabled,
		BufferSize:         a.BufferSize,
		RetentionDays:      a.RetentionDays,
		CleanupInterval:    a.CleanupInterval,
		LogToStdout:        a.LogToStdout,
		DisabledCategories: a.DisabledCategories,
		IgnoreUsers:        a.IgnoreUsers,
	}
}

func defaultConfig() *Config {
	node, err := os.Hostname()
	if err != nil || node == "" {
		node = "palisade-0"
	}
	ad := audit.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9300,
			Timeout:         30 * time.Second,
			NodeName:        node,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: authc.DefaultConfig(),
		LDAP: LDAPConfig{
			Connection: ldap.DefaultConnectionSettings(),
			Authc:      ldap.DefaultAuthcSettings(),
			Authz:      ldap.DefaultAuthzSettings(),
		},
		Privileges: privileges.DefaultConfig(),
		Filter: FilterConfig{
			RoleCacheSize: 10_000,
			RoleCacheTTL:  time.Hour,
		},
		Tenancy: tenancy.DefaultSettings(),
		Audit: AuditConfig{
			Enabled:            ad.Enabled,
			BufferSize:         ad.BufferSize,
			RetentionDays:      ad.RetentionDays,
			CleanupInterval:    ad.CleanupInterval,
			DisabledCategories: ad.DisabledCategories,
			Store:              "memory",
			Path:               "/data/palisade/audit",
			MemoryMaxEvents:    10_000,
		},
		Cluster: cluster.DefaultConfig(),
	}
}
