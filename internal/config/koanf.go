// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"palisade.yaml",
	"palisade.yml",
	"/etc/palisade/palisade.yaml",
	"/etc/palisade/palisade.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load reads defaults, the first config file found and mapped environment
// variables, then validates the result.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit file path. An empty path loads defaults
// and environment only.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"auth.accepted_networks",
	"auth.blocked_ips",
	"auth.blocked_users",
	"ldap.connection.hosts",
	"filter.immutable_indices",
	"privileges.tenants",
	"audit.ignore_users",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"node_name":           "server.node_name",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"auth_accepted_networks": "auth.accepted_networks",
	"auth_blocked_ips":       "auth.blocked_ips",
	"auth_blocked_users":     "auth.blocked_users",
	"auth_failure_enabled":   "auth.auth_failure.enabled",
	"auth_failure_tries":     "auth.auth_failure.allowed_tries",
	"auth_failure_window":    "auth.auth_failure.time_window",
	"auth_failure_expiry":    "auth.auth_failure.block_expiry",
	"user_cache_size":        "auth.user_cache.size",
	"user_cache_ttl":         "auth.user_cache.ttl",

	"ldap_enabled":          "ldap.enabled",
	"ldap_hosts":            "ldap.connection.hosts",
	"ldap_enable_ssl":       "ldap.connection.enable_ssl",
	"ldap_bind_dn":          "ldap.connection.bind_dn",
	"ldap_password":         "ldap.connection.password",
	"ldap_connect_timeout":  "ldap.connection.connect_timeout",
	"ldap_response_timeout": "ldap.connection.response_timeout",
	"ldap_pool_min":         "ldap.connection.pool_min_size",
	"ldap_pool_max":         "ldap.connection.pool_max_size",

	"immutable_indices": "filter.immutable_indices",
	"role_cache_size":   "filter.role_cache_size",
	"role_cache_ttl":    "filter.role_cache_ttl",

	"tenancy_enabled":         "tenancy.enabled",
	"tenancy_private_tenant":  "tenancy.private_tenant_enabled",
	"tenancy_frontend_index":  "tenancy.frontend_index",
	"tenancy_server_username": "tenancy.server_username",
	"tenancy_tenants":         "privileges.tenants",

	"audit_enabled":        "audit.enabled",
	"audit_store":          "audit.store",
	"audit_path":           "audit.path",
	"audit_retention_days": "audit.retention_days",
	"audit_log_to_stdout":  "audit.log_to_stdout",

	"cluster_path":      "cluster.path",
	"cluster_in_memory": "cluster.in_memory",
}

// envTransformFunc maps known environment variables to config paths.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
