// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import "time"

// Config is the authentication section of the configuration.
type Config struct {
	// AdminDNs are certificate subjects with unrestricted access.
	AdminDNs []string `koanf:"admin_dn"`

	// TransportImpersonation maps a certificate subject to the user name
	// patterns it may impersonate on the transport layer.
	TransportImpersonation map[string][]string `koanf:"transport_impersonation"`

	// AcceptedNetworks restricts transport authentication to these
	// addresses or CIDR networks. Empty accepts every address.
	AcceptedNetworks []string `koanf:"accepted_networks"`

	// BlockedIPs and BlockedUsers are rejected before any backend call.
	BlockedIPs   []string `koanf:"blocked_ips"`
	BlockedUsers []string `koanf:"blocked_users"`

	// FailureListener blocks addresses after repeated failures.
	FailureListener FailureConfig `koanf:"auth_failure"`

	// UserCache bounds the authenticated and impersonated user caches.
	UserCache CacheConfig `koanf:"user_cache"`

	// Domains are the authentication domains.
	Domains []DomainConfig `koanf:"domains" validate:"dive"`

	// InternalUsers is the internal users database.
	InternalUsers map[string]InternalUser `koanf:"internal_users" validate:"dive"`
}

// CacheConfig sizes a user cache.
type CacheConfig struct {
	// Size is the maximum entry count; 0 disables caching.
	// Default: 10000
	Size int `koanf:"size" validate:"gte=0"`

	// TTL is the entry lifetime.
	// Default: 1h
	TTL time.Duration `koanf:"ttl" validate:"gte=0"`
}

// DefaultConfig returns authentication defaults: one basic domain over the
// internal users database.
func DefaultConfig() Config {
	return Config{
		FailureListener: DefaultFailureConfig(),
		UserCache:       CacheConfig{Size: 10_000, TTL: time.Hour},
		Domains: []DomainConfig{{
			Name:      "internal",
			Type:      "basic/" + InternalBackendType,
			Order:     0,
			Enabled:   true,
			CacheUser: true,
		}},
	}
}
