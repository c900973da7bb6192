// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package ldap

import (
	"slices"
	"time"
)

// Connection strategies.
const (
	StrategyRoundRobin = "roundrobin"
	StrategyFailover   = "failover"
)

// ConnectionSettings configures the directory connection pool.
type ConnectionSettings struct {
	// Hosts is a list of host:port pairs.
	// Default: localhost:389 (localhost:636 with TLS)
	Hosts []string `koanf:"hosts"`

	// EnableTLS connects with LDAPS.
	EnableTLS bool `koanf:"enable_ssl"`

	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool `koanf:"verify_hostnames_disabled"`

	// BindDN and Password authenticate pooled connections. Empty means anonymous.
	BindDN   string `koanf:"bind_dn"`
	Password string `koanf:"password"`

	// ConnectTimeout bounds dialing one host.
	// Default: 5s
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"gte=0"`

	// ResponseTimeout bounds one directory operation.
	// Default: 10s
	ResponseTimeout time.Duration `koanf:"response_timeout" validate:"gte=0"`

	// PoolMinSize connections are opened eagerly.
	// Default: 3
	PoolMinSize int `koanf:"pool_min_size" validate:"gte=0"`

	// PoolMaxSize caps open connections.
	// Default: 10
	PoolMaxSize int `koanf:"pool_max_size" validate:"gte=1"`

	// Strategy selects hosts: roundrobin or failover.
	// Default: roundrobin
	Strategy string `koanf:"connection_strategy" validate:"omitempty,oneof=roundrobin failover"`

	// BreakerFailures opens the circuit after this many consecutive failures.
	// Default: 5
	BreakerFailures uint32 `koanf:"breaker_failures"`

	// BreakerTimeout is how long the circuit stays open.
	// Default: 30s
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// DefaultConnectionSettings returns pool defaults.
func DefaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		ConnectTimeout:  5 * time.Second,
		ResponseTimeout: 10 * time.Second,
		PoolMinSize:     3,
		PoolMaxSize:     10,
		Strategy:        StrategyRoundRobin,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

func (s ConnectionSettings) hosts() []string {
	if len(s.Hosts) > 0 {
		return s.Hosts
	}
	if s.EnableTLS {
		return []string{"localhost:636"}
	}
	return []string{"localhost:389"}
}

// SearchBase is one named search base with its filter.
type SearchBase struct {
	Name   string `koanf:"name"`
	Base   string `koanf:"base"`
	Search string `koanf:"search"`
}

// AuthcSettings configures the authentication backend.
type AuthcSettings struct {
	// Users are the user search bases, searched in order.
	// Default: one base "" with (sAMAccountName={0})
	Users []SearchBase `koanf:"users"`

	// UsernameAttribute names the attribute used as the user name. Empty uses the DN.
	UsernameAttribute string `koanf:"username_attribute"`

	// SearchAllBases searches every base instead of stopping at the first hit.
	SearchAllBases bool `koanf:"search_all_bases"`

	// FakeLoginEnabled binds against FakeLoginDN for unknown users so
	// that unknown and wrong-password logins take comparable time.
	FakeLoginEnabled  bool   `koanf:"fakelogin_enabled"`
	FakeLoginDN       string `koanf:"fakelogin_dn"`
	FakeLoginPassword string `koanf:"fakelogin_password"`

	// MapAttributes lists directory attributes (wildcards allowed) copied
	// to user attributes as "ldap.<name>". "dn" maps the entry DN.
	MapAttributes []string `koanf:"map_ldap_attrs_to_user_attrs"`
}

// DefaultUserSearch is used when no user base is configured.
const DefaultUserSearch = "(sAMAccountName={0})"

// DefaultAuthcSettings returns authentication defaults.
func DefaultAuthcSettings() AuthcSettings {
	return AuthcSettings{
		Users:             []SearchBase{{Name: "_default", Search: DefaultUserSearch}},
		FakeLoginDN:       "CN=faketomakebindfail,DC=" + fakeDomainComponent,
		FakeLoginPassword: "fakeLoginPwd123",
	}
}

// AuthzSettings configures role resolution.
type AuthzSettings struct {
	// Roles are the role search bases. Nested searches for a role reuse
	// the base that discovered it.
	// Default: one base "" with (member={0})
	Roles []SearchBase `koanf:"roles"`

	// Users resolves non-DN user names to entries.
	Users []SearchBase `koanf:"users"`

	// RoleSearchEnabled runs the role searches.
	// Default: true
	RoleSearchEnabled bool `koanf:"rolesearch_enabled"`

	// UserRoleName lists user-entry attributes holding roles, comma separated.
	// Default: memberOf
	UserRoleName string `koanf:"userrolename"`

	// UserRoleAttribute is substituted for {2} in role searches.
	UserRoleAttribute string `koanf:"userroleattribute"`

	// RoleName is the role-entry attribute used as role name, or "dn".
	// Default: name
	RoleName string `koanf:"rolename"`

	// ResolveNestedRoles follows role membership transitively.
	ResolveNestedRoles bool `koanf:"resolve_nested_roles"`

	// MaxNestedDepth bounds nested expansion.
	// Default: 30
	MaxNestedDepth int `koanf:"max_nested_depth" validate:"gte=0"`

	// NestedRoleFilter lists role DNs (wildcards allowed) that are not expanded.
	NestedRoleFilter []string `koanf:"nested_role_filter"`

	// SkipUsers lists user names or DNs (wildcards allowed) whose roles are not resolved.
	SkipUsers []string `koanf:"skip_users"`
}

// DefaultRoleSearch is used when no role base is configured.
const DefaultRoleSearch = "(member={0})"

// DefaultAuthzSettings returns authorization defaults.
func DefaultAuthzSettings() AuthzSettings {
	return AuthzSettings{
		Roles:             []SearchBase{{Name: "_default", Search: DefaultRoleSearch}},
		Users:             []SearchBase{{Name: "_default", Search: DefaultUserSearch}},
		RoleSearchEnabled: true,
		UserRoleName:      "memberOf",
		RoleName:          "name",
		MaxNestedDepth:    30,
	}
}

// normalizeBases fills empty filters and sorts by name so configuration
// order does not depend on map iteration upstream.
func normalizeBases(bases []SearchBase, defaultSearch string) []SearchBase {
	out := slices.Clone(bases)
	for i := range out {
		if out[i].Search == "" {
			out[i].Search = defaultSearch
		}
	}
	slices.SortStableFunc(out, func(a, b SearchBase) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}
