// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package privileges

import (
	"errors"
	"fmt"
)

// Resolution controls how backend roles become mapped roles.
type Resolution string

const (
	// ResolutionMappingOnly uses role mappings only.
	ResolutionMappingOnly Resolution = "mapping_only"
	// ResolutionBackendRolesOnly treats backend roles as mapped roles.
	ResolutionBackendRolesOnly Resolution = "backendroles_only"
	// ResolutionBoth combines both.
	ResolutionBoth Resolution = "both"
)

// IndexPermission grants actions on a set of index patterns. Patterns may
// contain ${user.name}, replaced by the evaluated user's name.
type IndexPermission struct {
	IndexPatterns  []string `koanf:"index_patterns" validate:"required,min=1"`
	AllowedActions []string `koanf:"allowed_actions" validate:"required,min=1"`
}

// TenantPermission grants actions on a set of tenants.
type TenantPermission struct {
	TenantPatterns []string `koanf:"tenant_patterns" validate:"required,min=1"`
	AllowedActions []string `koanf:"allowed_actions" validate:"required,min=1"`
}

// Role is a named bundle of permissions.
type Role struct {
	ClusterPermissions []string           `koanf:"cluster_permissions"`
	IndexPermissions   []IndexPermission  `koanf:"index_permissions" validate:"dive"`
	TenantPermissions  []TenantPermission `koanf:"tenant_permissions" validate:"dive"`
}

// RoleMapping assigns a role to principals. Every list accepts patterns.
type RoleMapping struct {
	BackendRoles []string `koanf:"backend_roles"`
	Users        []string `koanf:"users"`
	Hosts        []string `koanf:"hosts"`
}

// Config is one generation of privilege configuration.
type Config struct {
	// Roles by name.
	Roles map[string]Role `koanf:"roles" validate:"dive"`

	// RoleMappings by role name.
	RoleMappings map[string]RoleMapping `koanf:"role_mappings"`

	// ActionGroups name reusable lists of actions or other groups.
	ActionGroups map[string][]string `koanf:"action_groups"`

	// Tenants lists the configured tenant names.
	Tenants []string `koanf:"tenants"`

	// AdminOnlyActions are reserved for admin certificates.
	// Default: cluster:admin:searchguard:config/update
	AdminOnlyActions []string `koanf:"admin_only_actions"`

	// AdminOnlyExceptions are removed from AdminOnlyActions matches.
	// Default: cluster:admin/reindex
	AdminOnlyExceptions []string `koanf:"admin_only_exceptions"`

	// Resolution selects how backend roles are turned into roles.
	// Default: mapping_only
	Resolution Resolution `koanf:"resolution" validate:"omitempty,oneof=mapping_only backendroles_only both"`
}

// DefaultConfig returns an empty configuration with default reservations.
func DefaultConfig() Config {
	return Config{
		Roles:               map[string]Role{},
		RoleMappings:        map[string]RoleMapping{},
		ActionGroups:        map[string][]string{},
		AdminOnlyActions:    []string{"cluster:admin:searchguard:config/update"},
		AdminOnlyExceptions: []string{"cluster:admin/reindex"},
		Resolution:          ResolutionMappingOnly,
	}
}

// ErrInvalidConfig is returned by Load for configurations that cannot be compiled.
var ErrInvalidConfig = errors.New("invalid privileges configuration")

func (c Config) check() error {
	var errs []error
	switch c.Resolution {
	case "", ResolutionMappingOnly, ResolutionBackendRolesOnly, ResolutionBoth:
	default:
		errs = append(errs, fmt.Errorf("unknown resolution %q", c.Resolution))
	}
	for name, role := range c.Roles {
		for i, ip := range role.IndexPermissions {
			if len(ip.IndexPatterns) == 0 {
				errs = append(errs, fmt.Errorf("role %s: index_permissions[%d] has no index_patterns", name, i))
			}
		}
		for i, tp := range role.TenantPermissions {
			if len(tp.TenantPatterns) == 0 {
				errs = append(errs, fmt.Errorf("role %s: tenant_permissions[%d] has no tenant_patterns", name, i))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
