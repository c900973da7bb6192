// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/palisade/internal/authc"
	"github.com/tomtom215/palisade/internal/pattern"
	"github.com/tomtom215/palisade/internal/privileges"
	"github.com/tomtom215/palisade/internal/transport"
	"github.com/tomtom215/palisade/internal/validation"
)

// LDAPBackendType names the directory backend in domain types and
// authorization lists.
const LDAPBackendType = "ldap"

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks struct tags first, then cross-field rules.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	errs := []error{
		c.validateDomains(),
		c.validateNetworks(),
		c.validatePatterns(),
		c.validateStorage(),
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Backends lists backend names usable in auth domains.
func (c *Config) Backends() []string {
	out := []string{authc.InternalBackendType}
	if c.LDAP.Enabled {
		out = append(out, LDAPBackendType)
	}
	return out
}

func (c *Config) hasBackend(name string) bool {
	for _, b := range c.Backends() {
		if b == name {
			return true
		}
	}
	return false
}

func (c *Config) validateDomains() error {
	var errs []error
	seen := map[string]bool{}
	enabled := 0
	for _, d := range c.Auth.Domains {
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("auth.domains: duplicate domain %q", d.Name))
		}
		seen[d.Name] = true
		if !d.Enabled {
			continue
		}
		enabled++

		frontend, backend, ok := strings.Cut(d.Type, "/")
		if !ok || frontend == "" || backend == "" {
			errs = append(errs, fmt.Errorf("auth.domains.%s.type %q must be <frontend>/<backend>", d.Name, d.Type))
			continue
		}
		if !c.hasBackend(backend) {
			errs = append(errs, fmt.Errorf("auth.domains.%s: backend %q is not available (have %s)", d.Name, backend, strings.Join(c.Backends(), ", ")))
		}
		for _, a := range d.Authorization {
			if a != LDAPBackendType || !c.LDAP.Enabled {
				errs = append(errs, fmt.Errorf("auth.domains.%s: authorization backend %q is not available", d.Name, a))
			}
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("auth.domains: at least one domain must be enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateNetworks() error {
	var errs []error
	if _, err := transport.ParseNetworks(c.Auth.AcceptedNetworks); err != nil {
		errs = append(errs, fmt.Errorf("auth.accepted_networks: %w", err))
	}
	if _, err := authc.NewIPBlockRegistry(c.Auth.BlockedIPs, c.Auth.FailureListener.BlockExpiry); err != nil {
		errs = append(errs, fmt.Errorf("auth.blocked_ips: %w", err))
	}
	if _, err := privileges.NewAdminDNs(c.Auth.AdminDNs); err != nil {
		errs = append(errs, fmt.Errorf("auth.admin_dn: %w", err))
	}
	if _, err := authc.NewImpersonationRules(c.Auth.TransportImpersonation); err != nil {
		errs = append(errs, fmt.Errorf("auth.transport_impersonation: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) validatePatterns() error {
	var errs []error
	check := func(path string, patterns []string) {
		if _, err := pattern.CompileSet(patterns); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	check("auth.blocked_users", c.Auth.BlockedUsers)
	check("filter.immutable_indices", c.Filter.ImmutableIndices)
	check("audit.ignore_users", c.Audit.IgnoreUsers)
	for _, d := range c.Auth.Domains {
		check("auth.domains."+d.Name+".skip_users", d.SkipUsers)
	}
	return errors.Join(errs...)
}

func (c *Config) validateStorage() error {
	var errs []error
	if c.Audit.Store == "badger" && c.Audit.Path == "" {
		errs = append(errs, errors.New("audit.path is required for the badger store"))
	}
	if !c.Cluster.InMemory && c.Cluster.Path == "" {
		errs = append(errs, errors.New("cluster.path is required unless cluster.in_memory is set"))
	}
	if c.Audit.Store == "badger" && !c.Cluster.InMemory && c.Audit.Path == c.Cluster.Path {
		errs = append(errs, errors.New("audit.path and cluster.path must differ"))
	}
	return errors.Join(errs...)
}
