// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package privileges

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/tomtom215/palisade/internal/pattern"
	"github.com/tomtom215/palisade/internal/user"
)

type compiledMapping struct {
	role         string
	backendRoles pattern.Set
	users        pattern.Set
	hosts        pattern.Set
}

// RoleMapper turns a principal into its mapped roles.
type RoleMapper struct {
	mappings   []compiledMapping
	resolution Resolution
}

// NewRoleMapper compiles role mappings.
func NewRoleMapper(mappings map[string]RoleMapping, resolution Resolution) (*RoleMapper, error) {
	if resolution == "" {
		resolution = ResolutionMappingOnly
	}
	names := make([]string, 0, len(mappings))
	for name := range mappings {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	m := &RoleMapper{resolution: resolution}
	for _, name := range names {
		src := mappings[name]
		br, err1 := pattern.CompileSet(src.BackendRoles)
		us, err2 := pattern.CompileSet(src.Users)
		hs, err3 := pattern.CompileSet(src.Hosts)
		if err := errors.Join(err1, err2, err3); err != nil {
			errs = append(errs, fmt.Errorf("role mapping %s: %w", name, err))
			continue
		}
		m.mappings = append(m.mappings, compiledMapping{role: name, backendRoles: br, users: us, hosts: hs})
	}
	return m, errors.Join(errs...)
}

// Map returns the sorted mapped roles of u calling from remote. remote may
// be the zero Addr when unknown.
func (m *RoleMapper) Map(u *user.User, remote netip.Addr) []string {
	if u == nil {
		return nil
	}
	roles := map[string]struct{}{}
	backendRoles := u.BackendRoles()

	if m.resolution != ResolutionBackendRolesOnly {
		host := ""
		if remote.IsValid() {
			host = remote.String()
		}
		for _, cm := range m.mappings {
			switch {
			case cm.users.Matches(u.Name()),
				cm.backendRoles.MatchesAny(backendRoles...),
				host != "" && cm.hosts.Matches(host):
				roles[cm.role] = struct{}{}
			}
		}
	}
	if m.resolution != ResolutionMappingOnly {
		for _, r := range backendRoles {
			roles[r] = struct{}{}
		}
	}

	out := make([]string, 0, len(roles))
	for r := range roles {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
