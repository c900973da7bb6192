// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package privileges

import (
	"net/netip"
	"slices"
	"testing"

	"github.com/tomtom215/palisade/internal/user"
)

func TestActionGroupsResolve(t *testing.T) {
	t.Parallel()

	g := NewActionGroups(map[string][]string{
		"A":    {"B", "indices:data/read/get"},
		"B":    {"A", "indices:data/read/search"},
		"SELF": {"SELF"},
	})

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"plain", []string{"cluster:monitor/*"}, []string{"cluster:monitor/*"}},
		{"cycle", []string{"A"}, []string{"indices:data/read/get", "indices:data/read/search"}},
		{"self reference", []string{"SELF"}, nil},
		{"duplicates", []string{"B", "indices:data/read/get"}, []string{"indices:data/read/get", "indices:data/read/search"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := g.Resolve(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("Resolve(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoleMapperResolution(t *testing.T) {
	t.Parallel()

	mappings := map[string]RoleMapping{
		"admin":  {BackendRoles: []string{"ldap_admins"}},
		"viewer": {Users: []string{"bob", "/guest-\\d+/"}},
	}
	u := user.New("guest-7", user.AuthDomainInfo{})
	if err := u.AddBackendRoles("ldap_admins"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		resolution Resolution
		want       []string
	}{
		{ResolutionMappingOnly, []string{"admin", "viewer"}},
		{ResolutionBackendRolesOnly, []string{"ldap_admins"}},
		{ResolutionBoth, []string{"admin", "ldap_admins", "viewer"}},
		{"", []string{"admin", "viewer"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.resolution), func(t *testing.T) {
			t.Parallel()
			m, err := NewRoleMapper(mappings, tt.resolution)
			if err != nil {
				t.Fatal(err)
			}
			if got := m.Map(u, netip.Addr{}); !slices.Equal(got, tt.want) {
				t.Errorf("Map() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoleMapperInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewRoleMapper(map[string]RoleMapping{"x": {Users: []string{"/[/"}}}, ResolutionMappingOnly)
	if err == nil {
		t.Fatal("NewRoleMapper() error = nil for invalid regex")
	}
}

func TestAdminDNs(t *testing.T) {
	t.Parallel()

	admins, err := NewAdminDNs([]string{"CN=kirk,OU=client,O=client,L=test,C=de"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		principal string
		want      bool
	}{
		{"CN=kirk,OU=client,O=client,L=test,C=de", true},
		{"cn=kirk, ou=client, o=client, l=test, c=de", true},
		{"CN=spock,OU=client,O=client,L=test,C=de", false},
		{"", false},
		{"not a dn", false},
	}
	for _, tt := range tests {
		if got := admins.IsAdmin(tt.principal); got != tt.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.principal, got, tt.want)
		}
	}

	var none *AdminDNs
	if none.IsAdmin("CN=kirk") {
		t.Error("nil AdminDNs reported an admin")
	}
}
