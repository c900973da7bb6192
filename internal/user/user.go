// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package user holds the authenticated principal and the credentials it was
// built from.
package user

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// ErrFrozen is returned when a frozen User is modified.
var ErrFrozen = errors.New("user is frozen")

// Authentication frontend types as they appear in AuthDomainInfo.
const (
	DomainTLSCert        = "tls_cert"
	DomainTransportBasic = "transport_basic"
	DomainImpersonation  = "impersonation+tls_cert"
)

// AuthDomainInfo records which frontend and backend authenticated a user.
type AuthDomainInfo struct {
	FrontendType string `json:"frontend_type,omitempty"`
	BackendType  string `json:"backend_type,omitempty"`
}

// String renders "frontend/backend".
func (d AuthDomainInfo) String() string {
	switch {
	case d.FrontendType == "" && d.BackendType == "":
		return ""
	case d.BackendType == "":
		return d.FrontendType
	case d.FrontendType == "":
		return "/" + d.BackendType
	default:
		return d.FrontendType + "/" + d.BackendType
	}
}

// Add returns info with empty parts filled from other.
func (d AuthDomainInfo) Add(other AuthDomainInfo) AuthDomainInfo {
	if d.FrontendType == "" {
		d.FrontendType = other.FrontendType
	}
	if d.BackendType == "" {
		d.BackendType = other.BackendType
	}
	return d
}

// User is an authenticated principal.
//
// Backend roles and attributes accumulate while authentication and
// authorization backends run. Freeze is called before the user is handed
// to the authorization filter or stored in a cache; afterwards every
// mutator returns ErrFrozen and per-request variations are derived with
// the With* copy methods.
type User struct {
	name            string
	domain          AuthDomainInfo
	backendRoles    map[string]struct{}
	attributes      map[string]any
	requestedTenant string
	frozen          bool
}

// New creates a user.
func New(name string, domain AuthDomainInfo) *User {
	return &User{
		name:         name,
		domain:       domain,
		backendRoles: make(map[string]struct{}),
		attributes:   make(map[string]any),
	}
}

// Name returns the user name. For certificate users this is the subject DN.
func (u *User) Name() string { return u.name }

// Domain returns authentication domain details.
func (u *User) Domain() AuthDomainInfo { return u.domain }

// RequestedTenant returns the tenant selected for the current request.
func (u *User) RequestedTenant() string { return u.requestedTenant }

// IsFrozen reports whether Freeze has been called.
func (u *User) IsFrozen() bool { return u.frozen }

// BackendRoles returns the backend roles, sorted.
func (u *User) BackendRoles() []string {
	roles := make([]string, 0, len(u.backendRoles))
	for r := range u.backendRoles {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// HasBackendRole reports whether role is among the backend roles.
func (u *User) HasBackendRole(role string) bool {
	_, ok := u.backendRoles[role]
	return ok
}

// Attributes returns a copy of the user attributes.
func (u *User) Attributes() map[string]any {
	return maps.Clone(u.attributes)
}

// Attribute returns a single attribute.
func (u *User) Attribute(key string) (any, bool) {
	v, ok := u.attributes[key]
	return v, ok
}

// AddBackendRoles adds roles; empty strings are ignored.
func (u *User) AddBackendRoles(roles ...string) error {
	if u.frozen {
		return ErrFrozen
	}
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			u.backendRoles[r] = struct{}{}
		}
	}
	return nil
}

// AddAttributes merges attrs into the user attributes.
func (u *User) AddAttributes(attrs map[string]any) error {
	if u.frozen {
		return ErrFrozen
	}
	maps.Copy(u.attributes, attrs)
	return nil
}

// SetDomain replaces the domain info while the user is still being built.
func (u *User) SetDomain(d AuthDomainInfo) error {
	if u.frozen {
		return ErrFrozen
	}
	u.domain = d
	return nil
}

// Freeze makes the user immutable and returns it.
func (u *User) Freeze() *User {
	u.frozen = true
	return u
}

// clone returns an unfrozen deep copy.
func (u *User) clone() *User {
	return &User{
		name:            u.name,
		domain:          u.domain,
		backendRoles:    maps.Clone(u.backendRoles),
		attributes:      maps.Clone(u.attributes),
		requestedTenant: u.requestedTenant,
	}
}

// WithRequestedTenant returns a frozen copy of u selecting tenant.
func (u *User) WithRequestedTenant(tenant string) *User {
	c := u.clone()
	c.requestedTenant = tenant
	return c.Freeze()
}

// Copy returns an unfrozen copy that may be extended further.
func (u *User) Copy() *User {
	return u.clone()
}

// String implements fmt.Stringer. Attributes are not rendered.
func (u *User) String() string {
	return fmt.Sprintf("User %s <%s> %v", u.name, u.domain, slices.Sorted(maps.Keys(u.backendRoles)))
}
