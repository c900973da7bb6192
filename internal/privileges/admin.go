// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package privileges

import (
	"errors"
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"
)

// AdminDNs recognises certificate subjects that bypass privilege evaluation.
type AdminDNs struct {
	dns []*goldap.DN
}

// NewAdminDNs parses the configured admin subjects.
func NewAdminDNs(subjects []string) (*AdminDNs, error) {
	a := &AdminDNs{}
	var errs []error
	for _, s := range subjects {
		dn, err := goldap.ParseDN(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("admin dn %q: %w", s, err))
			continue
		}
		a.dns = append(a.dns, dn)
	}
	return a, errors.Join(errs...)
}

// IsAdmin reports whether principal is an admin DN. Attribute type case and
// spacing are not significant.
func (a *AdminDNs) IsAdmin(principal string) bool {
	if a == nil || principal == "" {
		return false
	}
	dn, err := goldap.ParseDN(principal)
	if err != nil {
		return false
	}
	for _, admin := range a.dns {
		if admin.EqualFold(dn) {
			return true
		}
	}
	return false
}

// Len returns the number of admin DNs.
func (a *AdminDNs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.dns)
}
