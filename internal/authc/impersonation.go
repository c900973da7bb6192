// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import (
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/tomtom215/palisade/internal/pattern"
)

type impersonationRule struct {
	proxy   *goldap.DN
	targets pattern.Set
}

// ImpersonationRules lists which certificate subjects may act as which users.
type ImpersonationRules struct {
	rules []impersonationRule
}

// NewImpersonationRules compiles a map of proxy DN to allowed user patterns.
func NewImpersonationRules(rules map[string][]string) (*ImpersonationRules, error) {
	r := &ImpersonationRules{}
	for proxy, targets := range rules {
		dn, err := goldap.ParseDN(proxy)
		if err != nil {
			return nil, fmt.Errorf("impersonation proxy %q: %w", proxy, err)
		}
		set, err := pattern.CompileSet(targets)
		if err != nil {
			return nil, fmt.Errorf("impersonation targets of %q: %w", proxy, err)
		}
		r.rules = append(r.rules, impersonationRule{proxy: dn, targets: set})
	}
	return r, nil
}

// Allowed reports whether proxy may impersonate target.
func (r *ImpersonationRules) Allowed(proxy, target string) bool {
	if r == nil || proxy == "" || target == "" {
		return false
	}
	dn, err := goldap.ParseDN(proxy)
	if err != nil {
		return false
	}
	for _, rule := range r.rules {
		if rule.proxy.EqualFold(dn) && rule.targets.Matches(target) {
			return true
		}
	}
	return false
}
