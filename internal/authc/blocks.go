// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tomtom215/palisade/internal/pattern"
)

// maxDynamicBlocks bounds dynamically blocked entries per registry.
const maxDynamicBlocks = 100_000

// IPBlockRegistry rejects addresses that are statically blocked by network
// or dynamically blocked after repeated authentication failures.
type IPBlockRegistry struct {
	networks []netip.Prefix
	dynamic  *expirable.LRU[netip.Addr, struct{}]
}

// NewIPBlockRegistry parses blocked addresses and CIDR networks. Dynamic
// blocks expire after expiry; zero keeps them until evicted.
func NewIPBlockRegistry(blocked []string, expiry time.Duration) (*IPBlockRegistry, error) {
	r := &IPBlockRegistry{dynamic: expirable.NewLRU[netip.Addr, struct{}](maxDynamicBlocks, nil, expiry)}
	for _, s := range blocked {
		p, err := parsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("blocked ip %q: %w", s, err)
		}
		r.networks = append(r.networks, p)
	}
	return r, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		return p.Masked(), err
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}

// IsBlocked reports whether addr is blocked. Invalid addresses are not.
func (r *IPBlockRegistry) IsBlocked(addr netip.Addr) bool {
	if r == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	if _, ok := r.dynamic.Get(addr); ok {
		return true
	}
	for _, p := range r.networks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Block adds a dynamic block for addr.
func (r *IPBlockRegistry) Block(addr netip.Addr) {
	if r == nil || !addr.IsValid() {
		return
	}
	r.dynamic.Add(addr.Unmap(), struct{}{})
}

// Unblock removes a dynamic block.
func (r *IPBlockRegistry) Unblock(addr netip.Addr) {
	if r == nil {
		return
	}
	r.dynamic.Remove(addr.Unmap())
}

// UserBlockRegistry rejects statically blocked user name patterns and
// dynamically blocked users.
type UserBlockRegistry struct {
	static  pattern.Set
	dynamic *expirable.LRU[string, struct{}]
}

// NewUserBlockRegistry compiles the blocked user patterns.
func NewUserBlockRegistry(blocked []string, expiry time.Duration) (*UserBlockRegistry, error) {
	set, err := pattern.CompileSet(blocked)
	if err != nil {
		return nil, fmt.Errorf("blocked users: %w", err)
	}
	return &UserBlockRegistry{
		static:  set,
		dynamic: expirable.NewLRU[string, struct{}](maxDynamicBlocks, nil, expiry),
	}, nil
}

// IsBlocked reports whether name is blocked.
func (r *UserBlockRegistry) IsBlocked(name string) bool {
	if r == nil || name == "" {
		return false
	}
	if _, ok := r.dynamic.Get(name); ok {
		return true
	}
	return r.static.Matches(name)
}

// Block adds a dynamic block for name.
func (r *UserBlockRegistry) Block(name string) {
	if r == nil || name == "" {
		return
	}
	r.dynamic.Add(name, struct{}{})
}
