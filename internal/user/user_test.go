// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package user

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestUserFreeze(t *testing.T) {
	t.Parallel()

	u := New("alice", AuthDomainInfo{FrontendType: "basic", BackendType: "ldap"})
	if err := u.AddBackendRoles("admins", " ", "readers"); err != nil {
		t.Fatalf("AddBackendRoles: %v", err)
	}
	u.Freeze()

	if err := u.AddBackendRoles("late"); !errors.Is(err, ErrFrozen) {
		t.Errorf("expected ErrFrozen, got %v", err)
	}
	if err := u.AddAttributes(map[string]any{"k": "v"}); !errors.Is(err, ErrFrozen) {
		t.Errorf("expected ErrFrozen, got %v", err)
	}

	got := u.BackendRoles()
	if len(got) != 2 || got[0] != "admins" || got[1] != "readers" {
		t.Errorf("BackendRoles() = %v, want [admins readers]", got)
	}
}

func TestWithRequestedTenantDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	u := New("bob", AuthDomainInfo{}).Freeze()
	a := u.WithRequestedTenant("tenantA")
	b := u.WithRequestedTenant("tenantB")

	if u.RequestedTenant() != "" {
		t.Errorf("original tenant = %q, want empty", u.RequestedTenant())
	}
	if a.RequestedTenant() != "tenantA" || b.RequestedTenant() != "tenantB" {
		t.Errorf("got tenants %q and %q", a.RequestedTenant(), b.RequestedTenant())
	}
	if !a.IsFrozen() {
		t.Error("expected derived user to be frozen")
	}
}

func TestCredentialsClearSecrets(t *testing.T) {
	t.Parallel()

	pw := []byte("s3cret")
	c := NewCredentials("alice", pw, WithAuthenticatorType("transport_basic"))
	key := c.CacheKey()

	c.ClearSecrets()

	if !bytes.Equal(pw, make([]byte, len(pw))) {
		t.Errorf("password not zeroed: %v", pw)
	}
	if c.CacheKey() != key {
		t.Error("cache key changed after ClearSecrets")
	}
	if strings.Contains(c.String(), "s3cret") {
		t.Errorf("String() leaks secret: %s", c.String())
	}
}

func TestCacheKeyDistinguishesPasswords(t *testing.T) {
	t.Parallel()

	a := NewCredentials("alice", []byte("one"))
	b := NewCredentials("alice", []byte("two"))
	n := ForUser("alice")

	if a.CacheKey() == b.CacheKey() {
		t.Error("different passwords produced the same cache key")
	}
	if n.CacheKey() == a.CacheKey() {
		t.Error("secretless credentials share a key with password credentials")
	}
	if n.HasSecret() {
		t.Error("ForUser should not carry a secret")
	}
}

func TestNewUserCarriesHints(t *testing.T) {
	t.Parallel()

	c := NewCredentials("carol", []byte("x"),
		WithDomainInfo(AuthDomainInfo{FrontendType: "basic"}),
		WithBackendRoleHints("hinted"),
		WithCredentialAttributes(map[string]any{"dept": "ops"}))

	u := c.NewUser("internal")
	if !u.HasBackendRole("hinted") {
		t.Error("expected hinted backend role")
	}
	if u.Domain().String() != "basic/internal" {
		t.Errorf("Domain() = %q, want basic/internal", u.Domain().String())
	}
	if v, _ := u.Attribute("dept"); v != "ops" {
		t.Errorf("dept = %v, want ops", v)
	}
}
