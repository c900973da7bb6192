// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package tenancy

import (
	"strings"
	"testing"
)

func TestScopeRoundTrip(t *testing.T) {
	t.Parallel()

	ids := []string{"", "doc1", "config:8.7.0", "dashboard:abc-def", "with space"}
	tenants := []string{"123hr", "-99management", "0"}

	for _, id := range ids {
		for _, tenant := range tenants {
			scoped := Scope(id, tenant)
			if !IsScoped(scoped) {
				t.Errorf("IsScoped(%q) = false", scoped)
			}
			if got := Unscope(scoped); got != id {
				t.Errorf("Unscope(Scope(%q, %q)) = %q", id, tenant, got)
			}
			if got := ScopeIfNeeded(scoped, tenant); got != scoped {
				t.Errorf("ScopeIfNeeded(%q) = %q, want unchanged", scoped, got)
			}
		}
	}
}

func TestUnscopeUnscopedIsIdentity(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "a", "a__sg_te", "sg_ten__b"} {
		if got := Unscope(id); got != id {
			t.Errorf("Unscope(%q) = %q", id, got)
		}
	}
}

func TestUnscopeCutsAtFirstSeparator(t *testing.T) {
	t.Parallel()

	raw := "user" + Separator + "supplied"
	scoped := Scope(raw, "123hr")
	if got := Unscope(scoped); got != "user" {
		t.Errorf("Unscope(%q) = %q, want %q", scoped, got, "user")
	}
}

func TestInternalName(t *testing.T) {
	t.Parallel()

	hr := InternalName("HR Team", "alice")
	if !strings.HasSuffix(hr, "hrteam") {
		t.Errorf("InternalName = %q, want suffix hrteam", hr)
	}
	if InternalName("HR Team", "bob") != hr {
		t.Error("shared tenant name must not depend on the user")
	}

	alice := InternalName(PrivateTenant, "alice")
	bob := InternalName(PrivateTenant, "bob")
	if alice == bob {
		t.Errorf("private tenants collide: %q", alice)
	}
	if !strings.HasSuffix(alice, "useralice") {
		t.Errorf("private tenant name = %q", alice)
	}
}

func TestIndexMatcher(t *testing.T) {
	t.Parallel()

	m := newIndexMatcher(".kibana")
	tests := []struct {
		index string
		want  bool
	}{
		{".kibana", true},
		{".kibana_8.7.0", true},
		{".kibana_8.7.0_001", true},
		{".kibana_analytics", true},
		{".kibana_analytics_8.7.0_001", true},
		{".kibana_8.7.0_reindex_temp", true},
		{".kibana_task_manager", false},
		{".kibanax", false},
		{"logs", false},
	}
	for _, tt := range tests {
		if got := m.matches(tt.index); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.index, got, tt.want)
		}
	}
}
