// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package tenancy

import "strings"

// Separator joins a document id and its tenant in a scoped id.
//
// An id that already contains Separator from user input cannot be told apart
// from a scoped id; Unscope cuts at the first occurrence. This is a known
// limitation of the encoding and is kept for compatibility with existing
// scoped documents.
const Separator = "__sg_ten__"

// Scope returns id scoped to tenant: id + Separator + tenant.
func Scope(id, tenant string) string {
	return id + Separator + tenant
}

// Unscope returns the part of id before the first Separator, or id
// unchanged when it is not scoped.
func Unscope(id string) string {
	if i := strings.Index(id, Separator); i >= 0 {
		return id[:i]
	}
	return id
}

// ScopeIfNeeded strips any existing scope from id and scopes it to tenant,
// so retried or re-wrapped requests are never scoped twice.
func ScopeIfNeeded(id, tenant string) string {
	return Scope(Unscope(id), tenant)
}

// IsScoped reports whether id carries a tenant scope.
func IsScoped(id string) bool {
	return strings.Contains(id, Separator)
}
