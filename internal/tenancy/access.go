// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package tenancy

import (
	"strings"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/user"
)

// Tenant permissions checked for saved-object access.
const (
	PermissionRead  = "kibana:saved_objects/_/read"
	PermissionWrite = "kibana:saved_objects/_/write"
)

// TenantAuthorizer answers tenant-permission questions for a user.
type TenantAuthorizer interface {
	// TenantExists reports whether tenant is a configured tenant.
	TenantExists(tenant string) bool
	// HasTenantPermission reports whether the mapped roles grant permission on tenant.
	HasTenantPermission(u *user.User, mappedRoles []string, permission, tenant string) (bool, error)
}

// Access is the effective access to one tenant.
type Access struct {
	Read  bool
	Write bool
}

var (
	// FullAccess grants read and write.
	FullAccess = Access{Read: true, Write: true}
	// Inaccessible grants nothing.
	Inaccessible = Access{}
)

// Prohibited reports whether no access at all is granted.
func (a Access) Prohibited() bool { return !a.Read && !a.Write }

var readOnlyActions = map[string]struct{}{
	action.NameIndicesGet:      {},
	action.NameGet:             {},
	action.NameSearch:          {},
	action.NameMultiSearch:     {},
	action.NameMultiGet:        {},
	action.NameMultiGetShard:   {},
	action.NameOpenPointInTime: {},
}

// IsReadOnlyAction reports whether name is allowed with read-only tenant access.
func IsReadOnlyAction(name string) bool {
	_, ok := readOnlyActions[name]
	return ok
}

const legacyURLAliasPrefix = "legacy-url-alias"

// isLegacyAliasUpdate matches the bulk the frontend sends when a dashboard
// is opened: updates of legacy URL alias counters on the frontend index.
// Read-only users must be able to send it.
func isLegacyAliasUpdate(req action.Request, frontendIndex string) bool {
	bulk, ok := req.(*action.BulkRequest)
	if !ok || len(bulk.Items) == 0 {
		return false
	}
	indices := bulk.Indices()
	if len(indices) != 1 || !strings.HasPrefix(indices[0], frontendIndex) {
		return false
	}
	for _, item := range bulk.Items {
		if item.Op != action.OpUpdate || !strings.HasPrefix(item.ID, legacyURLAliasPrefix) {
			return false
		}
		for k := range item.Doc {
			if k != legacyURLAliasPrefix {
				return false
			}
		}
	}
	return true
}
