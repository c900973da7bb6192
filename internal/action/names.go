// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

// Action names understood by the gateway.
const (
	NameGet                 = "indices:data/read/get"
	NameMultiGet            = "indices:data/read/mget"
	NameMultiGetShard       = "indices:data/read/mget[shard]"
	NameSearch              = "indices:data/read/search"
	NameMultiSearch         = "indices:data/read/msearch"
	NameOpenPointInTime     = "indices:data/read/open_point_in_time"
	NameBulk                = "indices:data/write/bulk"
	NameBulkShard           = "indices:data/write/bulk[s]"
	NameIndex               = "indices:data/write/index"
	NameDelete              = "indices:data/write/delete"
	NameUpdate              = "indices:data/write/update"
	NameUpdateByQuery       = "indices:data/write/update/byquery"
	NameClusterSearchShards = "indices:admin/shards/search_shards"
	NameIndicesGet          = "indices:admin/get"
	NameDeleteIndex         = "indices:admin/delete"
	NameCloseIndex          = "indices:admin/close"
	NameIndicesAliases      = "indices:admin/aliases"
	NameCreateIndex         = "indices:admin/create"
	NameRestoreSnapshot     = "cluster:admin/snapshot/restore"
	NameClusterState        = "cluster:monitor/state"
	NameClusterHealth       = "cluster:monitor/health"
	NameLicenseInfo         = "cluster:admin:searchguard:license/info"
	NameWhoAmI              = "cluster:admin:searchguard:whoami"
	NameConfigUpdate        = "cluster:admin:searchguard:config/update"
	NameTransportProxy      = "internal:transport/proxy"
)

// Header names carried on requests.
const (
	HeaderConfRequest   = "_sg_conf_request"
	HeaderImpersonateAs = "sg_impersonate_as"
	HeaderAuthorization = "Authorization"
	HeaderTenant        = "sgtenant"
)
