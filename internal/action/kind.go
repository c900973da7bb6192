// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

// Kind tags the concrete type of a Request. Dispatch tables key on Kind so the
// set of supported requests is a closed, checkable enumeration.
type Kind int

const (
	KindOther Kind = iota
	KindGet
	KindMultiGet
	KindSearch
	KindMultiSearch
	KindBulk
	KindUpdate
	KindUpdateByQuery
	KindIndex
	KindDelete
	KindClusterSearchShards
	KindOpenPointInTime
	KindDeleteIndex
	KindCloseIndex
	KindIndicesAliases
	KindRestoreSnapshot
)

var kindNames = map[Kind]string{
	KindOther:               "other",
	KindGet:                 "get",
	KindMultiGet:            "mget",
	KindSearch:              "search",
	KindMultiSearch:         "msearch",
	KindBulk:                "bulk",
	KindUpdate:              "update",
	KindUpdateByQuery:       "update_by_query",
	KindIndex:               "index",
	KindDelete:              "delete",
	KindClusterSearchShards: "search_shards",
	KindOpenPointInTime:     "open_point_in_time",
	KindDeleteIndex:         "delete_index",
	KindCloseIndex:          "close_index",
	KindIndicesAliases:      "indices_aliases",
	KindRestoreSnapshot:     "restore_snapshot",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}
