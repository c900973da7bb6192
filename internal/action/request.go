// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

import "time"

// Request is an action request. Concrete types are pointers to the structs
// in this file.
type Request interface {
	Kind() Kind
	// Indices returns the index names or patterns the request targets.
	Indices() []string
}

// OpType is the write semantic of an index or bulk item.
type OpType string

const (
	OpIndex  OpType = "index"
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// GetRequest fetches one document by id.
type GetRequest struct {
	Index   string
	ID      string
	Routing string
}

func (r *GetRequest) Kind() Kind        { return KindGet }
func (r *GetRequest) Indices() []string { return []string{r.Index} }

// MultiGetItem is one document reference in a MultiGetRequest.
type MultiGetItem struct {
	Index   string
	ID      string
	Routing string
}

// MultiGetRequest fetches several documents.
type MultiGetRequest struct {
	Items    []MultiGetItem
	Realtime bool
	Refresh  bool
}

func (r *MultiGetRequest) Kind() Kind { return KindMultiGet }
func (r *MultiGetRequest) Indices() []string {
	return uniqueIndices(len(r.Items), func(i int) string { return r.Items[i].Index })
}

// PointInTime references an open point in time from a search.
type PointInTime struct {
	ID        string
	KeepAlive time.Duration
}

// SearchRequest runs a query.
type SearchRequest struct {
	Targets               []string
	Query                 Query
	From                  int
	Size                  int
	PIT                   *PointInTime
	Scroll                time.Duration
	CCSMinimizeRoundtrips bool
	Preference            string
}

func (r *SearchRequest) Kind() Kind        { return KindSearch }
func (r *SearchRequest) Indices() []string { return r.Targets }

// MultiSearchRequest runs several searches.
type MultiSearchRequest struct {
	Requests []*SearchRequest
}

func (r *MultiSearchRequest) Kind() Kind { return KindMultiSearch }
func (r *MultiSearchRequest) Indices() []string {
	var all []string
	for _, s := range r.Requests {
		all = append(all, s.Targets...)
	}
	return uniqueIndices(len(all), func(i int) string { return all[i] })
}

// BulkItem is one operation inside a BulkRequest.
type BulkItem struct {
	Op      OpType
	Index   string
	ID      string
	Routing string
	// Source is the document for index and create operations.
	Source map[string]any
	// Doc is the partial document for update operations.
	Doc map[string]any
}

// BulkRequest groups write operations.
type BulkRequest struct {
	Items   []BulkItem
	Refresh bool
}

func (r *BulkRequest) Kind() Kind { return KindBulk }
func (r *BulkRequest) Indices() []string {
	return uniqueIndices(len(r.Items), func(i int) string { return r.Items[i].Index })
}

// IndexRequest writes a whole document.
type IndexRequest struct {
	Index   string
	ID      string
	Routing string
	OpType  OpType
	Source  map[string]any
}

func (r *IndexRequest) Kind() Kind        { return KindIndex }
func (r *IndexRequest) Indices() []string { return []string{r.Index} }

// DeleteRequest removes a document.
type DeleteRequest struct {
	Index   string
	ID      string
	Routing string
}

func (r *DeleteRequest) Kind() Kind        { return KindDelete }
func (r *DeleteRequest) Indices() []string { return []string{r.Index} }

// UpdateRequest merges a partial document into an existing one.
type UpdateRequest struct {
	Index       string
	ID          string
	Routing     string
	Doc         map[string]any
	Upsert      map[string]any
	DocAsUpsert bool
}

func (r *UpdateRequest) Kind() Kind        { return KindUpdate }
func (r *UpdateRequest) Indices() []string { return []string{r.Index} }

// UpdateByQueryRequest merges Doc into every document matching Query.
type UpdateByQueryRequest struct {
	Targets []string
	Query   Query
	Doc     map[string]any
}

func (r *UpdateByQueryRequest) Kind() Kind        { return KindUpdateByQuery }
func (r *UpdateByQueryRequest) Indices() []string { return r.Targets }

// ClusterSearchShardsRequest asks which shards a search would hit.
type ClusterSearchShardsRequest struct {
	Targets    []string
	Routing    string
	Preference string
	// MinimizeRoundtrips is set when the request originates from a
	// cross-cluster search that minimizes round trips.
	MinimizeRoundtrips bool
}

func (r *ClusterSearchShardsRequest) Kind() Kind        { return KindClusterSearchShards }
func (r *ClusterSearchShardsRequest) Indices() []string { return r.Targets }

// OpenPointInTimeRequest opens a point in time over the targets.
type OpenPointInTimeRequest struct {
	Targets   []string
	KeepAlive time.Duration
	Routing   string
	// Filter restricts all searches using the point in time.
	Filter Query
}

func (r *OpenPointInTimeRequest) Kind() Kind        { return KindOpenPointInTime }
func (r *OpenPointInTimeRequest) Indices() []string { return r.Targets }

// DeleteIndexRequest deletes whole indices.
type DeleteIndexRequest struct {
	Targets []string
}

func (r *DeleteIndexRequest) Kind() Kind        { return KindDeleteIndex }
func (r *DeleteIndexRequest) Indices() []string { return r.Targets }

// CloseIndexRequest closes indices.
type CloseIndexRequest struct {
	Targets []string
}

func (r *CloseIndexRequest) Kind() Kind        { return KindCloseIndex }
func (r *CloseIndexRequest) Indices() []string { return r.Targets }

// AliasActionType is the kind of an alias change.
type AliasActionType string

const (
	AliasAdd         AliasActionType = "add"
	AliasRemove      AliasActionType = "remove"
	AliasRemoveIndex AliasActionType = "remove_index"
)

// AliasAction is one change in an IndicesAliasesRequest.
type AliasAction struct {
	Type  AliasActionType
	Index string
	Alias string
}

// IndicesAliasesRequest changes aliases.
type IndicesAliasesRequest struct {
	Actions []AliasAction
}

func (r *IndicesAliasesRequest) Kind() Kind { return KindIndicesAliases }
func (r *IndicesAliasesRequest) Indices() []string {
	return uniqueIndices(len(r.Actions), func(i int) string { return r.Actions[i].Index })
}

// RestoreSnapshotRequest restores indices from a snapshot.
type RestoreSnapshotRequest struct {
	Repository        string
	Snapshot          string
	Targets           []string
	RenamePattern     string
	RenameReplacement string
}

func (r *RestoreSnapshotRequest) Kind() Kind        { return KindRestoreSnapshot }
func (r *RestoreSnapshotRequest) Indices() []string { return r.Targets }

// GenericRequest covers actions without a dedicated request type, such as
// cluster monitoring.
type GenericRequest struct {
	Targets []string
	Params  map[string]string
}

func (r *GenericRequest) Kind() Kind        { return KindOther }
func (r *GenericRequest) Indices() []string { return r.Targets }

func uniqueIndices(n int, at func(int) string) []string {
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := at(i)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}
