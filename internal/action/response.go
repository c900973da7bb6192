// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

// Response is the result of an action. Concrete types are pointers to the
// structs in this file.
type Response interface {
	Kind() Kind
}

// DocWriteResult is the outcome of a single document write.
type DocWriteResult string

const (
	ResultCreated  DocWriteResult = "created"
	ResultUpdated  DocWriteResult = "updated"
	ResultDeleted  DocWriteResult = "deleted"
	ResultNotFound DocWriteResult = "not_found"
	ResultNoop     DocWriteResult = "noop"
)

// DocWriteResponse is shared by index, delete and update responses.
type DocWriteResponse struct {
	Index       string
	ID          string
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Result      DocWriteResult
}

// GetResponse carries one document.
type GetResponse struct {
	Index       string
	ID          string
	Found       bool
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Source      map[string]any
}

func (r *GetResponse) Kind() Kind { return KindGet }

// MultiGetFailure describes one item that could not be fetched.
type MultiGetFailure struct {
	Index   string
	ID      string
	Message string
}

// MultiGetItemResponse holds either a response or a failure.
type MultiGetItemResponse struct {
	Response *GetResponse
	Failure  *MultiGetFailure
}

// MultiGetResponse is the result of a MultiGetRequest, in request order.
type MultiGetResponse struct {
	Items []MultiGetItemResponse
}

func (r *MultiGetResponse) Kind() Kind { return KindMultiGet }

// SearchHit is one matching document.
type SearchHit struct {
	Index       string
	ID          string
	Score       float64
	Shard       int
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Source      map[string]any
	Fields      map[string]any
}

// SearchResponse is the result of a SearchRequest.
type SearchResponse struct {
	TookMillis int64
	TimedOut   bool
	TotalHits  int64
	MaxScore   float64
	Hits       []SearchHit
	PITID      string
}

func (r *SearchResponse) Kind() Kind { return KindSearch }

// MultiSearchItem holds either a response or a failure.
type MultiSearchItem struct {
	Response *SearchResponse
	Failure  error
}

// MultiSearchResponse is the result of a MultiSearchRequest, in request order.
type MultiSearchResponse struct {
	Items []MultiSearchItem
}

func (r *MultiSearchResponse) Kind() Kind { return KindMultiSearch }

// BulkFailure describes a failed bulk item.
type BulkFailure struct {
	Index   string
	ID      string
	Status  int
	Message string
}

// BulkItemResponse is the outcome of one bulk item.
type BulkItemResponse struct {
	Op      OpType
	Index   string
	ID      string
	Version int64
	SeqNo   int64
	Status  int
	Result  DocWriteResult
	Failure *BulkFailure
}

// Failed reports whether the item failed.
func (r *BulkItemResponse) Failed() bool { return r.Failure != nil }

// BulkResponse is the result of a BulkRequest, in request order.
type BulkResponse struct {
	TookMillis int64
	Items      []BulkItemResponse
}

func (r *BulkResponse) Kind() Kind { return KindBulk }

// HasFailures reports whether any item failed.
func (r *BulkResponse) HasFailures() bool {
	for i := range r.Items {
		if r.Items[i].Failed() {
			return true
		}
	}
	return false
}

// IndexResponse is the result of an IndexRequest.
type IndexResponse struct{ DocWriteResponse }

func (r *IndexResponse) Kind() Kind { return KindIndex }

// DeleteResponse is the result of a DeleteRequest.
type DeleteResponse struct{ DocWriteResponse }

func (r *DeleteResponse) Kind() Kind { return KindDelete }

// UpdateResponse is the result of an UpdateRequest.
type UpdateResponse struct{ DocWriteResponse }

func (r *UpdateResponse) Kind() Kind { return KindUpdate }

// ByQueryResponse is the result of an UpdateByQueryRequest.
type ByQueryResponse struct {
	Total    int64
	Updated  int64
	Failures []BulkFailure
}

func (r *ByQueryResponse) Kind() Kind { return KindUpdateByQuery }

// ShardInfo locates one shard.
type ShardInfo struct {
	Index string
	Shard int
	Node  string
}

// ClusterSearchShardsResponse lists the shards a search would touch.
type ClusterSearchShardsResponse struct {
	Shards []ShardInfo
}

func (r *ClusterSearchShardsResponse) Kind() Kind { return KindClusterSearchShards }

// OpenPointInTimeResponse returns the PIT id.
type OpenPointInTimeResponse struct {
	ID string
}

func (r *OpenPointInTimeResponse) Kind() Kind { return KindOpenPointInTime }

// AcknowledgedResponse is returned by index administration actions.
type AcknowledgedResponse struct {
	Acknowledged bool
	For          Kind
}

func (r *AcknowledgedResponse) Kind() Kind { return r.For }

// GenericResponse carries arbitrary data for actions without a dedicated type.
type GenericResponse struct {
	Data map[string]any
}

func (r *GenericResponse) Kind() Kind { return KindOther }
