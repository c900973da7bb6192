// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package cluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/pattern"
)

const (
	defaultSearchSize = 10
	defaultKeepAlive  = 5 * time.Minute
)

// ErrPointInTimeNotFound is returned for unknown or expired point in time ids.
var ErrPointInTimeNotFound = errors.New("point in time not found")

type pointInTime struct {
	indices []string
	filter  action.Query
	expires time.Time
}

// Executor runs actions against the store. It is the terminal step of the
// node's action pipeline.
type Executor struct {
	store *Store
	node  string
	now   func() time.Time

	mu   sync.Mutex
	pits map[string]*pointInTime
}

// NewExecutor creates an executor. node names this node in shard listings.
func NewExecutor(store *Store, node string) *Executor {
	return &Executor{
		store: store,
		node:  node,
		now:   time.Now,
		pits:  make(map[string]*pointInTime),
	}
}

// Execute implements action.Executor.
func (e *Executor) Execute(ctx context.Context, _ *action.ExecContext, name string, req action.Request) (action.Response, error) {
	logging.Ctx(ctx).Trace().Str("action", name).Stringer("kind", req.Kind()).Msg("Executing action")

	switch r := req.(type) {
	case *action.IndexRequest:
		op := r.OpType
		if op == "" {
			op = action.OpIndex
		}
		resp, err := e.store.Index(ctx, r.Index, e.id(r.ID), op, r.Source)
		if err != nil {
			return nil, err
		}
		return &action.IndexResponse{DocWriteResponse: resp}, nil
	case *action.GetRequest:
		return respond(e.store.Get(ctx, r.Index, r.ID))
	case *action.MultiGetRequest:
		return e.multiGet(ctx, r), nil
	case *action.DeleteRequest:
		resp, err := e.store.Delete(ctx, r.Index, r.ID)
		if err != nil {
			return nil, err
		}
		return &action.DeleteResponse{DocWriteResponse: resp}, nil
	case *action.UpdateRequest:
		upsert := r.Upsert
		if r.DocAsUpsert {
			upsert = r.Doc
		}
		resp, err := e.store.Update(ctx, r.Index, r.ID, r.Doc, upsert)
		if err != nil {
			return nil, err
		}
		return &action.UpdateResponse{DocWriteResponse: resp}, nil
	case *action.BulkRequest:
		return e.bulk(ctx, r), nil
	case *action.SearchRequest:
		return respond(e.search(ctx, r))
	case *action.MultiSearchRequest:
		out := &action.MultiSearchResponse{Items: make([]action.MultiSearchItem, len(r.Requests))}
		for i, sr := range r.Requests {
			resp, err := e.search(ctx, sr)
			out.Items[i] = action.MultiSearchItem{Response: resp, Failure: err}
		}
		return out, nil
	case *action.UpdateByQueryRequest:
		return respond(e.updateByQuery(ctx, r))
	case *action.OpenPointInTimeRequest:
		return respond(e.openPointInTime(ctx, r))
	case *action.ClusterSearchShardsRequest:
		indices, err := e.resolve(ctx, r.Targets)
		if err != nil {
			return nil, err
		}
		out := &action.ClusterSearchShardsResponse{}
		for _, idx := range indices {
			out.Shards = append(out.Shards, action.ShardInfo{Index: idx, Shard: 0, Node: e.node})
		}
		return out, nil
	case *action.DeleteIndexRequest:
		indices, err := e.resolve(ctx, r.Targets)
		if err != nil {
			return nil, err
		}
		for _, idx := range indices {
			if err := e.store.DeleteIndex(ctx, idx); err != nil {
				return nil, err
			}
		}
		return &action.AcknowledgedResponse{Acknowledged: true, For: action.KindDeleteIndex}, nil
	case *action.CloseIndexRequest:
		indices, err := e.resolve(ctx, r.Targets)
		if err != nil {
			return nil, err
		}
		for _, idx := range indices {
			if err := e.store.CloseIndex(ctx, idx); err != nil {
				return nil, err
			}
		}
		return &action.AcknowledgedResponse{Acknowledged: true, For: action.KindCloseIndex}, nil
	case *action.IndicesAliasesRequest:
		return respond(e.aliases(ctx, r))
	case *action.GenericRequest:
		return respond(e.generic(ctx, name))
	default:
		return nil, action.NewStatusError(http.StatusBadRequest, nil, "action %s is not supported by this node", name)
	}
}

// respond drops typed nil responses on error.
func respond[T action.Response](resp T, err error) (action.Response, error) {
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Executor) id(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (e *Executor) multiGet(ctx context.Context, r *action.MultiGetRequest) *action.MultiGetResponse {
	out := &action.MultiGetResponse{Items: make([]action.MultiGetItemResponse, len(r.Items))}
	for i, item := range r.Items {
		resp, err := e.store.Get(ctx, item.Index, item.ID)
		if err != nil {
			out.Items[i].Failure = &action.MultiGetFailure{Index: item.Index, ID: item.ID, Message: err.Error()}
			continue
		}
		out.Items[i].Response = resp
	}
	return out
}

func (e *Executor) bulk(ctx context.Context, r *action.BulkRequest) *action.BulkResponse {
	start := e.now()
	out := &action.BulkResponse{Items: make([]action.BulkItemResponse, len(r.Items))}
	for i, item := range r.Items {
		var (
			resp   action.DocWriteResponse
			err    error
			status = http.StatusOK
		)
		id := item.ID
		switch item.Op {
		case action.OpIndex, action.OpCreate, "":
			if id == "" {
				id = uuid.NewString()
			}
			op := item.Op
			if op == "" {
				op = action.OpIndex
			}
			resp, err = e.store.Index(ctx, item.Index, id, op, item.Source)
			if resp.Result == action.ResultCreated {
				status = http.StatusCreated
			}
		case action.OpUpdate:
			resp, err = e.store.Update(ctx, item.Index, id, item.Doc, nil)
		case action.OpDelete:
			resp, err = e.store.Delete(ctx, item.Index, id)
			if resp.Result == action.ResultNotFound {
				status = http.StatusNotFound
			}
		default:
			err = action.NewStatusError(http.StatusBadRequest, nil, "unknown bulk operation %q", item.Op)
		}
		if err != nil {
			st := action.StatusOf(err)
			out.Items[i] = action.BulkItemResponse{
				Op:      item.Op,
				Index:   item.Index,
				ID:      id,
				Status:  st,
				Failure: &action.BulkFailure{Index: item.Index, ID: id, Status: st, Message: err.Error()},
			}
			continue
		}
		out.Items[i] = action.BulkItemResponse{
			Op:      item.Op,
			Index:   resp.Index,
			ID:      resp.ID,
			Version: resp.Version,
			SeqNo:   resp.SeqNo,
			Status:  status,
			Result:  resp.Result,
		}
	}
	out.TookMillis = e.now().Sub(start).Milliseconds()
	return out
}

func (e *Executor) search(ctx context.Context, r *action.SearchRequest) (*action.SearchResponse, error) {
	start := e.now()
	query := r.Query
	targets := r.Targets
	pitID := ""
	if r.PIT != nil {
		p, err := e.pointInTime(r.PIT)
		if err != nil {
			return nil, err
		}
		targets = p.indices
		if len(p.filter) > 0 {
			query = action.And(query, p.filter)
		}
		pitID = r.PIT.ID
	}
	indices, err := e.resolve(ctx, targets)
	if err != nil {
		return nil, err
	}

	size := r.Size
	if size <= 0 {
		size = defaultSearchSize
	}
	out := &action.SearchResponse{PITID: pitID}
	err = e.store.Scan(ctx, indices, func(h Hit) (bool, error) {
		ok, err := query.Matches(h.ID, h.Source)
		if err != nil {
			return false, action.NewStatusError(http.StatusBadRequest, err, "query cannot be evaluated")
		}
		if !ok {
			return true, nil
		}
		out.TotalHits++
		if out.TotalHits > int64(r.From) && len(out.Hits) < size {
			out.Hits = append(out.Hits, action.SearchHit{
				Index:       h.Index,
				ID:          h.ID,
				Score:       1,
				Version:     h.Version,
				SeqNo:       h.SeqNo,
				PrimaryTerm: primaryTerm,
				Source:      h.Source,
			})
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if out.TotalHits > 0 {
		out.MaxScore = 1
	}
	out.TookMillis = e.now().Sub(start).Milliseconds()
	return out, nil
}

func (e *Executor) updateByQuery(ctx context.Context, r *action.UpdateByQueryRequest) (*action.ByQueryResponse, error) {
	indices, err := e.resolve(ctx, r.Targets)
	if err != nil {
		return nil, err
	}
	var matched []Hit
	err = e.store.Scan(ctx, indices, func(h Hit) (bool, error) {
		ok, err := r.Query.Matches(h.ID, h.Source)
		if err != nil {
			return false, action.NewStatusError(http.StatusBadRequest, err, "query cannot be evaluated")
		}
		if ok {
			matched = append(matched, h)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	out := &action.ByQueryResponse{Total: int64(len(matched))}
	for _, h := range matched {
		resp, err := e.store.Update(ctx, h.Index, h.ID, r.Doc, nil)
		if err != nil {
			out.Failures = append(out.Failures, action.BulkFailure{Index: h.Index, ID: h.ID, Status: action.StatusOf(err), Message: err.Error()})
			continue
		}
		if resp.Result == action.ResultUpdated {
			out.Updated++
		}
	}
	return out, nil
}

func (e *Executor) openPointInTime(ctx context.Context, r *action.OpenPointInTimeRequest) (*action.OpenPointInTimeResponse, error) {
	indices, err := e.resolve(ctx, r.Targets)
	if err != nil {
		return nil, err
	}
	keepAlive := r.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	id := uuid.NewString()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireLocked()
	e.pits[id] = &pointInTime{indices: indices, filter: r.Filter, expires: e.now().Add(keepAlive)}
	return &action.OpenPointInTimeResponse{ID: id}, nil
}

func (e *Executor) pointInTime(ref *action.PointInTime) (*pointInTime, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireLocked()
	p, ok := e.pits[ref.ID]
	if !ok {
		return nil, action.NewStatusError(http.StatusNotFound, ErrPointInTimeNotFound, "no point in time with id [%s]", ref.ID)
	}
	if ref.KeepAlive > 0 {
		p.expires = e.now().Add(ref.KeepAlive)
	}
	return p, nil
}

func (e *Executor) expireLocked() {
	now := e.now()
	for id, p := range e.pits {
		if now.After(p.expires) {
			delete(e.pits, id)
		}
	}
}

func (e *Executor) aliases(ctx context.Context, r *action.IndicesAliasesRequest) (*action.AcknowledgedResponse, error) {
	for _, a := range r.Actions {
		var err error
		switch a.Type {
		case action.AliasAdd:
			err = e.store.PutAlias(ctx, a.Alias, a.Index)
		case action.AliasRemove:
			err = e.store.RemoveAlias(ctx, a.Alias, a.Index)
		case action.AliasRemoveIndex:
			err = e.store.DeleteIndex(ctx, a.Index)
		default:
			err = action.NewStatusError(http.StatusBadRequest, nil, "unknown alias action %q", a.Type)
		}
		if err != nil {
			return nil, err
		}
	}
	return &action.AcknowledgedResponse{Acknowledged: true, For: action.KindIndicesAliases}, nil
}

func (e *Executor) generic(ctx context.Context, name string) (*action.GenericResponse, error) {
	switch name {
	case action.NameClusterHealth:
		return &action.GenericResponse{Data: map[string]any{
			"status":          "green",
			"number_of_nodes": 1,
		}}, nil
	case action.NameClusterState:
		indices, err := e.store.Indices(ctx)
		if err != nil {
			return nil, err
		}
		aliases, err := e.store.Aliases(ctx)
		if err != nil {
			return nil, err
		}
		return &action.GenericResponse{Data: map[string]any{
			"nodes":   []string{e.node},
			"indices": indices,
			"aliases": aliases,
		}}, nil
	default:
		return &action.GenericResponse{Data: map[string]any{"acknowledged": true}}, nil
	}
}

// resolve expands wildcards and aliases. Empty targets, "_all" and "*" mean
// every index. Concrete names that do not exist yet resolve to themselves.
func (e *Executor) resolve(ctx context.Context, targets []string) ([]string, error) {
	all, err := e.store.Indices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	if len(targets) == 0 {
		return all, nil
	}
	aliases, err := e.store.Aliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(idx string) {
		if _, ok := seen[idx]; !ok {
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}
	for _, t := range targets {
		if t == "_all" {
			t = "*"
		}
		p, err := pattern.Compile(t)
		if err != nil {
			return nil, action.NewStatusError(http.StatusBadRequest, err, "invalid index expression [%s]", t)
		}
		if p.IsConstant() {
			if members, ok := aliases[t]; ok {
				for _, idx := range members {
					add(idx)
				}
				continue
			}
			add(t)
			continue
		}
		for _, idx := range all {
			if p.Matches(idx) {
				add(idx)
			}
		}
		for alias, members := range aliases {
			if p.Matches(alias) {
				for _, idx := range members {
					add(idx)
				}
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
