// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package tenancy

import (
	"context"
	"maps"

	"github.com/google/uuid"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/filter"
)

// Handler applies tenant scoping to one request kind.
//
// A handler returns filter.SyncIntercepted when it issued the rewritten
// request itself and owns the listener.
type Handler interface {
	Handle(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	return f(ctx, ev, tenant, l)
}

// ErrCrossClusterShards is the failure for search-shards requests on tenant indices.
const ErrCrossClusterShards = "Filter-level MT via cross cluster search is not available for scrolling and minimize_roundtrips=true"

type handlers struct {
	client action.Client
	field  string
}

// NewHandlerTable returns the handler for every request kind that needs
// tenant scoping. Sub-requests are issued through client with the
// tenancy-applied flag set so they are not rewritten a second time.
func NewHandlerTable(client action.Client, settings Settings) map[action.Kind]Handler {
	h := &handlers{client: client, field: settings.TenantField}
	return map[action.Kind]Handler{
		action.KindGet:                 HandlerFunc(h.get),
		action.KindMultiGet:            HandlerFunc(h.multiGet),
		action.KindSearch:              HandlerFunc(h.search),
		action.KindMultiSearch:         HandlerFunc(h.multiSearch),
		action.KindBulk:                HandlerFunc(h.bulk),
		action.KindUpdate:              HandlerFunc(h.update),
		action.KindUpdateByQuery:       HandlerFunc(h.updateByQuery),
		action.KindIndex:               HandlerFunc(h.index),
		action.KindDelete:              HandlerFunc(h.delete),
		action.KindClusterSearchShards: HandlerFunc(h.searchShards),
		action.KindOpenPointInTime:     HandlerFunc(h.openPointInTime),
	}
}

// extension is the query clause restricting results to tenant.
func (h *handlers) extension(tenant string) action.Query {
	return action.BoolQuery{
		Should:             []action.Query{action.Term(h.field, tenant)},
		MinimumShouldMatch: 1,
	}.Query()
}

func (h *handlers) withTenantField(doc map[string]any, tenant string) map[string]any {
	out := maps.Clone(doc)
	if out == nil {
		out = map[string]any{}
	}
	out[h.field] = tenant
	return out
}

func wrongRequest(l action.Listener, ev *filter.EvaluationContext) filter.SyncResult {
	l.OnFailure(action.Internal(nil, "unexpected request type %T for %s", ev.Request, ev.Action))
	return filter.SyncIntercepted
}

func (h *handlers) get(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.GetRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	search := &action.SearchRequest{
		Targets: []string{req.Index},
		Query:   action.And(action.IDs(ScopeIfNeeded(req.ID, tenant)), h.extension(tenant)),
		Size:    10,
	}

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameSearch, search,
		action.MapListener(l, action.Adapter[*action.SearchResponse]{
			Map: func(resp *action.SearchResponse) (action.Response, error) {
				switch len(resp.Hits) {
				case 0:
					return &action.GetResponse{Index: req.Index, ID: req.ID, Found: false}, nil
				case 1:
					hit := resp.Hits[0]
					return &action.GetResponse{
						Index:       hit.Index,
						ID:          Unscope(hit.ID),
						Found:       true,
						Version:     hit.Version,
						SeqNo:       hit.SeqNo,
						PrimaryTerm: hit.PrimaryTerm,
						Source:      hit.Source,
					}, nil
				default:
					return nil, action.Internal(nil, "unexpected search result for get of %s/%s: %d hits", req.Index, req.ID, len(resp.Hits))
				}
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) multiGet(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.MultiGetRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := &action.MultiGetRequest{
		Items:    make([]action.MultiGetItem, len(req.Items)),
		Realtime: req.Realtime,
		Refresh:  req.Refresh,
	}
	for i, item := range req.Items {
		item.ID = ScopeIfNeeded(item.ID, tenant)
		scoped.Items[i] = item
	}

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameMultiGet, scoped,
		action.MapListener(l, action.Adapter[*action.MultiGetResponse]{
			Map: func(resp *action.MultiGetResponse) (action.Response, error) {
				out := &action.MultiGetResponse{Items: make([]action.MultiGetItemResponse, len(resp.Items))}
				for i, item := range resp.Items {
					if item.Response != nil {
						r := *item.Response
						r.ID = Unscope(r.ID)
						item.Response = &r
					}
					if item.Failure != nil {
						f := *item.Failure
						f.ID = Unscope(f.ID)
						item.Failure = &f
					}
					out.Items[i] = item
				}
				return out, nil
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) scopedSearch(req *action.SearchRequest, tenant string) *action.SearchRequest {
	c := *req
	c.Query = action.And(req.Query, h.extension(tenant))
	return &c
}

func unscopeHits(resp *action.SearchResponse) *action.SearchResponse {
	if resp == nil {
		return nil
	}
	out := *resp
	out.Hits = make([]action.SearchHit, len(resp.Hits))
	for i, hit := range resp.Hits {
		hit.ID = Unscope(hit.ID)
		out.Hits[i] = hit
	}
	return &out
}

func (h *handlers) search(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.SearchRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameSearch, h.scopedSearch(req, tenant),
		action.MapListener(l, action.Adapter[*action.SearchResponse]{
			Map: func(resp *action.SearchResponse) (action.Response, error) {
				return unscopeHits(resp), nil
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) multiSearch(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.MultiSearchRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := &action.MultiSearchRequest{Requests: make([]*action.SearchRequest, len(req.Requests))}
	for i, r := range req.Requests {
		scoped.Requests[i] = h.scopedSearch(r, tenant)
	}

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameMultiSearch, scoped,
		action.MapListener(l, action.Adapter[*action.MultiSearchResponse]{
			Map: func(resp *action.MultiSearchResponse) (action.Response, error) {
				out := &action.MultiSearchResponse{Items: make([]action.MultiSearchItem, len(resp.Items))}
				for i, item := range resp.Items {
					out.Items[i] = action.MultiSearchItem{Response: unscopeHits(item.Response), Failure: item.Failure}
				}
				return out, nil
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) bulk(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.BulkRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := &action.BulkRequest{Items: make([]action.BulkItem, len(req.Items)), Refresh: req.Refresh}
	for i, item := range req.Items {
		switch {
		case item.ID == "" && (item.Op == action.OpIndex || item.Op == action.OpCreate || item.Op == ""):
			item.ID = Scope(uuid.NewString(), tenant)
		default:
			item.ID = ScopeIfNeeded(item.ID, tenant)
		}
		if item.Op != action.OpDelete && item.Op != action.OpUpdate {
			item.Source = h.withTenantField(item.Source, tenant)
		}
		scoped.Items[i] = item
	}

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameBulk, scoped,
		action.MapListener(l, action.Adapter[*action.BulkResponse]{
			Map: func(resp *action.BulkResponse) (action.Response, error) {
				out := &action.BulkResponse{TookMillis: resp.TookMillis, Items: make([]action.BulkItemResponse, len(resp.Items))}
				for i, item := range resp.Items {
					item.ID = Unscope(item.ID)
					if item.Failure != nil {
						f := *item.Failure
						f.ID = Unscope(f.ID)
						item.Failure = &f
					}
					out.Items[i] = item
				}
				return out, nil
			},
		}))
	return filter.SyncIntercepted
}

// index scopes a single document write the same way a bulk index item is
// scoped.
func (h *handlers) index(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.IndexRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := *req
	if req.ID == "" {
		scoped.ID = Scope(uuid.NewString(), tenant)
	} else {
		scoped.ID = ScopeIfNeeded(req.ID, tenant)
	}
	scoped.Source = h.withTenantField(req.Source, tenant)

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), ev.Action, &scoped,
		action.MapListener(l, action.Adapter[*action.IndexResponse]{
			Map: func(resp *action.IndexResponse) (action.Response, error) {
				out := *resp
				out.ID = Unscope(resp.ID)
				return &out, nil
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) delete(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.DeleteRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := *req
	scoped.ID = ScopeIfNeeded(req.ID, tenant)

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), ev.Action, &scoped,
		action.MapListener(l, action.Adapter[*action.DeleteResponse]{
			Map: func(resp *action.DeleteResponse) (action.Response, error) {
				out := *resp
				out.ID = Unscope(resp.ID)
				return &out, nil
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) update(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.UpdateRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := *req
	scoped.ID = ScopeIfNeeded(req.ID, tenant)
	if req.Upsert != nil {
		scoped.Upsert = h.withTenantField(req.Upsert, tenant)
	}
	if req.DocAsUpsert {
		scoped.Doc = h.withTenantField(req.Doc, tenant)
	}

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameUpdate, &scoped,
		action.MapListener(l, action.Adapter[*action.UpdateResponse]{
			Map: func(resp *action.UpdateResponse) (action.Response, error) {
				out := *resp
				out.ID = Unscope(resp.ID)
				return &out, nil
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) updateByQuery(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.UpdateByQueryRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := *req
	scoped.Query = action.And(req.Query, h.extension(tenant))

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameUpdateByQuery, &scoped,
		action.MapListener(l, action.Adapter[*action.ByQueryResponse]{
			Map: func(resp *action.ByQueryResponse) (action.Response, error) {
				out := *resp
				out.Failures = make([]action.BulkFailure, len(resp.Failures))
				for i, f := range resp.Failures {
					f.ID = Unscope(f.ID)
					out.Failures[i] = f
				}
				return &out, nil
			},
		}))
	return filter.SyncIntercepted
}

func (h *handlers) searchShards(_ context.Context, _ *filter.EvaluationContext, _ string, l action.Listener) filter.SyncResult {
	l.OnFailure(action.Forbidden(ErrCrossClusterShards))
	return filter.SyncIntercepted
}

func (h *handlers) openPointInTime(ctx context.Context, ev *filter.EvaluationContext, tenant string, l action.Listener) filter.SyncResult {
	req, ok := ev.Request.(*action.OpenPointInTimeRequest)
	if !ok {
		return wrongRequest(l, ev)
	}

	scoped := *req
	if len(req.Filter) == 0 {
		scoped.Filter = h.extension(tenant)
	} else {
		scoped.Filter = action.And(req.Filter, h.extension(tenant))
	}

	h.client.Execute(ctx, ev.Exec.WithTenancyApplied(), action.NameOpenPointInTime, &scoped, l)
	return filter.SyncIntercepted
}
