// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/palisade/internal/action"
)

func docWriteBody(d action.DocWriteResponse) map[string]any {
	return map[string]any{
		"_index":        d.Index,
		"_id":           d.ID,
		"_version":      d.Version,
		"_seq_no":       d.SeqNo,
		"_primary_term": d.PrimaryTerm,
		"result":        d.Result,
	}
}

func docWriteStatus(d action.DocWriteResponse) int {
	switch d.Result {
	case action.ResultCreated:
		return http.StatusCreated
	case action.ResultNotFound:
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

func getBody(g *action.GetResponse) map[string]any {
	body := map[string]any{
		"_index": g.Index,
		"_id":    g.ID,
		"found":  g.Found,
	}
	if g.Found {
		body["_version"] = g.Version
		body["_seq_no"] = g.SeqNo
		body["_primary_term"] = g.PrimaryTerm
		body["_source"] = g.Source
	}
	return body
}

func searchBody(s *action.SearchResponse) map[string]any {
	hits := make([]map[string]any, len(s.Hits))
	for i, h := range s.Hits {
		hit := map[string]any{
			"_index":  h.Index,
			"_id":     h.ID,
			"_score":  h.Score,
			"_source": h.Source,
		}
		if len(h.Fields) > 0 {
			hit["fields"] = h.Fields
		}
		hits[i] = hit
	}
	body := map[string]any{
		"took":      s.TookMillis,
		"timed_out": s.TimedOut,
		"hits": map[string]any{
			"total":     map[string]any{"value": s.TotalHits, "relation": "eq"},
			"max_score": s.MaxScore,
			"hits":      hits,
		},
	}
	if s.PITID != "" {
		body["pit_id"] = s.PITID
	}
	return body
}

// writeDocResponse renders the response of a document write and reports
// unexpected response types as internal errors.
func writeDocResponse(w http.ResponseWriter, resp action.Response) {
	var d action.DocWriteResponse
	switch v := resp.(type) {
	case *action.IndexResponse:
		d = v.DocWriteResponse
	case *action.DeleteResponse:
		d = v.DocWriteResponse
	case *action.UpdateResponse:
		d = v.DocWriteResponse
	default:
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	respondJSON(w, docWriteStatus(d), docWriteBody(d))
}

func (rt *Router) indexDocument(w http.ResponseWriter, r *http.Request) {
	rt.writeDocument(w, r, action.OpIndex)
}

func (rt *Router) createDocument(w http.ResponseWriter, r *http.Request) {
	rt.writeDocument(w, r, action.OpCreate)
}

func (rt *Router) writeDocument(w http.ResponseWriter, r *http.Request, op action.OpType) {
	source, err := readObject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if r.URL.Query().Get("op_type") == string(action.OpCreate) {
		op = action.OpCreate
	}
	req := &action.IndexRequest{
		Index:   chi.URLParam(r, "target"),
		ID:      chi.URLParam(r, "id"),
		Routing: r.URL.Query().Get("routing"),
		OpType:  op,
		Source:  source,
	}
	resp, ok := rt.execute(w, r, action.NameIndex, req)
	if !ok {
		return
	}
	writeDocResponse(w, resp)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	req := &action.GetRequest{
		Index:   chi.URLParam(r, "target"),
		ID:      chi.URLParam(r, "id"),
		Routing: r.URL.Query().Get("routing"),
	}
	resp, ok := rt.execute(w, r, action.NameGet, req)
	if !ok {
		return
	}
	g, ok := resp.(*action.GetResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	status := http.StatusOK
	if !g.Found {
		status = http.StatusNotFound
	}
	respondJSON(w, status, getBody(g))
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	req := &action.DeleteRequest{
		Index:   chi.URLParam(r, "target"),
		ID:      chi.URLParam(r, "id"),
		Routing: r.URL.Query().Get("routing"),
	}
	resp, ok := rt.execute(w, r, action.NameDelete, req)
	if !ok {
		return
	}
	writeDocResponse(w, resp)
}

func (rt *Router) updateDocument(w http.ResponseWriter, r *http.Request) {
	body, err := readObject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	doc, ok := object(body["doc"])
	if !ok {
		respondError(w, badRequest(nil, "update requires a [doc] object"))
		return
	}
	req := &action.UpdateRequest{
		Index:   chi.URLParam(r, "target"),
		ID:      chi.URLParam(r, "id"),
		Routing: r.URL.Query().Get("routing"),
		Doc:     doc,
	}
	if upsert, ok := object(body["upsert"]); ok {
		req.Upsert = upsert
	}
	if v, ok := body["doc_as_upsert"].(bool); ok {
		req.DocAsUpsert = v
	}
	resp, ok := rt.execute(w, r, action.NameUpdate, req)
	if !ok {
		return
	}
	writeDocResponse(w, resp)
}

func (rt *Router) multiGet(w http.ResponseWriter, r *http.Request) {
	body, err := readObject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	defaultIndex := chi.URLParam(r, "target")
	req := &action.MultiGetRequest{Realtime: true}

	if docs, ok := body["docs"].([]any); ok {
		for i, d := range docs {
			doc, ok := object(d)
			if !ok {
				respondError(w, badRequest(nil, "[docs][%d] must be an object", i))
				return
			}
			item := action.MultiGetItem{Index: str(doc, "_index"), ID: str(doc, "_id"), Routing: str(doc, "routing")}
			if item.Index == "" {
				item.Index = defaultIndex
			}
			req.Items = append(req.Items, item)
		}
	}
	if ids, ok := body["ids"].([]any); ok {
		for _, id := range ids {
			s, _ := id.(string)
			req.Items = append(req.Items, action.MultiGetItem{Index: defaultIndex, ID: s})
		}
	}
	if len(req.Items) == 0 {
		respondError(w, badRequest(nil, "no documents to get"))
		return
	}
	for i, item := range req.Items {
		if item.Index == "" || item.ID == "" {
			respondError(w, badRequest(nil, "item [%d] requires an index and an id", i))
			return
		}
	}

	resp, ok := rt.execute(w, r, action.NameMultiGet, req)
	if !ok {
		return
	}
	mg, ok := resp.(*action.MultiGetResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	docs := make([]map[string]any, len(mg.Items))
	for i, item := range mg.Items {
		switch {
		case item.Failure != nil:
			docs[i] = map[string]any{
				"_index": item.Failure.Index,
				"_id":    item.Failure.ID,
				"error":  ErrorCause{Type: "exception", Reason: item.Failure.Message},
			}
		case item.Response != nil:
			docs[i] = getBody(item.Response)
		case i < len(req.Items):
			docs[i] = map[string]any{"_index": req.Items[i].Index, "_id": req.Items[i].ID, "found": false}
		default:
			docs[i] = map[string]any{"found": false}
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"docs": docs})
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	body, err := readObject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	req, err := parseSearch(targets(chi.URLParam(r, "target")), body, r)
	if err != nil {
		respondError(w, err)
		return
	}
	resp, ok := rt.execute(w, r, action.NameSearch, req)
	if !ok {
		return
	}
	s, ok := resp.(*action.SearchResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	respondJSON(w, http.StatusOK, searchBody(s))
}

func (rt *Router) multiSearch(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		respondError(w, err)
		return
	}
	lines, err := ndjsonLines(data)
	if err != nil {
		respondError(w, err)
		return
	}
	req, err := parseMultiSearch(lines, r)
	if err != nil {
		respondError(w, err)
		return
	}
	if len(req.Requests) == 0 {
		respondError(w, badRequest(nil, "no requests added"))
		return
	}
	resp, ok := rt.execute(w, r, action.NameMultiSearch, req)
	if !ok {
		return
	}
	ms, ok := resp.(*action.MultiSearchResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	items := make([]any, len(ms.Items))
	for i, item := range ms.Items {
		if item.Failure != nil {
			status := action.StatusOf(item.Failure)
			items[i] = ErrorBody{
				Error:  ErrorCause{Type: errorType(status), Reason: errorReason(item.Failure, status)},
				Status: status,
			}
			continue
		}
		body := searchBody(item.Response)
		body["status"] = http.StatusOK
		items[i] = body
	}
	respondJSON(w, http.StatusOK, map[string]any{"responses": items})
}

func (rt *Router) bulk(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		respondError(w, err)
		return
	}
	lines, err := ndjsonLines(data)
	if err != nil {
		respondError(w, err)
		return
	}
	req, err := parseBulk(lines, chi.URLParam(r, "target"))
	if err != nil {
		respondError(w, err)
		return
	}
	req.Refresh = r.URL.Query().Get("refresh") == "true"

	resp, ok := rt.execute(w, r, action.NameBulk, req)
	if !ok {
		return
	}
	b, ok := resp.(*action.BulkResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	items := make([]map[string]any, len(b.Items))
	for i, item := range b.Items {
		entry := map[string]any{
			"_index": item.Index,
			"_id":    item.ID,
			"status": item.Status,
		}
		if item.Failure != nil {
			entry["error"] = ErrorCause{Type: errorType(item.Failure.Status), Reason: item.Failure.Message}
		} else {
			entry["_version"] = item.Version
			entry["_seq_no"] = item.SeqNo
			entry["result"] = item.Result
		}
		items[i] = map[string]any{string(item.Op): entry}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"took":   b.TookMillis,
		"errors": b.HasFailures(),
		"items":  items,
	})
}

func (rt *Router) updateByQuery(w http.ResponseWriter, r *http.Request) {
	body, err := readObject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	req := &action.UpdateByQueryRequest{Targets: targets(chi.URLParam(r, "target"))}
	if q, ok := object(body["query"]); ok {
		req.Query = action.Query(q)
	}
	doc, ok := object(body["doc"])
	if !ok {
		respondError(w, badRequest(nil, "update by query requires a [doc] object"))
		return
	}
	req.Doc = doc

	resp, ok := rt.execute(w, r, action.NameUpdateByQuery, req)
	if !ok {
		return
	}
	bq, ok := resp.(*action.ByQueryResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	failures := make([]map[string]any, len(bq.Failures))
	for i, f := range bq.Failures {
		failures[i] = map[string]any{"index": f.Index, "id": f.ID, "status": f.Status, "cause": f.Message}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":    bq.Total,
		"updated":  bq.Updated,
		"failures": failures,
	})
}

func (rt *Router) openPointInTime(w http.ResponseWriter, r *http.Request) {
	req := &action.OpenPointInTimeRequest{
		Targets: targets(chi.URLParam(r, "target")),
		Routing: r.URL.Query().Get("routing"),
	}
	keepAlive := r.URL.Query().Get("keep_alive")
	if keepAlive == "" {
		respondError(w, badRequest(nil, "[keep_alive] is required"))
		return
	}
	d, err := time.ParseDuration(keepAlive)
	if err != nil {
		respondError(w, badRequest(err, "invalid keep_alive [%s]", keepAlive))
		return
	}
	req.KeepAlive = d

	resp, ok := rt.execute(w, r, action.NameOpenPointInTime, req)
	if !ok {
		return
	}
	pit, ok := resp.(*action.OpenPointInTimeResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": pit.ID})
}

func (rt *Router) acknowledged(w http.ResponseWriter, r *http.Request, name string, req action.Request) {
	resp, ok := rt.execute(w, r, name, req)
	if !ok {
		return
	}
	ack, ok := resp.(*action.AcknowledgedResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"acknowledged": ack.Acknowledged})
}

func (rt *Router) deleteIndex(w http.ResponseWriter, r *http.Request) {
	rt.acknowledged(w, r, action.NameDeleteIndex, &action.DeleteIndexRequest{Targets: targets(chi.URLParam(r, "target"))})
}

func (rt *Router) closeIndex(w http.ResponseWriter, r *http.Request) {
	rt.acknowledged(w, r, action.NameCloseIndex, &action.CloseIndexRequest{Targets: targets(chi.URLParam(r, "target"))})
}

func (rt *Router) aliases(w http.ResponseWriter, r *http.Request) {
	body, err := readObject(r)
	if err != nil {
		respondError(w, err)
		return
	}
	list, ok := body["actions"].([]any)
	if !ok || len(list) == 0 {
		respondError(w, badRequest(nil, "[actions] is required"))
		return
	}

	req := &action.IndicesAliasesRequest{}
	for i, entry := range list {
		m, ok := object(entry)
		if !ok || len(m) != 1 {
			respondError(w, badRequest(nil, "[actions][%d] must hold exactly one action", i))
			return
		}
		for kind, v := range m {
			params, _ := object(v)
			a := action.AliasAction{
				Type:  action.AliasActionType(kind),
				Index: str(params, "index"),
				Alias: str(params, "alias"),
			}
			switch a.Type {
			case action.AliasAdd, action.AliasRemove:
				if a.Index == "" || a.Alias == "" {
					respondError(w, badRequest(nil, "[actions][%d] requires an index and an alias", i))
					return
				}
			case action.AliasRemoveIndex:
				if a.Index == "" {
					respondError(w, badRequest(nil, "[actions][%d] requires an index", i))
					return
				}
			default:
				respondError(w, badRequest(nil, "unknown alias action [%s]", kind))
				return
			}
			req.Actions = append(req.Actions, a)
		}
	}
	rt.acknowledged(w, r, action.NameIndicesAliases, req)
}
