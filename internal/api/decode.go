// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package api

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/palisade/internal/action"
)

// readBody reads the whole request body, mapping size overruns to 413.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, action.NewStatusError(http.StatusRequestEntityTooLarge, err, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, badRequest(err, "failed to read request body")
	}
	return data, nil
}

// readObject decodes a JSON object body. An empty body yields an empty map.
func readObject(r *http.Request) (map[string]any, error) {
	data, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, badRequest(err, "request body is not a JSON object")
	}
	return body, nil
}

// ndjsonLines splits a newline-delimited JSON body into decoded objects.
// Blank lines are skipped.
func ndjsonLines(data []byte) ([]map[string]any, error) {
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64<<10), len(data)+1)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, badRequest(err, "malformed action/metadata line [%d]", line)
		}
		out = append(out, obj)
	}
	if err := sc.Err(); err != nil {
		return nil, badRequest(err, "failed to read request body")
	}
	return out, nil
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func integer(m map[string]any, key string) (int, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, badRequest(err, "[%s] must be a number", key)
		}
		return n, nil
	default:
		return 0, badRequest(nil, "[%s] must be a number", key)
	}
}

// parseSearch builds a SearchRequest from a search body and query string.
func parseSearch(tgts []string, body map[string]any, r *http.Request) (*action.SearchRequest, error) {
	req := &action.SearchRequest{Targets: tgts}
	if q, ok := object(body["query"]); ok {
		req.Query = action.Query(q)
	} else if body["query"] != nil {
		return nil, badRequest(nil, "[query] must be an object")
	}

	var err error
	if req.From, err = integer(body, "from"); err != nil {
		return nil, err
	}
	if req.Size, err = integer(body, "size"); err != nil {
		return nil, err
	}
	// query string parameters override the body
	params := r.URL.Query()
	for key, dst := range map[string]*int{"from": &req.From, "size": &req.Size} {
		if v := params.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, badRequest(err, "[%s] must be a number", key)
			}
			*dst = n
		}
	}
	req.Preference = params.Get("preference")
	if v := params.Get("scroll"); v != "" {
		if req.Scroll, err = time.ParseDuration(v); err != nil {
			return nil, badRequest(err, "invalid scroll [%s]", v)
		}
	}
	if v := params.Get("ccs_minimize_roundtrips"); v != "" {
		req.CCSMinimizeRoundtrips = v == "true"
	}

	if pit, ok := object(body["pit"]); ok {
		req.PIT = &action.PointInTime{ID: str(pit, "id")}
		if v := str(pit, "keep_alive"); v != "" {
			if req.PIT.KeepAlive, err = time.ParseDuration(v); err != nil {
				return nil, badRequest(err, "invalid keep_alive [%s]", v)
			}
		}
		if req.PIT.ID == "" {
			return nil, badRequest(nil, "[pit] requires an id")
		}
	}
	return req, nil
}

// bulkOps are the bulk action line keys.
var bulkOps = map[string]action.OpType{
	"index":  action.OpIndex,
	"create": action.OpCreate,
	"update": action.OpUpdate,
	"delete": action.OpDelete,
}

// parseBulk builds a BulkRequest from NDJSON lines. defaultIndex applies to
// items without _index.
func parseBulk(lines []map[string]any, defaultIndex string) (*action.BulkRequest, error) {
	req := &action.BulkRequest{}
	for i := 0; i < len(lines); i++ {
		meta := lines[i]
		if len(meta) != 1 {
			return nil, badRequest(nil, "malformed action/metadata line [%d], expected a single action", i+1)
		}
		var (
			opName string
			params map[string]any
		)
		for k, v := range meta {
			opName = k
			params, _ = object(v)
		}
		op, ok := bulkOps[opName]
		if !ok {
			return nil, badRequest(nil, "malformed action/metadata line [%d], unknown action [%s]", i+1, opName)
		}

		item := action.BulkItem{
			Op:      op,
			Index:   str(params, "_index"),
			ID:      str(params, "_id"),
			Routing: str(params, "routing"),
		}
		if item.Index == "" {
			item.Index = defaultIndex
		}
		if item.Index == "" {
			return nil, badRequest(nil, "bulk item [%d] has no index", len(req.Items))
		}

		if op != action.OpDelete {
			i++
			if i >= len(lines) {
				return nil, badRequest(nil, "bulk %s item is missing its source line", opName)
			}
			if op == action.OpUpdate {
				doc, ok := object(lines[i]["doc"])
				if !ok {
					return nil, badRequest(nil, "bulk update item [%d] requires a doc", len(req.Items))
				}
				item.Doc = doc
			} else {
				item.Source = lines[i]
			}
		}
		req.Items = append(req.Items, item)
	}
	if len(req.Items) == 0 {
		return nil, badRequest(nil, "request body is required")
	}
	return req, nil
}

// parseMultiSearch builds a MultiSearchRequest from header/body line pairs.
func parseMultiSearch(lines []map[string]any, r *http.Request) (*action.MultiSearchRequest, error) {
	if len(lines)%2 != 0 {
		return nil, badRequest(nil, "msearch body must contain header and body line pairs")
	}
	req := &action.MultiSearchRequest{}
	for i := 0; i < len(lines); i += 2 {
		var tgts []string
		switch v := lines[i]["index"].(type) {
		case string:
			tgts = targets(v)
		case []any:
			for _, t := range v {
				if s, ok := t.(string); ok {
					tgts = append(tgts, s)
				}
			}
		}
		s, err := parseSearch(tgts, lines[i+1], r)
		if err != nil {
			return nil, fmt.Errorf("search %d: %w", i/2, err)
		}
		req.Requests = append(req.Requests, s)
	}
	return req, nil
}
