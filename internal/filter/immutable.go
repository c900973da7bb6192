// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package filter

import (
	"net/http"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/pattern"
)

// ReasonIndexImmutable is the reason reported for refused mutations.
const ReasonIndexImmutable = "Index is immutable"

// immutableOutcome is the decision of the immutable-index check.
type immutableOutcome int

const (
	immutableUntouched immutableOutcome = iota
	// immutableReject: the request mutates an immutable index.
	immutableReject
	// immutableCreateOnly: the request was rewritten to create-only and its
	// version conflicts must be reported as forbidden.
	immutableCreateOnly
)

// ImmutableIndices protects indices from modification after the first write.
type ImmutableIndices struct {
	indices pattern.Set
}

// NewImmutableIndices compiles the immutable index patterns.
func NewImmutableIndices(patterns []string) (*ImmutableIndices, error) {
	set, err := pattern.CompileSet(patterns)
	if err != nil {
		return nil, err
	}
	return &ImmutableIndices{indices: set}, nil
}

// Enabled reports whether any index is immutable.
func (m *ImmutableIndices) Enabled() bool {
	return m != nil && !m.indices.IsEmpty()
}

func (m *ImmutableIndices) anyImmutable(indices ...string) bool {
	return m.indices.MatchesAny(indices...)
}

// check classifies req. For create-only outcomes the returned request is a
// modified copy; req itself is never changed.
func (m *ImmutableIndices) check(req action.Request) (immutableOutcome, action.Request) {
	if !m.Enabled() || req == nil {
		return immutableUntouched, req
	}
	switch r := req.(type) {
	case *action.DeleteRequest, *action.UpdateRequest, *action.UpdateByQueryRequest,
		*action.DeleteIndexRequest, *action.CloseIndexRequest, *action.RestoreSnapshotRequest:
		if m.anyImmutable(req.Indices()...) {
			return immutableReject, req
		}
	case *action.IndicesAliasesRequest:
		for _, a := range r.Actions {
			if a.Type != action.AliasAdd && m.anyImmutable(a.Index) {
				return immutableReject, req
			}
		}
	case *action.IndexRequest:
		if m.anyImmutable(r.Index) {
			c := *r
			c.OpType = action.OpCreate
			return immutableCreateOnly, &c
		}
	case *action.BulkRequest:
		return m.checkBulk(r)
	}
	return immutableUntouched, req
}

func (m *ImmutableIndices) checkBulk(r *action.BulkRequest) (immutableOutcome, action.Request) {
	var rewritten *action.BulkRequest
	for i, item := range r.Items {
		if !m.anyImmutable(item.Index) {
			continue
		}
		switch item.Op {
		case action.OpCreate:
		case action.OpIndex, "":
			if rewritten == nil {
				c := *r
				c.Items = append([]action.BulkItem(nil), r.Items...)
				rewritten = &c
			}
			rewritten.Items[i].Op = action.OpCreate
		default:
			return immutableReject, r
		}
	}
	if rewritten != nil {
		return immutableCreateOnly, rewritten
	}
	return immutableUntouched, r
}

// createOnlyListener reports version conflicts on immutable indices as
// forbidden. onAttempt runs for every refused overwrite.
func (m *ImmutableIndices) createOnlyListener(l action.Listener, onAttempt func()) action.Listener {
	l = action.Once(l)
	mapped := action.MapListener(l, action.Adapter[action.Response]{
		Map: func(resp action.Response) (action.Response, error) {
			bulk, ok := resp.(*action.BulkResponse)
			if !ok {
				return resp, nil
			}
			refused := false
			for i := range bulk.Items {
				f := bulk.Items[i].Failure
				if f != nil && f.Status == http.StatusConflict && m.anyImmutable(f.Index) {
					f.Status = http.StatusForbidden
					f.Message = ReasonIndexImmutable
					bulk.Items[i].Status = http.StatusForbidden
					refused = true
				}
			}
			if refused {
				onAttempt()
			}
			return bulk, nil
		},
	})
	return action.ListenerFuncs(mapped.OnResponse, func(err error) {
		if action.StatusOf(err) == http.StatusConflict {
			onAttempt()
			l.OnFailure(action.NewStatusError(http.StatusForbidden, err, ReasonIndexImmutable))
			return
		}
		mapped.OnFailure(err)
	})
}
