// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

// Query is a search query in the cluster's JSON DSL, e.g.
//
//	{"bool": {"must": [{"term": {"status": "open"}}]}}
//
// Only map/slice/scalar values are used so queries can be serialized as is.
type Query map[string]any

// MatchAll matches every document.
func MatchAll() Query {
	return Query{"match_all": map[string]any{}}
}

// Term matches documents whose field equals value.
func Term(field string, value any) Query {
	return Query{"term": map[string]any{field: value}}
}

// Terms matches documents whose field equals any of values.
func Terms(field string, values ...any) Query {
	return Query{"terms": map[string]any{field: values}}
}

// IDs matches documents by id.
func IDs(ids ...string) Query {
	return Query{"ids": map[string]any{"values": ids}}
}

// BoolQuery builds a bool query.
type BoolQuery struct {
	Must               []Query
	Should             []Query
	Filter             []Query
	MustNot            []Query
	MinimumShouldMatch int
}

// Query renders the bool clause.
func (b BoolQuery) Query() Query {
	body := map[string]any{}
	put := func(name string, qs []Query) {
		if len(qs) == 0 {
			return
		}
		list := make([]any, len(qs))
		for i, q := range qs {
			list[i] = map[string]any(q)
		}
		body[name] = list
	}
	put("must", b.Must)
	put("should", b.Should)
	put("filter", b.Filter)
	put("must_not", b.MustNot)
	if b.MinimumShouldMatch > 0 {
		body["minimum_should_match"] = b.MinimumShouldMatch
	}
	return Query{"bool": body}
}

// And combines q with extra as a bool must. A nil q is treated as match_all.
func And(q Query, extra Query) Query {
	if len(q) == 0 {
		return BoolQuery{Must: []Query{extra}}.Query()
	}
	return BoolQuery{Must: []Query{q, extra}}.Query()
}
