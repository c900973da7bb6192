// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedQuery is returned for query clauses the local evaluator
// cannot interpret.
var ErrUnsupportedQuery = errors.New("unsupported query")

// Matches evaluates q against a document with the given id. Only the
// clauses this package builds are understood: match_all, term, terms, ids
// and bool. A nil query matches everything.
func (q Query) Matches(id string, doc map[string]any) (bool, error) {
	if len(q) == 0 {
		return true, nil
	}
	return matchClause(map[string]any(q), id, doc)
}

func matchClause(clause map[string]any, id string, doc map[string]any) (bool, error) {
	if len(clause) != 1 {
		return false, fmt.Errorf("%w: clause must have exactly one key, got %d", ErrUnsupportedQuery, len(clause))
	}
	for name, body := range clause {
		switch name {
		case "match_all":
			return true, nil
		case "term":
			field, value, err := single(body)
			if err != nil {
				return false, err
			}
			return equalValue(lookup(doc, field), value), nil
		case "terms":
			field, values, err := single(body)
			if err != nil {
				return false, err
			}
			actual := lookup(doc, field)
			for _, v := range toSlice(values) {
				if equalValue(actual, v) {
					return true, nil
				}
			}
			return false, nil
		case "ids":
			m, ok := body.(map[string]any)
			if !ok {
				return false, fmt.Errorf("%w: ids body", ErrUnsupportedQuery)
			}
			for _, v := range toSlice(m["values"]) {
				if s, ok := v.(string); ok && s == id {
					return true, nil
				}
			}
			return false, nil
		case "bool":
			m, ok := body.(map[string]any)
			if !ok {
				return false, fmt.Errorf("%w: bool body", ErrUnsupportedQuery)
			}
			return matchBool(m, id, doc)
		default:
			return false, fmt.Errorf("%w: %s", ErrUnsupportedQuery, name)
		}
	}
	return false, nil
}

func matchBool(body map[string]any, id string, doc map[string]any) (bool, error) {
	eval := func(key string) (matched, total int, err error) {
		for _, c := range toSlice(body[key]) {
			sub, ok := asClause(c)
			if !ok {
				return 0, 0, fmt.Errorf("%w: bool.%s entry", ErrUnsupportedQuery, key)
			}
			total++
			ok, err = matchClause(sub, id, doc)
			if err != nil {
				return 0, 0, err
			}
			if ok {
				matched++
			}
		}
		return matched, total, nil
	}

	for _, key := range []string{"must", "filter"} {
		m, n, err := eval(key)
		if err != nil {
			return false, err
		}
		if m != n {
			return false, nil
		}
	}
	m, _, err := eval("must_not")
	if err != nil {
		return false, err
	}
	if m > 0 {
		return false, nil
	}

	m, n, err := eval("should")
	if err != nil {
		return false, err
	}
	msm := 0
	switch v := body["minimum_should_match"].(type) {
	case int:
		msm = v
	case float64:
		msm = int(v)
	}
	if msm == 0 && n > 0 && body["must"] == nil && body["filter"] == nil {
		msm = 1
	}
	return m >= msm, nil
}

func asClause(v any) (map[string]any, bool) {
	switch c := v.(type) {
	case map[string]any:
		return c, true
	case Query:
		return c, true
	}
	return nil, false
}

func single(body any) (string, any, error) {
	m, ok := body.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, fmt.Errorf("%w: expected a single field", ErrUnsupportedQuery)
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	case nil:
		return nil
	default:
		return []any{s}
	}
}

// lookup resolves a dotted field path.
func lookup(doc map[string]any, field string) any {
	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func equalValue(actual, want any) bool {
	if list, ok := actual.([]any); ok {
		for _, v := range list {
			if equalValue(v, want) {
				return true
			}
		}
		return false
	}
	if actual == nil {
		return want == nil
	}
	return fmt.Sprint(actual) == fmt.Sprint(want)
}
