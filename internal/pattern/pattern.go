// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package pattern matches names against configured patterns.
//
// Three forms are recognised:
//   - a constant, matched exactly
//   - a wildcard containing '*' (any run of characters) or '?' (one character)
//   - a regular expression enclosed in slashes, e.g. /logs-\d+/
//
// Unlike path globbing, '*' also matches '/' and ':' so that action names such
// as "indices:data/read/*" behave as operators expect.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid is returned for patterns that cannot be compiled.
var ErrInvalid = errors.New("invalid pattern")

// Pattern is a compiled name pattern.
type Pattern struct {
	source string
	kind   kind
	re     *regexp.Regexp
}

type kind int

const (
	kindConstant kind = iota
	kindWildcard
	kindRegex
	kindAny
)

// Compile compiles a single pattern.
func Compile(s string) (Pattern, error) {
	switch {
	case s == "*":
		return Pattern{source: s, kind: kindAny}, nil
	case len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/"):
		re, err := regexp.Compile("^(?:" + s[1:len(s)-1] + ")$")
		if err != nil {
			return Pattern{}, fmt.Errorf("%w %q: %v", ErrInvalid, s, err)
		}
		return Pattern{source: s, kind: kindRegex, re: re}, nil
	case strings.ContainsAny(s, "*?"):
		return Pattern{source: s, kind: kindWildcard}, nil
	default:
		return Pattern{source: s, kind: kindConstant}, nil
	}
}

// MustCompile is Compile for patterns known at build time.
func MustCompile(s string) Pattern {
	p, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Matches reports whether name matches the pattern.
func (p Pattern) Matches(name string) bool {
	switch p.kind {
	case kindAny:
		return true
	case kindConstant:
		return p.source == name
	case kindRegex:
		return p.re.MatchString(name)
	default:
		return Wildcard(p.source, name)
	}
}

// IsConstant reports whether the pattern matches exactly one name.
func (p Pattern) IsConstant() bool {
	return p.kind == kindConstant
}

// String returns the pattern source.
func (p Pattern) String() string {
	return p.source
}

// Wildcard matches name against a '*' / '?' wildcard expression.
// Matching is iterative with single-star backtracking, linear in practice.
func Wildcard(expr, name string) bool {
	var (
		ei, ni       int
		starE, starN = -1, 0
	)
	for ni < len(name) {
		switch {
		case ei < len(expr) && (expr[ei] == '?' || expr[ei] == name[ni]):
			ei++
			ni++
		case ei < len(expr) && expr[ei] == '*':
			starE = ei
			starN = ni
			ei++
		case starE >= 0:
			ei = starE + 1
			starN++
			ni = starN
		default:
			return false
		}
	}
	for ei < len(expr) && expr[ei] == '*' {
		ei++
	}
	return ei == len(expr)
}

// Set is an ordered collection of patterns matched with OR semantics.
type Set struct {
	patterns []Pattern
}

// CompileSet compiles every source. Invalid entries are reported together.
func CompileSet(sources []string) (Set, error) {
	var (
		set  Set
		errs []error
	)
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, err := Compile(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set.patterns = append(set.patterns, p)
	}
	return set, errors.Join(errs...)
}

// MustCompileSet is CompileSet for static pattern lists.
func MustCompileSet(sources ...string) Set {
	s, err := CompileSet(sources)
	if err != nil {
		panic(err)
	}
	return s
}

// Matches reports whether any pattern in the set matches name.
func (s Set) Matches(name string) bool {
	for _, p := range s.patterns {
		if p.Matches(name) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether any of names matches the set.
func (s Set) MatchesAny(names ...string) bool {
	for _, n := range names {
		if s.Matches(n) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the set holds no patterns.
func (s Set) IsEmpty() bool {
	return len(s.patterns) == 0
}

// Len returns the number of patterns.
func (s Set) Len() int {
	return len(s.patterns)
}

// Sources returns the pattern sources in order.
func (s Set) Sources() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = p.source
	}
	return out
}
