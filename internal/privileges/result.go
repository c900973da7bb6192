// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package privileges

import (
	"fmt"
	"strings"

	"github.com/tomtom215/palisade/internal/action"
)

// Status is the outcome of a privilege evaluation.
type Status int

const (
	StatusOK Status = iota
	// StatusPartiallyOK means some, but not all, requested indices are allowed.
	StatusPartiallyOK
	StatusInsufficient
)

// String returns the metric label form of s.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPartiallyOK:
		return "partially_ok"
	default:
		return "insufficient"
	}
}

// Result describes an evaluation.
type Result struct {
	Status Status
	// Missing lists the privileges that were not granted, as "action" or
	// "action on index".
	Missing []string
	// AvailableIndices lists the allowed indices of a partial result.
	AvailableIndices []string
	Reason           string
	Errors           []error
	// AdditionalFilters are spliced into the chain in front of the action.
	AdditionalFilters []action.Filter
}

// OK reports whether the action may proceed.
func (r Result) OK() bool { return r.Status == StatusOK }

func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Status.String())
	if r.Reason != "" {
		fmt.Fprintf(&b, " (%s)", r.Reason)
	}
	if len(r.Missing) > 0 {
		fmt.Fprintf(&b, " missing=%v", r.Missing)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, " errors=%v", r.Errors)
	}
	return b.String()
}

func insufficient(reason string, missing ...string) Result {
	return Result{Status: StatusInsufficient, Reason: reason, Missing: missing}
}
