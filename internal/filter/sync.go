// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package filter

import (
	"context"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/user"
)

// SyncResult is the outcome of a SyncFilter.
type SyncResult int

const (
	// SyncOK lets processing continue with the next filter.
	SyncOK SyncResult = iota
	// SyncDenied rejects the action with a forbidden error.
	SyncDenied
	// SyncIntercepted means the filter completed (or will complete) the
	// listener itself; the chain must not proceed.
	SyncIntercepted
	// SyncPassOnFastLane skips the remaining sync filters and proceeds
	// down the chain, because an equivalent path applies the same logic.
	SyncPassOnFastLane
)

func (r SyncResult) String() string {
	switch r {
	case SyncOK:
		return "OK"
	case SyncDenied:
		return "DENIED"
	case SyncIntercepted:
		return "INTERCEPTED"
	case SyncPassOnFastLane:
		return "PASS_ON_FAST_LANE"
	default:
		return "UNKNOWN"
	}
}

// EvaluationContext is what sync filters see about the action being authorized.
type EvaluationContext struct {
	Exec        *action.ExecContext
	User        *user.User
	MappedRoles []string
	Action      string
	Request     action.Request
}

// SyncFilter inspects or takes over an authorized action before it proceeds.
type SyncFilter interface {
	ApplySync(ctx context.Context, ev *EvaluationContext, l action.Listener) SyncResult
}

// SyncFilterFunc adapts a function to SyncFilter.
type SyncFilterFunc func(ctx context.Context, ev *EvaluationContext, l action.Listener) SyncResult

// ApplySync implements SyncFilter.
func (f SyncFilterFunc) ApplySync(ctx context.Context, ev *EvaluationContext, l action.Listener) SyncResult {
	return f(ctx, ev, l)
}
