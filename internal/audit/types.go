// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package audit

import (
	"context"
	"net/netip"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/palisade/internal/action"
)

// Category classifies audit events.
type Category string

const (
	// Authentication events
	CategoryAuthenticated Category = "AUTHENTICATED"
	CategoryFailedLogin   Category = "FAILED_LOGIN"
	CategoryBlockedIP     Category = "BLOCKED_IP"
	CategoryBlockedUser   Category = "BLOCKED_USER"

	// Authorization events
	CategoryGrantedPrivileges Category = "GRANTED_PRIVILEGES"
	CategoryMissingPrivileges Category = "MISSING_PRIVILEGES"

	// Compliance events
	CategoryImmutableIndexAttempt Category = "COMPLIANCE_IMMUTABLE_INDEX_ATTEMPT"
	CategoryBadHeaders            Category = "BAD_HEADERS"
)

// Layer is the entry point an event was observed on.
type Layer string

const (
	LayerREST      Layer = "REST"
	LayerTransport Layer = "TRANSPORT"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Layer     Layer     `json:"layer"`
	Origin    string    `json:"origin,omitempty"`

	// Action is the action name, e.g. indices:data/read/search.
	Action      string   `json:"action,omitempty"`
	RequestKind string   `json:"request_kind,omitempty"`
	Indices     []string `json:"indices,omitempty"`

	// User is the authenticated principal; EffectiveUser differs from it
	// when impersonation was used.
	User          string   `json:"user,omitempty"`
	EffectiveUser string   `json:"effective_user,omitempty"`
	MappedRoles   []string `json:"mapped_roles,omitempty"`
	RemoteAddr    string   `json:"remote_addr,omitempty"`
	SSLPrincipal  string   `json:"ssl_principal,omitempty"`

	Reason        string          `json:"reason,omitempty"`
	TaskID        string          `json:"task_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// Auditor receives security events from the request path. Implementations
// must not block the caller.
type Auditor interface {
	LogGrantedPrivileges(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, mappedRoles []string)
	LogMissingPrivileges(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, reason string)
	LogImmutableIndexAttempt(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request)
	LogSucceededLogin(ctx context.Context, ec *action.ExecContext, username, effectiveUser string)
	LogFailedLogin(ctx context.Context, ec *action.ExecContext, username, reason string)
	LogBlockedIP(ctx context.Context, ec *action.ExecContext, addr netip.Addr)
	LogBlockedUser(ctx context.Context, ec *action.ExecContext, username string)
}

// Store persists audit events.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Query retrieves events matching the filter, most recent first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than olderThan.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter selects audit events.
type QueryFilter struct {
	Categories []Category `json:"categories,omitempty"`
	User       string     `json:"user,omitempty"`
	Action     string     `json:"action,omitempty"`
	RemoteAddr string     `json:"remote_addr,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// Matches reports whether e satisfies every criterion of f.
func (f *QueryFilter) Matches(e *Event) bool {
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if e.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.User != "" && e.User != f.User && e.EffectiveUser != f.User {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.RemoteAddr != "" && e.RemoteAddr != f.RemoteAddr {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}
