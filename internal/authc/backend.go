// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import (
	"context"
	"errors"

	"github.com/tomtom215/palisade/internal/user"
)

var (
	// ErrAuthenticationFailed is the only authentication error visible to
	// callers. Wrapped causes are for logs.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnknownBackend is returned for domain types naming no registered backend.
	ErrUnknownBackend = errors.New("unknown authentication backend")

	// ErrInvalidDomain is returned for malformed domain configuration.
	ErrInvalidDomain = errors.New("invalid authentication domain")
)

// AuthenticationBackend verifies credentials.
type AuthenticationBackend interface {
	Type() string
	// Authenticate returns the user for valid credentials. Any error means
	// the credentials were not accepted.
	Authenticate(ctx context.Context, creds *user.AuthCredentials) (*user.User, error)
	// Exists looks a user up without credentials, for impersonation.
	Exists(ctx context.Context, name string) (*user.User, bool, error)
}

// AuthorizationBackend adds backend roles to an authenticated user.
type AuthorizationBackend interface {
	Type() string
	FillRoles(ctx context.Context, u *user.User) error
}
