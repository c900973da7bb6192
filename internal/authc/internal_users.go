// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/palisade/internal/user"
)

// InternalBackendType names the internal users backend in domain types.
const InternalBackendType = "internal"

// InternalUser is one entry of the internal users database.
type InternalUser struct {
	// Hash is a bcrypt hash of the password.
	Hash         string            `koanf:"hash" validate:"required"`
	BackendRoles []string          `koanf:"backend_roles"`
	Attributes   map[string]string `koanf:"attributes"`
}

// InternalUsers authenticates against statically configured users.
type InternalUsers struct {
	users map[string]InternalUser
	// dummy is compared against for unknown users so both paths cost one
	// bcrypt comparison.
	dummy []byte
}

var _ AuthenticationBackend = (*InternalUsers)(nil)

// NewInternalUsers validates the hashes and builds the backend.
func NewInternalUsers(users map[string]InternalUser) (*InternalUsers, error) {
	for name, u := range users {
		if _, err := bcrypt.Cost([]byte(u.Hash)); err != nil {
			return nil, fmt.Errorf("%w: internal user %q: %v", ErrInvalidDomain, name, err)
		}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("palisade-dummy-password"), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash dummy password: %w", err)
	}
	return &InternalUsers{users: users, dummy: dummy}, nil
}

// Type implements AuthenticationBackend.
func (b *InternalUsers) Type() string { return InternalBackendType }

// Authenticate implements AuthenticationBackend.
func (b *InternalUsers) Authenticate(_ context.Context, creds *user.AuthCredentials) (*user.User, error) {
	password := creds.Password()
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: empty password", ErrAuthenticationFailed)
	}
	entry, ok := b.users[creds.Username()]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(b.dummy, password)
		return nil, fmt.Errorf("%w: no such user", ErrAuthenticationFailed)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(entry.Hash), password); err != nil {
		return nil, fmt.Errorf("%w: wrong password", ErrAuthenticationFailed)
	}
	return b.newUser(creds, entry)
}

// Exists implements AuthenticationBackend.
func (b *InternalUsers) Exists(_ context.Context, name string) (*user.User, bool, error) {
	entry, ok := b.users[name]
	if !ok {
		return nil, false, nil
	}
	u, err := b.newUser(user.ForUser(name), entry)
	return u, err == nil, err
}

func (b *InternalUsers) newUser(creds *user.AuthCredentials, entry InternalUser) (*user.User, error) {
	u := creds.NewUser(InternalBackendType)
	roles := append([]string(nil), entry.BackendRoles...)
	sort.Strings(roles)
	if err := u.AddBackendRoles(roles...); err != nil {
		return nil, err
	}
	if len(entry.Attributes) > 0 {
		attrs := make(map[string]any, len(entry.Attributes))
		for k, v := range entry.Attributes {
			attrs["attr.internal."+k] = v
		}
		if err := u.AddAttributes(attrs); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// HashPassword returns a bcrypt hash suitable for InternalUser.Hash.
func HashPassword(password []byte, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}
