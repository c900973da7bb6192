// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package ldap

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/pattern"
	"github.com/tomtom215/palisade/internal/user"
)

// BackendType is the backend name recorded in the user's domain info.
const BackendType = "ldap"

// User attributes set by the authentication backend and read by the
// role resolver.
const (
	AttrDN               = "ldap.dn"
	AttrOriginalUsername = "ldap.original.username"
	attrPrefix           = "ldap."
)

var fakeDomainComponent = uuid.NewString()

// Authenticator verifies credentials by binding as the user's entry.
type Authenticator struct {
	dir      Directory
	settings AuthcSettings
	users    []SearchBase
	mapAttrs pattern.Set
}

// NewAuthenticator creates an authentication backend.
func NewAuthenticator(dir Directory, settings AuthcSettings) (*Authenticator, error) {
	mapAttrs, err := pattern.CompileSet(settings.MapAttributes)
	if err != nil {
		return nil, fmt.Errorf("invalid map_ldap_attrs_to_user_attrs: %w", err)
	}
	users := normalizeBases(settings.Users, DefaultUserSearch)
	if len(users) == 0 {
		users = DefaultAuthcSettings().Users
	}
	return &Authenticator{dir: dir, settings: settings, users: users, mapAttrs: mapAttrs}, nil
}

// Type returns the backend type.
func (a *Authenticator) Type() string { return BackendType }

// Authenticate binds as the user. Unknown users and wrong passwords both
// yield ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, creds *user.AuthCredentials) (*user.User, error) {
	secret := creds.Password()
	if len(secret) == 0 {
		return nil, ErrEmptyPassword
	}
	password := bytes.Clone(secret)
	defer clear(password)

	conn, err := a.dir.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	entry, err := findUser(ctx, conn, a.users, creds.Username(), a.settings.SearchAllBases)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	log := logging.Ctx(ctx)
	if entry == nil {
		if a.settings.FakeLoginEnabled {
			if err := conn.Bind(ctx, a.settings.FakeLoginDN, []byte(a.settings.FakeLoginPassword)); err != nil && !errors.Is(err, ErrInvalidCredentials) {
				log.Debug().Err(err).Msg("fake login bind failed")
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, creds.Username())
	}

	if err := conn.Bind(ctx, entry.DN, password); err != nil {
		log.Debug().Err(err).Str("dn", entry.DN).Msg("user bind failed")
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return a.userFromEntry(creds, entry), nil
}

// Exists resolves name without credentials, for impersonation.
func (a *Authenticator) Exists(ctx context.Context, name string) (*user.User, bool, error) {
	conn, err := a.dir.Connect(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Release()

	entry, err := findUser(ctx, conn, a.users, name, a.settings.SearchAllBases)
	if errors.Is(err, ErrUserNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a.userFromEntry(user.ForUser(name), entry), true, nil
}

func (a *Authenticator) userFromEntry(creds *user.AuthCredentials, entry *Entry) *user.User {
	name := entry.DN
	if a.settings.UsernameAttribute != "" {
		if v := entry.First(a.settings.UsernameAttribute); v != "" {
			name = v
		}
	}

	u := user.New(name, creds.DomainInfo().Add(user.AuthDomainInfo{BackendType: BackendType}))
	_ = u.AddBackendRoles(creds.BackendRoleHints()...)

	attrs := map[string]any{
		AttrDN:               entry.DN,
		AttrOriginalUsername: creds.Username(),
	}
	if !a.mapAttrs.IsEmpty() {
		if a.mapAttrs.Matches("dn") {
			attrs[attrPrefix+"dn"] = entry.DN
		}
		for _, n := range entry.AttributeNames() {
			if !a.mapAttrs.Matches(n) {
				continue
			}
			switch values := entry.Values(n); len(values) {
			case 0:
			case 1:
				attrs[attrPrefix+n] = values[0]
			default:
				attrs[attrPrefix+n] = values
			}
		}
	}
	_ = u.AddAttributes(attrs)
	return u
}

// findUser resolves name to a user entry using bases in order.
func findUser(ctx context.Context, conn Conn, bases []SearchBase, name string, all bool) (*Entry, error) {
	var found *Entry
	for _, b := range bases {
		entries, err := conn.Search(ctx, b.Base, ScopeSub, FormatFilter(b.Search, map[int]string{0: name}))
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		if found == nil {
			found = entries[0]
		}
		if !all {
			break
		}
	}
	if found == nil {
		return nil, ErrUserNotFound
	}
	return found, nil
}
