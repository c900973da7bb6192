// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package user

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// AuthCredentials is what a caller presented. The secret is held as a byte
// slice so it can be wiped; call ClearSecrets when the attempt finishes.
type AuthCredentials struct {
	username          string
	authenticatorType string
	domain            AuthDomainInfo
	backendRoles      []string
	attributes        map[string]any

	mu       sync.Mutex
	password []byte
	cacheKey string
}

// CredentialsOption configures AuthCredentials.
type CredentialsOption func(*AuthCredentials)

// WithAuthenticatorType tags the credentials with the frontend that parsed them.
func WithAuthenticatorType(t string) CredentialsOption {
	return func(c *AuthCredentials) { c.authenticatorType = t }
}

// WithDomainInfo sets the domain info carried into the resulting user.
func WithDomainInfo(d AuthDomainInfo) CredentialsOption {
	return func(c *AuthCredentials) { c.domain = d }
}

// WithBackendRoleHints adds roles the frontend already knows about.
func WithBackendRoleHints(roles ...string) CredentialsOption {
	return func(c *AuthCredentials) { c.backendRoles = append(c.backendRoles, roles...) }
}

// WithCredentialAttributes attaches attributes copied into the resulting user.
func WithCredentialAttributes(attrs map[string]any) CredentialsOption {
	return func(c *AuthCredentials) { c.attributes = attrs }
}

// NewCredentials creates credentials for username. The password slice is
// owned by the credentials from here on and is zeroed by ClearSecrets.
func NewCredentials(username string, password []byte, opts ...CredentialsOption) *AuthCredentials {
	c := &AuthCredentials{username: username, password: password}
	for _, o := range opts {
		o(c)
	}
	if password != nil {
		h := sha256.New()
		h.Write([]byte(username))
		h.Write([]byte{0})
		h.Write(password)
		c.cacheKey = hex.EncodeToString(h.Sum(nil))
	} else {
		c.cacheKey = "name:" + username
	}
	return c
}

// ForUser creates credentials without a secret, used for impersonation
// and certificate based lookups.
func ForUser(username string, opts ...CredentialsOption) *AuthCredentials {
	return NewCredentials(username, nil, opts...)
}

// Username returns the claimed user name.
func (c *AuthCredentials) Username() string { return c.username }

// AuthenticatorType returns the frontend tag.
func (c *AuthCredentials) AuthenticatorType() string { return c.authenticatorType }

// DomainInfo returns the domain info to seed the user with.
func (c *AuthCredentials) DomainInfo() AuthDomainInfo { return c.domain }

// BackendRoleHints returns roles supplied by the frontend.
func (c *AuthCredentials) BackendRoleHints() []string { return c.backendRoles }

// HasSecret reports whether a password was supplied (even an empty one).
func (c *AuthCredentials) HasSecret() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.password != nil
}

// Password returns the secret. The returned slice aliases internal storage
// and is wiped by ClearSecrets.
func (c *AuthCredentials) Password() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.password
}

// CacheKey identifies the credentials for caching without exposing the
// secret. It stays valid after ClearSecrets.
func (c *AuthCredentials) CacheKey() string { return c.cacheKey }

// ClearSecrets zero-fills the password. Safe to call more than once.
func (c *AuthCredentials) ClearSecrets() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.password {
		c.password[i] = 0
	}
}

// NewUser builds an unfrozen user from the credentials.
func (c *AuthCredentials) NewUser(backendType string) *User {
	u := New(c.username, c.domain.Add(AuthDomainInfo{BackendType: backendType}))
	_ = u.AddBackendRoles(c.backendRoles...)
	if len(c.attributes) > 0 {
		_ = u.AddAttributes(c.attributes)
	}
	return u
}

// String never renders the secret.
func (c *AuthCredentials) String() string {
	return fmt.Sprintf("AuthCredentials{username=%s, type=%s, secret=%t}", c.username, c.authenticatorType, c.HasSecret())
}
