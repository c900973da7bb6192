// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package ldap implements directory-backed authentication and role
// resolution, including nested group membership.
package ldap

import (
	"context"
	"errors"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
)

// Errors returned by the directory backends.
var (
	// ErrBackend wraps every directory connection or search failure.
	// Callers must deny when they see it.
	ErrBackend = errors.New("ldap: directory operation failed")

	// ErrUserNotFound is returned when no user entry matches.
	ErrUserNotFound = errors.New("ldap: user not found")

	// ErrInvalidCredentials is returned for any failed login, including
	// unknown users when fake login is enabled.
	ErrInvalidCredentials = errors.New("ldap: invalid credentials")

	// ErrEmptyPassword is returned before any directory I/O.
	ErrEmptyPassword = errors.New("ldap: empty password")
)

// Scope is the search scope.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOne
	ScopeSub
)

func (s Scope) goldap() int {
	switch s {
	case ScopeBase:
		return goldap.ScopeBaseObject
	case ScopeOne:
		return goldap.ScopeSingleLevel
	default:
		return goldap.ScopeWholeSubtree
	}
}

// Entry is a directory entry. Attribute names are matched case-insensitively.
type Entry struct {
	DN         string
	attributes map[string][]string
}

// NewEntry creates an entry.
func NewEntry(dn string, attrs map[string][]string) *Entry {
	e := &Entry{DN: dn, attributes: make(map[string][]string, len(attrs))}
	for k, v := range attrs {
		key := strings.ToLower(k)
		e.attributes[key] = append(e.attributes[key], v...)
	}
	return e
}

func fromGoLDAP(e *goldap.Entry) *Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Name] = a.Values
	}
	return NewEntry(e.DN, attrs)
}

// Values returns all values of name.
func (e *Entry) Values(name string) []string {
	return e.attributes[strings.ToLower(name)]
}

// First returns the first value of name, or "".
func (e *Entry) First(name string) string {
	if v := e.Values(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

// AttributeNames returns the lower-cased attribute names.
func (e *Entry) AttributeNames() []string {
	names := make([]string, 0, len(e.attributes))
	for k := range e.attributes {
		names = append(names, k)
	}
	return names
}

// Conn is a checked-out directory connection. It must not be shared
// between goroutines; Release returns it to its pool and must be called
// exactly once on every path.
type Conn interface {
	Search(ctx context.Context, base string, scope Scope, filter string) ([]*Entry, error)
	// Lookup reads the entry at dn, returning nil when it does not exist.
	Lookup(ctx context.Context, dn string) (*Entry, error)
	// Bind verifies dn and password on a dedicated connection.
	Bind(ctx context.Context, dn string, password []byte) error
	Release()
}

// Directory hands out connections.
type Directory interface {
	Connect(ctx context.Context) (Conn, error)
}

// IsValidDN reports whether s parses as a distinguished name.
func IsValidDN(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	dn, err := goldap.ParseDN(s)
	return err == nil && len(dn.RDNs) > 0
}

// dnKey normalises a DN for set membership.
func dnKey(dn string) string {
	parsed, err := goldap.ParseDN(dn)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(dn))
	}
	parts := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, a := range rdn.Attributes {
			attrs = append(attrs, strings.ToLower(a.Type)+"="+strings.ToLower(a.Value))
		}
		parts = append(parts, strings.Join(attrs, "+"))
	}
	return strings.Join(parts, ",")
}
