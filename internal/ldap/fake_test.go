// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package ldap

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
)

// fakeDirectory is an in-memory Directory. It understands simple
// equality filters of the form (attr=value) and (objectClass=*).
type fakeDirectory struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	passwords map[string]string

	connects int
	releases int
	searches int
	lookups  int
	binds    []string

	// failFilter makes searches whose filter contains it fail.
	failFilter string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entries: map[string]*Entry{}, passwords: map[string]string{}}
}

// add stores an entry. The name attribute defaults to the first RDN value.
func (d *fakeDirectory) add(dn string, attrs map[string][]string) {
	if attrs == nil {
		attrs = map[string][]string{}
	}
	if _, ok := attrs["name"]; !ok {
		first := strings.SplitN(dn, ",", 2)[0]
		if i := strings.IndexByte(first, '='); i >= 0 {
			attrs["name"] = []string{first[i+1:]}
		}
	}
	d.entries[dnKey(dn)] = NewEntry(dn, attrs)
}

func (d *fakeDirectory) Connect(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	return &fakeConn{d: d}, nil
}

func (d *fakeDirectory) ioCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects + d.searches + d.lookups + len(d.binds)
}

type fakeConn struct {
	d        *fakeDirectory
	released bool
}

func (c *fakeConn) Search(_ context.Context, base string, scope Scope, filter string) ([]*Entry, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.searches++
	return c.search(base, scope, filter)
}

func (c *fakeConn) search(base string, scope Scope, filter string) ([]*Entry, error) {
	if c.d.failFilter != "" && strings.Contains(filter, c.d.failFilter) {
		return nil, errors.Join(ErrBackend, errors.New("connection reset"))
	}

	if scope == ScopeBase {
		if e, ok := c.d.entries[dnKey(base)]; ok {
			return []*Entry{e}, nil
		}
		return nil, nil
	}

	attr, value := parseEquality(filter)
	baseKey := dnKey(base)
	var out []*Entry
	for key, e := range c.d.entries {
		if base != "" && key != baseKey && !strings.HasSuffix(key, ","+baseKey) {
			continue
		}
		for _, v := range e.Values(attr) {
			if strings.EqualFold(v, value) || dnKey(v) == dnKey(value) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (c *fakeConn) Lookup(_ context.Context, dn string) (*Entry, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.lookups++
	entries, err := c.search(dn, ScopeBase, "(objectClass=*)")
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

func (c *fakeConn) Bind(_ context.Context, dn string, password []byte) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.binds = append(c.d.binds, dn)
	if want, ok := c.d.passwords[dnKey(dn)]; ok && want == string(password) {
		return nil
	}
	return ErrInvalidCredentials
}

func (c *fakeConn) Release() {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if !c.released {
		c.released = true
		c.d.releases++
	}
}

func parseEquality(filter string) (string, string) {
	f := strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
	i := strings.IndexByte(f, '=')
	if i < 0 {
		return "", ""
	}
	return f[:i], unescapeFilter(f[i+1:])
}

func unescapeFilter(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
