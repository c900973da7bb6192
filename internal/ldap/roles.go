// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package ldap

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/pattern"
	"github.com/tomtom215/palisade/internal/user"
)

// RoleResolver fills backend roles from the directory, following nested
// group membership up to a bounded depth.
type RoleResolver struct {
	dir          Directory
	settings     AuthzSettings
	roleBases    []SearchBase
	allBases     []int
	userBases    []SearchBase
	roleAttrs    []string
	nestedFilter pattern.Set
	skipUsers    pattern.Set
}

// NewRoleResolver creates an authorization backend.
func NewRoleResolver(dir Directory, settings AuthzSettings) (*RoleResolver, error) {
	nestedFilter, err := pattern.CompileSet(settings.NestedRoleFilter)
	if err != nil {
		return nil, fmt.Errorf("invalid nested_role_filter: %w", err)
	}
	skipUsers, err := pattern.CompileSet(settings.SkipUsers)
	if err != nil {
		return nil, fmt.Errorf("invalid skip_users: %w", err)
	}

	defaults := DefaultAuthzSettings()
	roleBases := normalizeBases(settings.Roles, DefaultRoleSearch)
	if len(roleBases) == 0 {
		roleBases = defaults.Roles
	}
	userBases := normalizeBases(settings.Users, DefaultUserSearch)
	if len(userBases) == 0 {
		userBases = defaults.Users
	}
	if settings.UserRoleName == "" {
		settings.UserRoleName = defaults.UserRoleName
	}
	if settings.RoleName == "" {
		settings.RoleName = defaults.RoleName
	}

	var roleAttrs []string
	for _, a := range strings.Split(settings.UserRoleName, ",") {
		if a = strings.TrimSpace(a); a != "" {
			roleAttrs = append(roleAttrs, a)
		}
	}

	allBases := make([]int, len(roleBases))
	for i := range allBases {
		allBases[i] = i
	}

	return &RoleResolver{
		dir:          dir,
		settings:     settings,
		roleBases:    roleBases,
		allBases:     allBases,
		userBases:    userBases,
		roleAttrs:    roleAttrs,
		nestedFilter: nestedFilter,
		skipUsers:    skipUsers,
	}, nil
}

// Type returns the backend type.
func (r *RoleResolver) Type() string { return BackendType }

// roleNode is a role DN in the membership graph together with the search
// bases that discovered it.
type roleNode struct {
	dn    string
	bases map[int]struct{}
	depth int
}

// roleGraph accumulates role DNs keyed by normalised DN.
type roleGraph struct {
	nodes map[string]*roleNode
	order []string
}

func newRoleGraph() *roleGraph {
	return &roleGraph{nodes: make(map[string]*roleNode)}
}

// add records dn and returns the node when it was not known before.
func (g *roleGraph) add(dn string, depth int, bases ...int) (*roleNode, bool) {
	key := dnKey(dn)
	n, ok := g.nodes[key]
	if !ok {
		n = &roleNode{dn: dn, bases: make(map[int]struct{}), depth: depth}
		g.nodes[key] = n
		g.order = append(g.order, key)
	}
	for _, b := range bases {
		n.bases[b] = struct{}{}
	}
	return n, !ok
}

// FillRoles adds the resolved roles to u. Any directory failure returns
// an error wrapping ErrBackend and adds nothing.
func (r *RoleResolver) FillRoles(ctx context.Context, u *user.User) error {
	if u == nil {
		return nil
	}
	log := logging.Ctx(ctx).With().Str("component", "ldap-authz").Logger()

	principal := u.Name()
	original := u.Name()
	if v, ok := u.Attribute(AttrDN); ok {
		if s, _ := v.(string); s != "" {
			principal = s
		}
	}
	if v, ok := u.Attribute(AttrOriginalUsername); ok {
		if s, _ := v.(string); s != "" {
			original = s
		}
	}

	if !r.skipUsers.IsEmpty() && r.skipUsers.MatchesAny(original, principal) {
		log.Debug().Str("user", principal).Msg("skipped role resolution")
		return nil
	}

	conn, err := r.dir.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	roles, err := r.resolve(ctx, conn, principal, original)
	if err != nil {
		log.Debug().Err(err).Str("user", principal).Msg("unable to resolve roles")
		return err
	}
	if err := u.AddBackendRoles(roles...); err != nil {
		return fmt.Errorf("failed to add backend roles: %w", err)
	}
	log.Debug().Str("user", u.Name()).Strs("roles", roles).Msg("resolved directory roles")
	return nil
}

func (r *RoleResolver) resolve(ctx context.Context, conn Conn, principal, original string) ([]string, error) {
	entry, err := r.userEntry(ctx, conn, principal)
	if err != nil {
		return nil, err
	}

	graph := newRoleGraph()
	var literal []string
	for _, attr := range r.roleAttrs {
		for _, v := range entry.Values(attr) {
			if IsValidDN(v) {
				graph.add(v, 0, r.allBases...)
			} else {
				literal = append(literal, v)
			}
		}
	}

	if r.settings.RoleSearchEnabled {
		params := map[int]string{0: entry.DN, 1: original}
		if r.settings.UserRoleAttribute != "" {
			if v := entry.First(r.settings.UserRoleAttribute); v != "" {
				params[2] = v
			}
		}
		for i, b := range r.roleBases {
			found, err := conn.Search(ctx, b.Base, ScopeSub, FormatFilter(b.Search, params))
			if err != nil {
				return nil, err
			}
			for _, e := range found {
				graph.add(e.DN, 0, i)
			}
		}
	}

	if r.settings.ResolveNestedRoles {
		if err := r.expand(ctx, conn, graph); err != nil {
			return nil, err
		}
	}

	roles := make([]string, 0, len(graph.order)+len(literal))
	for _, key := range graph.order {
		name, err := r.roleName(ctx, conn, graph.nodes[key].dn)
		if err != nil {
			return nil, err
		}
		if name == "" {
			logging.Ctx(ctx).Warn().Str("attribute", r.settings.RoleName).Str("role", graph.nodes[key].dn).Msg("no or empty role name attribute")
			continue
		}
		roles = append(roles, name)
	}
	return append(roles, literal...), nil
}

// expand follows membership from every known role. Each node is expanded
// once; a node at depth d is expanded only while d < MaxNestedDepth.
// Nested searches use only the bases that discovered the node.
func (r *RoleResolver) expand(ctx context.Context, conn Conn, graph *roleGraph) error {
	queue := make([]*roleNode, 0, len(graph.order))
	for _, key := range graph.order {
		queue = append(queue, graph.nodes[key])
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if n.depth >= r.settings.MaxNestedDepth {
			continue
		}
		if !r.nestedFilter.IsEmpty() && r.nestedFilter.Matches(n.dn) {
			continue
		}

		e, err := conn.Lookup(ctx, n.dn)
		if err != nil {
			return err
		}
		if e != nil {
			for _, attr := range r.roleAttrs {
				for _, v := range e.Values(attr) {
					if !IsValidDN(v) {
						continue
					}
					if child, isNew := graph.add(v, n.depth+1, r.allBases...); isNew {
						queue = append(queue, child)
					}
				}
			}
		}

		if !r.settings.RoleSearchEnabled {
			continue
		}
		for _, i := range sortedBases(n.bases) {
			b := r.roleBases[i]
			found, err := conn.Search(ctx, b.Base, ScopeSub, FormatFilter(b.Search, map[int]string{0: n.dn, 1: n.dn}))
			if err != nil {
				return err
			}
			for _, f := range found {
				if child, isNew := graph.add(f.DN, n.depth+1, i); isNew {
					queue = append(queue, child)
				}
			}
		}
	}
	return nil
}

func sortedBases(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func (r *RoleResolver) userEntry(ctx context.Context, conn Conn, principal string) (*Entry, error) {
	if IsValidDN(principal) {
		e, err := conn.Lookup(ctx, principal)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, principal)
		}
		return e, nil
	}
	return findUser(ctx, conn, r.userBases, principal, false)
}

func (r *RoleResolver) roleName(ctx context.Context, conn Conn, dn string) (string, error) {
	if strings.EqualFold(r.settings.RoleName, "dn") {
		return dn, nil
	}
	e, err := conn.Lookup(ctx, dn)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", nil
	}
	return e.First(r.settings.RoleName), nil
}
