// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/audit"
	"github.com/tomtom215/palisade/internal/authc"
	"github.com/tomtom215/palisade/internal/config"
	"github.com/tomtom215/palisade/internal/filter"
	"github.com/tomtom215/palisade/internal/ldap"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/privileges"
	"github.com/tomtom215/palisade/internal/supervisor/services"
	"github.com/tomtom215/palisade/internal/tenancy"
	"github.com/tomtom215/palisade/internal/transport"
	"github.com/tomtom215/palisade/internal/user"
)

// generation is the request path built from one configuration generation.
type generation struct {
	number  uint64
	admins  *privileges.AdminDNs
	client  action.Client
	tenancy *tenancy.Filter
	tenants []string
	// frontend matches tenant-managed indices.
	frontend func(string) bool
}

// gateway routes requests through the active generation. Swapping a
// generation never affects requests already dispatched to the previous one.
type gateway struct {
	evaluator *privileges.Evaluator
	handler   *transport.Handler
	auditor   audit.Auditor
	executor  action.Executor

	current atomic.Pointer[generation]
}

func newGateway(executor action.Executor, auditor audit.Auditor) *gateway {
	g := &gateway{executor: executor, auditor: auditor}
	g.evaluator = privileges.NewEvaluator(privileges.WithTenancy(tenancy.IsGlobal, g.managesIndex))
	return g
}

func (g *gateway) managesIndex(index string) bool {
	if gen := g.current.Load(); gen != nil && gen.frontend != nil {
		return gen.frontend(index)
	}
	return false
}

// IsAdmin implements transport.AdminChecker against the active generation.
func (g *gateway) IsAdmin(principal string) bool {
	if gen := g.current.Load(); gen != nil {
		return gen.admins.IsAdmin(principal)
	}
	return false
}

// Execute implements action.Client.
func (g *gateway) Execute(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, l action.Listener) {
	gen := g.current.Load()
	if gen == nil {
		l.OnFailure(action.Unavailable("security not initialized"))
		return
	}
	gen.client.Execute(ctx, ec, actionName, req, l)
}

// Tenants implements api.TenantLister.
func (g *gateway) Tenants(u *user.User, mappedRoles []string) (map[string]bool, error) {
	gen := g.current.Load()
	if gen == nil {
		return nil, action.Unavailable("security not initialized")
	}
	return gen.tenancy.Tenants(u, mappedRoles, gen.tenants)
}

// Generation returns the active generation number, 0 before the first apply.
func (g *gateway) Generation() uint64 {
	if gen := g.current.Load(); gen != nil {
		return gen.number
	}
	return 0
}

// apply builds and installs cfg. It returns the generation scoped resources
// the supervisor should run; on error nothing was installed and the
// resources already created are released.
func (g *gateway) apply(ctx context.Context, cfg *config.Config) (map[string]suture.Service, error) {
	resources := make(map[string]suture.Service)
	var closers []func()
	fail := func(err error) (map[string]suture.Service, error) {
		for _, c := range closers {
			c()
		}
		return nil, fmt.Errorf("generation %d: %w", cfg.Generation, err)
	}

	admins, err := privileges.NewAdminDNs(cfg.Auth.AdminDNs)
	if err != nil {
		return fail(err)
	}
	immutable, err := filter.NewImmutableIndices(cfg.Filter.ImmutableIndices)
	if err != nil {
		return fail(err)
	}
	impersonation, err := authc.NewImpersonationRules(cfg.Auth.TransportImpersonation)
	if err != nil {
		return fail(err)
	}
	accepted, err := transport.ParseNetworks(cfg.Auth.AcceptedNetworks)
	if err != nil {
		return fail(err)
	}

	internal, err := authc.NewInternalUsers(cfg.Auth.InternalUsers)
	if err != nil {
		return fail(err)
	}
	backends := map[string]authc.AuthenticationBackend{authc.InternalBackendType: internal}
	authorizers := map[string]authc.AuthorizationBackend{}

	if cfg.LDAP.Enabled {
		dir, err := ldap.NewConnectionManager(ctx, fmt.Sprintf("gen%d", cfg.Generation), cfg.LDAP.Connection)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, dir.Close)
		authn, err := ldap.NewAuthenticator(dir, cfg.LDAP.Authc)
		if err != nil {
			return fail(err)
		}
		roles, err := ldap.NewRoleResolver(dir, cfg.LDAP.Authz)
		if err != nil {
			return fail(err)
		}
		backends[ldap.BackendType] = authn
		authorizers[ldap.BackendType] = roles
		resources["ldap-pool"] = services.NewCloserService("ldap-pool", dir.Close)
	}

	domains, err := authc.NewDomains(cfg.Auth.Domains, backends, authorizers)
	if err != nil {
		return fail(err)
	}
	if domains.Len() == 0 {
		return fail(errors.New("no enabled authentication domain"))
	}

	// Tenant sub-requests re-enter this generation's pipeline so they are
	// authorized again. The pipeline is assigned before any request runs.
	var pipeline *action.Pipeline
	local := action.ClientFunc(func(ctx context.Context, ec *action.ExecContext, name string, req action.Request, l action.Listener) {
		pipeline.Execute(ctx, ec, name, req, l)
	})
	tf := tenancy.NewFilter(cfg.Tenancy, g.evaluator, local)
	authz, err := filter.NewAuthorizationFilter(filter.Options{
		Evaluator:     g.evaluator,
		Admins:        admins,
		Auditor:       g.auditor,
		Immutable:     immutable,
		PostFilters:   []filter.SyncFilter{tf},
		RoleCacheSize: cfg.Filter.RoleCacheSize,
		RoleCacheTTL:  cfg.Filter.RoleCacheTTL,
	})
	if err != nil {
		return fail(err)
	}
	pipeline = action.NewPipeline(g.executor, authz)

	// Everything that can fail has been built. Privileges are loaded last
	// because Load publishes immediately.
	if err := g.evaluator.Load(cfg.Privileges); err != nil {
		return fail(err)
	}

	gen := &generation{
		number:  cfg.Generation,
		admins:  admins,
		client:  g.handler.Client(pipeline),
		tenancy: tf,
		tenants: cfg.Privileges.Tenants,
	}
	// frontend indices are only delegated to tenancy when it is enabled
	if cfg.Tenancy.Enabled {
		gen.frontend = tenancy.IndexMatcher(cfg.Tenancy.FrontendIndex)
	}
	g.current.Store(gen)
	g.handler.Configure(transport.Settings{
		Generation:    cfg.Generation,
		Domains:       domains,
		Impersonation: impersonation,
		Accepted:      accepted,
		UserCache:     cfg.Auth.UserCache,
	})

	logging.Info().
		Uint64("generation", cfg.Generation).
		Int("domains", domains.Len()).
		Int("roles", len(cfg.Privileges.Roles)).
		Bool("ldap", cfg.LDAP.Enabled).
		Bool("multitenancy", cfg.Tenancy.Enabled).
		Msg("Security configuration installed")
	return resources, nil
}
