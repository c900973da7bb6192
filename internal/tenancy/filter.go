// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package tenancy

import (
	"context"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/filter"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/metrics"
	"github.com/tomtom215/palisade/internal/user"
)

// Filter isolates frontend saved objects per tenant. It runs as a sync
// filter of the authorization filter, after privileges were granted.
type Filter struct {
	settings   Settings
	matcher    indexMatcher
	authorizer TenantAuthorizer
	handlers   map[action.Kind]Handler
}

// NewFilter creates the multi-tenancy filter. Rewritten sub-requests are
// sent through client.
func NewFilter(settings Settings, authorizer TenantAuthorizer, client action.Client) *Filter {
	return &Filter{
		settings:   settings,
		matcher:    newIndexMatcher(settings.FrontendIndex),
		authorizer: authorizer,
		handlers:   NewHandlerTable(client, settings),
	}
}

var _ filter.SyncFilter = (*Filter)(nil)

// ApplySync implements filter.SyncFilter.
func (f *Filter) ApplySync(ctx context.Context, ev *filter.EvaluationContext, l action.Listener) filter.SyncResult {
	if !f.settings.Enabled {
		return filter.SyncOK
	}

	log := logging.Ctx(ctx).With().Str("component", "tenancy").Str("action", ev.Action).Logger()

	if ev.Exec != nil && ev.Exec.TenancyApplied() {
		log.Debug().Msg("tenant scoping already applied")
		return filter.SyncPassOnFastLane
	}

	u := ev.User
	if u == nil || ev.Request == nil || !f.touchesFrontendIndex(ev) {
		return filter.SyncOK
	}

	requested := u.RequestedTenant()
	if IsGlobal(requested) {
		return filter.SyncOK
	}

	access, err := f.access(u, ev.MappedRoles, requested)
	if err != nil {
		log.Error().Err(err).Str("tenant", requested).Msg("failed to evaluate tenant privileges")
		return filter.SyncDenied
	}
	if access.Prohibited() || !access.Read {
		log.Warn().Str("tenant", requested).Str("user", logging.SanitizeUsername(u.Name())).Msg("tenant not allowed")
		return filter.SyncDenied
	}
	if !access.Write && !IsReadOnlyAction(ev.Action) && !isLegacyAliasUpdate(ev.Request, f.settings.FrontendIndex) {
		log.Warn().Str("tenant", requested).Str("user", logging.SanitizeUsername(u.Name())).Msg("tenant not allowed to write")
		return filter.SyncDenied
	}

	h, ok := f.handlers[ev.Request.Kind()]
	if !ok {
		log.Trace().Str("kind", ev.Request.Kind().String()).Msg("no tenant handling for request kind")
		return filter.SyncOK
	}
	metrics.RecordTenancyRewrite(ev.Request.Kind().String())
	return h.Handle(ctx, ev, InternalName(requested, u.Name()), l)
}

// touchesFrontendIndex reports whether any requested index is a frontend
// index. Mixed requests are scoped as a whole.
func (f *Filter) touchesFrontendIndex(ev *filter.EvaluationContext) bool {
	indices := ev.Request.Indices()
	matched := 0
	for _, idx := range indices {
		if f.matcher.matches(idx) {
			matched++
		}
	}
	if matched > 0 && matched != len(indices) {
		logging.Warn().Str("action", ev.Action).Strs("indices", indices).
			Msg("request mixes multi-tenancy indices with other indices")
	}
	return matched > 0
}

func (f *Filter) access(u *user.User, mappedRoles []string, tenant string) (Access, error) {
	if u.Name() == f.settings.ServerUsername {
		return FullAccess, nil
	}
	if tenant == PrivateTenant {
		if f.settings.PrivateTenantEnabled {
			return FullAccess, nil
		}
		return Inaccessible, nil
	}
	if f.authorizer == nil || !f.authorizer.TenantExists(tenant) {
		return Inaccessible, nil
	}

	read, err := f.authorizer.HasTenantPermission(u, mappedRoles, PermissionRead, tenant)
	if err != nil {
		return Inaccessible, err
	}
	write, err := f.authorizer.HasTenantPermission(u, mappedRoles, PermissionWrite, tenant)
	if err != nil {
		return Inaccessible, err
	}
	return Access{Read: read || write, Write: write}, nil
}

// Tenants reports the tenants u may use among configured, mapped to
// whether u may write to them. The private tenant is listed under the
// user's name when enabled.
func (f *Filter) Tenants(u *user.User, mappedRoles, configured []string) (map[string]bool, error) {
	out := make(map[string]bool, len(configured)+1)
	if f.settings.PrivateTenantEnabled {
		out[u.Name()] = true
	}
	for _, tenant := range configured {
		access, err := f.access(u, mappedRoles, tenant)
		if err != nil {
			return nil, err
		}
		if access.Read {
			out[tenant] = access.Write
		}
	}
	return out, nil
}
