// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package filter

import (
	"context"
	"errors"
	"math"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/audit"
	"github.com/tomtom215/palisade/internal/cache"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/metrics"
	"github.com/tomtom215/palisade/internal/privileges"
	"github.com/tomtom215/palisade/internal/user"
)

// Evaluator is the privilege evaluation the filter depends on.
type Evaluator interface {
	IsInitialized() bool
	Generation() uint64
	MappedRoles(u *user.User, remote netip.Addr) []string
	Evaluate(ctx context.Context, u *user.User, mappedRoles []string, actionName string, req action.Request) (privileges.Result, error)
}

// AdminChecker recognises admin certificate subjects.
type AdminChecker interface {
	IsAdmin(principal string) bool
}

// SpecialPrivileges replaces the regular identity of a request, e.g. for
// requests running on behalf of an auth token.
type SpecialPrivileges struct {
	User        *user.User
	MappedRoles []string
	// EvaluateLocal requires privilege evaluation even for local
	// inter-node requests.
	EvaluateLocal bool
}

// SpecialPrivilegesProvider resolves special privileges for a request and
// reports them through done, possibly asynchronously. A nil result means
// the regular identity applies.
type SpecialPrivilegesProvider interface {
	Provide(ctx context.Context, ec *action.ExecContext, done func(*SpecialPrivileges, error))
}

// DlsFlsValve applies document and field level security to granted requests.
// It returns false when it completed l itself.
type DlsFlsValve interface {
	Invoke(ctx context.Context, ev *EvaluationContext, l action.Listener) bool
}

// ExtendedActionHandler takes over granted actions that need multi-step
// processing.
type ExtendedActionHandler interface {
	Handles(actionName string, req action.Request) bool
	Handle(ctx context.Context, ev *EvaluationContext, l action.Listener, chain action.Chain)
}

// isPassthrough reports actions that bypass privilege evaluation entirely.
func isPassthrough(name string) bool {
	switch name {
	case action.NameLicenseInfo, action.NameWhoAmI, "cluster:admin/searchguard/license/info":
		return true
	}
	return strings.HasPrefix(name, "indices:admin/seq_no")
}

// Decision labels recorded in palisade_authz_decisions_total.
const (
	decisionAdmin       = "admin"
	decisionBypass      = "bypass"
	decisionGranted     = "granted"
	decisionDenied      = "denied"
	decisionImmutable   = "immutable"
	decisionError       = "error"
	decisionUnavailable = "unavailable"
	decisionIntercepted = "intercepted"
)

// Options configures an AuthorizationFilter. Evaluator is required.
type Options struct {
	Evaluator Evaluator
	Admins    AdminChecker
	Auditor   audit.Auditor
	Immutable *ImmutableIndices

	// PreFilters run before privilege evaluation, PostFilters after a grant.
	PreFilters  []SyncFilter
	PostFilters []SyncFilter

	Special  SpecialPrivilegesProvider
	Valve    DlsFlsValve
	Extended []ExtendedActionHandler

	// RoleCacheSize bounds the mapped-roles cache; 0 disables it.
	RoleCacheSize int
	RoleCacheTTL  time.Duration
}

type rolesCache struct {
	generation uint64
	cache      *cache.Loading[string, []string]
}

// AuthorizationFilter is the central gate every action passes first.
type AuthorizationFilter struct {
	opts Options

	rolesMu sync.Mutex
	roles   *rolesCache
}

var _ action.Filter = (*AuthorizationFilter)(nil)

// ErrNoEvaluator is returned by NewAuthorizationFilter without an evaluator.
var ErrNoEvaluator = errors.New("authorization filter requires an evaluator")

// NewAuthorizationFilter creates the filter.
func NewAuthorizationFilter(opts Options) (*AuthorizationFilter, error) {
	if opts.Evaluator == nil {
		return nil, ErrNoEvaluator
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.Nop{}
	}
	if opts.RoleCacheTTL <= 0 {
		opts.RoleCacheTTL = time.Hour
	}
	return &AuthorizationFilter{opts: opts}, nil
}

// Order runs the filter before every other filter.
func (f *AuthorizationFilter) Order() int { return math.MinInt32 }

// Apply implements action.Filter. No panic or error escapes; every failure
// completes l.
func (f *AuthorizationFilter) Apply(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, l action.Listener, chain action.Chain) {
	l = action.Once(l)
	defer f.recoverTo(ctx, actionName, l)

	if f.opts.Special == nil {
		f.apply(ctx, ec, actionName, req, l, chain, nil)
		return
	}
	f.opts.Special.Provide(ctx, ec, func(sp *SpecialPrivileges, err error) {
		defer f.recoverTo(ctx, actionName, l)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("action", actionName).Msg("Special privileges provider failed")
			l.OnFailure(action.Internal(err, "Unexpected exception %s", actionName))
			return
		}
		f.apply(ctx, ec, actionName, req, l, chain, sp)
	})
}

func (f *AuthorizationFilter) recoverTo(ctx context.Context, actionName string, l action.Listener) {
	if r := recover(); r != nil {
		err := action.Recovered(r)
		logging.Ctx(ctx).Error().Err(err).Str("action", actionName).Msg("Panic in authorization filter")
		metrics.RecordAuthzDecision(decisionError, 0)
		l.OnFailure(action.Internal(err, "Unexpected exception %s", actionName))
	}
}

func (f *AuthorizationFilter) apply(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, l action.Listener, chain action.Chain, sp *SpecialPrivileges) {
	start := time.Now()
	log := logging.Ctx(ctx)
	decide := func(decision string) { metrics.RecordAuthzDecision(decision, time.Since(start)) }

	if ec.Origin == "" {
		ec = ec.WithOrigin(action.OriginLocal)
	}
	u := ec.User
	if sp != nil && sp.User != nil {
		u = sp.User
		if ec.User == nil {
			ec = ec.WithUser(u)
		}
	}

	isAdmin := f.opts.Admins != nil && f.opts.Admins.IsAdmin(ec.SSLPrincipal)
	confRequest := ec.IsConfRequest()
	internalRequest := ec.IsInterNode() && strings.HasPrefix(actionName, "internal:") &&
		!strings.HasPrefix(actionName, action.NameTransportProxy)
	passthrough := isPassthrough(actionName)

	if isAdmin || confRequest || internalRequest || passthrough {
		if isAdmin && !confRequest && !internalRequest && !passthrough {
			f.opts.Auditor.LogGrantedPrivileges(ctx, ec, actionName, req, nil)
			decide(decisionAdmin)
		} else {
			decide(decisionBypass)
		}
		chain.Proceed(ctx, ec, actionName, req, l)
		return
	}

	switch outcome, rewritten := f.opts.Immutable.check(req); outcome {
	case immutableReject:
		f.opts.Auditor.LogImmutableIndexAttempt(ctx, ec, actionName, req)
		decide(decisionImmutable)
		l.OnFailure(action.Forbidden(ReasonIndexImmutable))
		return
	case immutableCreateOnly:
		original := req
		req = rewritten
		l = f.opts.Immutable.createOnlyListener(l, func() {
			f.opts.Auditor.LogImmutableIndexAttempt(ctx, ec, actionName, original)
		})
	}

	if ec.Origin == action.OriginLocal && ec.IsInterNode() && (sp == nil || !sp.EvaluateLocal) {
		decide(decisionBypass)
		chain.Proceed(ctx, ec, actionName, req, l)
		return
	}

	if u == nil {
		if strings.HasPrefix(actionName, action.NameClusterState) {
			decide(decisionBypass)
			chain.Proceed(ctx, ec, actionName, req, l)
			return
		}
		log.Error().
			Str("action", actionName).
			Str("origin", string(ec.Origin)).
			Str("channel", string(ec.Channel)).
			Msg("No user found for action")
		decide(decisionError)
		l.OnFailure(action.Internal(nil, "No user found for %s", actionName))
		return
	}

	eval := f.opts.Evaluator
	if !eval.IsInitialized() {
		log.Error().Str("action", actionName).Msg("Security not initialized")
		decide(decisionUnavailable)
		l.OnFailure(action.Unavailable("Security not initialized for %s", actionName))
		return
	}

	var mappedRoles []string
	if sp != nil && sp.MappedRoles != nil {
		mappedRoles = sp.MappedRoles
	} else {
		mappedRoles = f.mappedRoles(ctx, u, ec.RemoteAddr)
	}

	ev := &EvaluationContext{Exec: ec, User: u, MappedRoles: mappedRoles, Action: actionName, Request: req}

	switch f.runSyncFilters(ctx, f.opts.PreFilters, ev, l) {
	case SyncDenied:
		decide(decisionDenied)
		return
	case SyncIntercepted:
		decide(decisionIntercepted)
		return
	case SyncPassOnFastLane:
		decide(decisionBypass)
		chain.Proceed(ctx, ec, actionName, req, l)
		return
	}

	res, err := eval.Evaluate(ctx, u, mappedRoles, actionName, req)
	if err != nil {
		decide(decisionUnavailable)
		l.OnFailure(action.Unavailable("Security not initialized for %s", actionName))
		return
	}

	if !res.OK() {
		f.opts.Auditor.LogMissingPrivileges(ctx, ec, actionName, req, res.String())
		decide(decisionDenied)
		l.OnFailure(action.Forbidden("no permissions for [%s] and %s", strings.Join(res.Missing, ", "), u))
		return
	}

	f.opts.Auditor.LogGrantedPrivileges(ctx, ec, actionName, req, mappedRoles)

	switch f.runSyncFilters(ctx, f.opts.PostFilters, ev, l) {
	case SyncDenied:
		decide(decisionDenied)
		return
	case SyncIntercepted:
		decide(decisionIntercepted)
		return
	}
	decide(decisionGranted)

	if f.opts.Valve != nil && !f.opts.Valve.Invoke(ctx, ev, l) {
		return
	}

	if len(res.AdditionalFilters) > 0 {
		chain = extendedChain{filters: res.AdditionalFilters, next: chain}
	}

	for _, h := range f.opts.Extended {
		if h.Handles(actionName, req) {
			h.Handle(ctx, ev, l, chain)
			return
		}
	}
	chain.Proceed(ctx, ev.Exec, actionName, req, l)
}

// runSyncFilters applies filters in order. A DENIED result fails l before
// returning; a PASS_ON_FAST_LANE result stops evaluation of the rest.
func (f *AuthorizationFilter) runSyncFilters(ctx context.Context, filters []SyncFilter, ev *EvaluationContext, l action.Listener) SyncResult {
	for _, sf := range filters {
		switch r := sf.ApplySync(ctx, ev, l); r {
		case SyncOK:
			continue
		case SyncDenied:
			l.OnFailure(action.Forbidden("Insufficient permissions for %s", ev.Action))
			return r
		default:
			return r
		}
	}
	return SyncOK
}

// mappedRoles resolves and caches mapped roles for the active generation.
func (f *AuthorizationFilter) mappedRoles(ctx context.Context, u *user.User, remote netip.Addr) []string {
	eval := f.opts.Evaluator
	if f.opts.RoleCacheSize <= 0 {
		return eval.MappedRoles(u, remote)
	}

	gen := eval.Generation()
	f.rolesMu.Lock()
	rc := f.roles
	if rc == nil || rc.generation != gen {
		rc = &rolesCache{generation: gen, cache: cache.NewLoading[string, []string]("mapped_roles", f.opts.RoleCacheSize, f.opts.RoleCacheTTL)}
		f.roles = rc
	}
	f.rolesMu.Unlock()

	key := u.Name() + "\x00" + strings.Join(u.BackendRoles(), "\x00") + "\x00" + remote.String()
	roles, err := rc.cache.Get(ctx, key, func(context.Context) ([]string, error) {
		return eval.MappedRoles(u, remote), nil
	})
	if err != nil {
		return eval.MappedRoles(u, remote)
	}
	return roles
}

// extendedChain runs additional filters before continuing with next.
type extendedChain struct {
	filters []action.Filter
	next    action.Chain
}

func (c extendedChain) Proceed(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, l action.Listener) {
	if len(c.filters) == 0 {
		c.next.Proceed(ctx, ec, actionName, req, l)
		return
	}
	c.filters[0].Apply(ctx, ec, actionName, req, l, extendedChain{filters: c.filters[1:], next: c.next})
}
