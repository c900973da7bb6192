// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package privileges evaluates whether mapped roles allow an action.
//
// Every configured role is compiled into casbin policies of the form
// (role, resource, action) where resource is "cluster", "index:<pattern>"
// or "tenant:<pattern>", and action is an action name pattern after action
// group expansion. A custom matcher applies the pattern rules of
// internal/pattern, including ${user.name} substitution in index patterns.
//
// Configuration is swapped atomically: Load builds a complete new state and
// publishes it with a new generation number. Evaluations running during a
// reload see either the old or the new state, never a mix.
package privileges

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/pattern"
	"github.com/tomtom215/palisade/internal/user"
)

//go:embed model.conf
var embeddedModel string

// ErrNotInitialized is returned before the first configuration is loaded.
var ErrNotInitialized = errors.New("privileges evaluator is not initialized")

const (
	resourceCluster = "cluster"
	prefixIndex     = "index:"
	prefixTenant    = "tenant:"

	userNameVar = "${user.name}"

	// patternCacheSize bounds compiled patterns, including per-user
	// substitutions of ${user.name}.
	patternCacheSize = 4096
)

type state struct {
	generation          uint64
	enforcer            *casbin.SyncedEnforcer
	mapper              *RoleMapper
	adminOnly           pattern.Set
	adminOnlyExceptions pattern.Set
	tenants             map[string]struct{}
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTenancy tells the evaluator which tenant selections are global and
// which indices are tenant-managed. Index privileges on tenant-managed
// indices are not evaluated when a non-global tenant is selected; the
// multi-tenancy filter enforces tenant permissions for those requests.
func WithTenancy(isGlobal func(tenant string) bool, managesIndex func(index string) bool) Option {
	return func(e *Evaluator) {
		e.isGlobalTenant = isGlobal
		e.managesIndex = managesIndex
	}
}

// Evaluator evaluates privileges against the current configuration.
type Evaluator struct {
	current    atomic.Pointer[state]
	generation atomic.Uint64
	loadMu     sync.Mutex

	patterns *lru.Cache[string, pattern.Pattern]

	isGlobalTenant func(string) bool
	managesIndex   func(string) bool
}

// NewEvaluator creates an evaluator. It is not initialized until Load succeeds.
func NewEvaluator(opts ...Option) *Evaluator {
	patterns, _ := lru.New[string, pattern.Pattern](patternCacheSize)
	e := &Evaluator{
		patterns:       patterns,
		isGlobalTenant: func(t string) bool { return t == "" },
		managesIndex:   func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsInitialized reports whether a configuration has been loaded.
func (e *Evaluator) IsInitialized() bool {
	return e.current.Load() != nil
}

// Generation returns the generation of the active configuration, 0 before
// the first Load.
func (e *Evaluator) Generation() uint64 {
	if s := e.current.Load(); s != nil {
		return s.generation
	}
	return 0
}

// Load compiles cfg and makes it the active configuration. On error the
// previous configuration stays active.
func (e *Evaluator) Load(cfg Config) error {
	if err := cfg.check(); err != nil {
		return err
	}

	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	enforcer.AddFunction("resourceMatch", e.resourceMatchFunc)
	enforcer.AddFunction("actionMatch", e.actionMatchFunc)

	rules, err := compileRules(cfg)
	if err != nil {
		return err
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return fmt.Errorf("failed to add policies: %w", err)
		}
	}

	mapper, err := NewRoleMapper(cfg.RoleMappings, cfg.Resolution)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	adminOnly, err1 := pattern.CompileSet(cfg.AdminOnlyActions)
	exceptions, err2 := pattern.CompileSet(cfg.AdminOnlyExceptions)
	if err := errors.Join(err1, err2); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	tenants := make(map[string]struct{}, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		tenants[t] = struct{}{}
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	s := &state{
		generation:          e.generation.Add(1),
		enforcer:            enforcer,
		mapper:              mapper,
		adminOnly:           adminOnly,
		adminOnlyExceptions: exceptions,
		tenants:             tenants,
	}
	e.current.Store(s)

	logging.Info().
		Uint64("generation", s.generation).
		Int("roles", len(cfg.Roles)).
		Int("policies", len(rules)).
		Msg("Privileges configuration loaded")
	return nil
}

// compileRules turns roles into deduplicated, sorted casbin policy rules.
func compileRules(cfg Config) ([][]string, error) {
	groups := NewActionGroups(cfg.ActionGroups)
	seen := map[[3]string]struct{}{}
	var errs []error

	add := func(role, resource string, actions []string) {
		for _, a := range groups.Resolve(actions) {
			if _, err := pattern.Compile(a); err != nil {
				errs = append(errs, fmt.Errorf("role %s: %w", role, err))
				continue
			}
			seen[[3]string{role, resource, a}] = struct{}{}
		}
	}
	for name, role := range cfg.Roles {
		if len(role.ClusterPermissions) > 0 {
			add(name, resourceCluster, role.ClusterPermissions)
		}
		for _, ip := range role.IndexPermissions {
			for _, p := range ip.IndexPatterns {
				add(name, prefixIndex+p, ip.AllowedActions)
			}
		}
		for _, tp := range role.TenantPermissions {
			for _, p := range tp.TenantPatterns {
				add(name, prefixTenant+p, tp.AllowedActions)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	rules := make([][]string, 0, len(seen))
	for k := range seen {
		rules = append(rules, []string{k[0], k[1], k[2]})
	}
	slices.SortFunc(rules, func(a, b []string) int {
		return strings.Compare(strings.Join(a, "\x00"), strings.Join(b, "\x00"))
	})
	return rules, nil
}

// compiled returns the compiled form of src, caching it. Invalid patterns
// never match.
func (e *Evaluator) compiled(src string) (pattern.Pattern, bool) {
	if p, ok := e.patterns.Get(src); ok {
		return p, true
	}
	p, err := pattern.Compile(src)
	if err != nil {
		return pattern.Pattern{}, false
	}
	e.patterns.Add(src, p)
	return p, true
}

// resourceMatchFunc implements resourceMatch(requested, policy, username).
func (e *Evaluator) resourceMatchFunc(args ...any) (any, error) {
	if len(args) != 3 {
		return false, fmt.Errorf("resourceMatch: expected 3 arguments, got %d", len(args))
	}
	req, _ := args[0].(string)
	pol, _ := args[1].(string)
	username, _ := args[2].(string)

	if req == resourceCluster || pol == resourceCluster {
		return req == pol, nil
	}
	reqPrefix, reqName, ok1 := strings.Cut(req, ":")
	polPrefix, polPattern, ok2 := strings.Cut(pol, ":")
	if !ok1 || !ok2 || reqPrefix != polPrefix {
		return false, nil
	}
	if strings.Contains(polPattern, userNameVar) {
		polPattern = strings.ReplaceAll(polPattern, userNameVar, username)
	}
	p, ok := e.compiled(polPattern)
	return ok && p.Matches(reqName), nil
}

// actionMatchFunc implements actionMatch(requested, policy).
func (e *Evaluator) actionMatchFunc(args ...any) (any, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("actionMatch: expected 2 arguments, got %d", len(args))
	}
	req, _ := args[0].(string)
	pol, _ := args[1].(string)
	p, ok := e.compiled(pol)
	return ok && p.Matches(req), nil
}

// MappedRoles returns the mapped roles of u calling from remote.
func (e *Evaluator) MappedRoles(u *user.User, remote netip.Addr) []string {
	s := e.current.Load()
	if s == nil {
		return nil
	}
	return s.mapper.Map(u, remote)
}

// IsAdminOnlyAction reports whether name is reserved for admin certificates.
func (e *Evaluator) IsAdminOnlyAction(name string) bool {
	s := e.current.Load()
	return s != nil && s.isAdminOnly(name)
}

func (s *state) isAdminOnly(name string) bool {
	return s.adminOnly.Matches(name) && !s.adminOnlyExceptions.Matches(name)
}

// Evaluate decides whether mappedRoles allow actionName with req for u.
// Evaluation failures are reported in the result, not as an error; the
// error return is only ErrNotInitialized.
func (e *Evaluator) Evaluate(ctx context.Context, u *user.User, mappedRoles []string, actionName string, req action.Request) (Result, error) {
	s := e.current.Load()
	if s == nil {
		return insufficient("not initialized"), ErrNotInitialized
	}
	log := logging.Ctx(ctx)

	if s.isAdminOnly(actionName) {
		log.Info().Str("action", actionName).Msg("Action is reserved for users authenticating with an admin certificate")
		return insufficient("Action is reserved for users authenticating with an admin certificate", actionName), nil
	}

	username := ""
	tenant := ""
	if u != nil {
		username = u.Name()
		tenant = u.RequestedTenant()
	}
	ev := evaluation{e: e, s: s, roles: mappedRoles, username: username}

	var res Result
	switch {
	case req != nil && req.Kind() == action.KindBulk:
		res = ev.bulk(actionName, req.(*action.BulkRequest), e.isGlobalTenant(tenant))
	case strings.HasPrefix(actionName, "cluster:"):
		res = ev.cluster(actionName)
	case strings.HasPrefix(actionName, "kibana:"):
		res = ev.tenant(actionName, tenant)
	default:
		var indices []string
		if req != nil {
			indices = req.Indices()
		}
		if !e.isGlobalTenant(tenant) && len(indices) > 0 && e.allManaged(indices) {
			return Result{Status: StatusOK, Reason: "tenant index access is checked by multi-tenancy"}, nil
		}
		res = ev.indices(actionName, indices)
	}

	if !res.OK() {
		log.Info().
			Str("user", logging.SanitizeUsername(username)).
			Str("action", actionName).
			Strs("roles", mappedRoles).
			Str("result", res.String()).
			Msg("No permission match")
	}
	return res, nil
}

func (e *Evaluator) allManaged(indices []string) bool {
	for _, idx := range indices {
		if !e.managesIndex(idx) {
			return false
		}
	}
	return true
}

// TenantExists implements tenancy.TenantAuthorizer.
func (e *Evaluator) TenantExists(tenant string) bool {
	s := e.current.Load()
	if s == nil {
		return false
	}
	_, ok := s.tenants[tenant]
	return ok
}

// HasTenantPermission implements tenancy.TenantAuthorizer.
func (e *Evaluator) HasTenantPermission(u *user.User, mappedRoles []string, permission, tenant string) (bool, error) {
	s := e.current.Load()
	if s == nil {
		return false, ErrNotInitialized
	}
	username := ""
	if u != nil {
		username = u.Name()
	}
	ev := evaluation{e: e, s: s, roles: mappedRoles, username: username}
	return ev.allowed(prefixTenant+tenant, permission)
}

// evaluation is one Evaluate call against a fixed state.
type evaluation struct {
	e        *Evaluator
	s        *state
	roles    []string
	username string
}

func (ev evaluation) allowed(resource, act string) (bool, error) {
	for _, role := range ev.roles {
		ok, err := ev.s.enforcer.Enforce(role, resource, act, ev.username)
		if err != nil {
			return false, fmt.Errorf("enforcement failed: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func withError(err error) Result {
	return Result{Status: StatusInsufficient, Reason: "error during evaluation", Errors: []error{err}}
}

func (ev evaluation) cluster(act string) Result {
	ok, err := ev.allowed(resourceCluster, act)
	switch {
	case err != nil:
		return withError(err)
	case !ok:
		return insufficient("no cluster permission", act)
	}
	return Result{Status: StatusOK}
}

func (ev evaluation) tenant(act, tenant string) Result {
	ok, err := ev.allowed(prefixTenant+tenant, act)
	switch {
	case err != nil:
		return withError(err)
	case !ok:
		return insufficient("no tenant permission", act+" on "+tenant)
	}
	return Result{Status: StatusOK}
}

// indices requires act on every index. An empty target list means all indices.
func (ev evaluation) indices(act string, indices []string) Result {
	if len(indices) == 0 {
		indices = []string{"*"}
	}
	var available, missing []string
	for _, idx := range indices {
		ok, err := ev.allowed(prefixIndex+idx, act)
		if err != nil {
			return withError(err)
		}
		if ok {
			available = append(available, idx)
		} else {
			missing = append(missing, act+" on "+idx)
		}
	}
	switch {
	case len(missing) == 0:
		return Result{Status: StatusOK}
	case len(available) > 0:
		return Result{Status: StatusPartiallyOK, Reason: "some indices are not allowed", Missing: missing, AvailableIndices: available}
	}
	return insufficient("no index permission", missing...)
}

// bulk checks the cluster-level bulk privilege and then each item's own
// action on its index. Items on tenant-managed indices are left to
// multi-tenancy when a non-global tenant is selected.
func (ev evaluation) bulk(act string, req *action.BulkRequest, global bool) Result {
	if global {
		if res := ev.cluster(act); !res.OK() {
			return res
		}
	}
	var missing []string
	checked := map[[2]string]struct{}{}
	for _, item := range req.Items {
		if !global && ev.e.managesIndex(item.Index) {
			continue
		}
		itemAct := itemAction(item.Op)
		key := [2]string{itemAct, item.Index}
		if _, seen := checked[key]; seen {
			continue
		}
		ok, err := ev.allowed(prefixIndex+item.Index, itemAct)
		if err != nil {
			return withError(err)
		}
		checked[key] = struct{}{}
		if !ok {
			missing = append(missing, itemAct+" on "+item.Index)
		}
	}
	if len(missing) > 0 {
		return insufficient("no index permission for bulk items", missing...)
	}
	return Result{Status: StatusOK}
}

func itemAction(op action.OpType) string {
	switch op {
	case action.OpDelete:
		return action.NameDelete
	case action.OpUpdate:
		return action.NameUpdate
	default:
		return action.NameIndex
	}
}
