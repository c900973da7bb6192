// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package transport authenticates node-to-node requests.
//
// A request is authenticated by exactly one of: credentials in the
// Authorization header, impersonation of the user named in the
// sg_impersonate_as header by a trusted certificate subject, or the
// certificate subject impersonating itself. Credentials win over
// impersonation when both are present.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/audit"
	"github.com/tomtom215/palisade/internal/authc"
	"github.com/tomtom215/palisade/internal/cache"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/user"
)

// AdminChecker recognises admin certificate subjects.
type AdminChecker interface {
	IsAdmin(principal string) bool
}

// Settings is one generation of transport authentication configuration.
type Settings struct {
	Generation    uint64
	Domains       *authc.Domains
	Impersonation *authc.ImpersonationRules
	// Accepted restricts authentication to these networks; empty accepts all.
	Accepted  []netip.Prefix
	UserCache authc.CacheConfig
}

// ParseNetworks parses addresses and CIDR networks for Settings.Accepted.
func ParseNetworks(networks []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(networks))
	for _, s := range networks {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "/") {
			a, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("accepted network %q: %w", s, err)
			}
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("accepted network %q: %w", s, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

type state struct {
	Settings
	// authenticated caches users by credentials cache key, impersonated
	// by target user name.
	authenticated *cache.Loading[string, *user.User]
	impersonated  *cache.Loading[string, *user.User]
}

func newState(s Settings) *state {
	st := &state{Settings: s}
	if s.UserCache.Size > 0 {
		st.authenticated = cache.NewLoading[string, *user.User]("transport_authenticated_users", s.UserCache.Size, s.UserCache.TTL)
		st.impersonated = cache.NewLoading[string, *user.User]("transport_impersonated_users", s.UserCache.Size, s.UserCache.TTL)
	}
	return st
}

func (s *state) accepts(addr netip.Addr) bool {
	if len(s.Accepted) == 0 {
		return true
	}
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.Accepted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Options wires the handler's collaborators.
type Options struct {
	Admins       AdminChecker
	Auditor      audit.Auditor
	BlockedIPs   *authc.IPBlockRegistry
	BlockedUsers *authc.UserBlockRegistry
	Failures     *authc.FailureListener
}

// Handler authenticates transport requests.
type Handler struct {
	opts    Options
	current atomic.Pointer[state]
}

// NewHandler creates a handler. It authenticates nobody until Configure runs.
func NewHandler(opts Options) *Handler {
	if opts.Auditor == nil {
		opts.Auditor = audit.Nop{}
	}
	return &Handler{opts: opts}
}

// Configure installs a configuration generation. Both user caches are
// rebuilt so no decision made under the previous generation is served.
func (h *Handler) Configure(s Settings) {
	h.current.Store(newState(s))
	logging.Info().
		Uint64("generation", s.Generation).
		Int("domains", s.Domains.Len()).
		Msg("Transport authentication configured")
}

// Generation returns the active configuration generation, 0 before Configure.
func (h *Handler) Generation() uint64 {
	if st := h.current.Load(); st != nil {
		return st.Generation
	}
	return 0
}

// ErrImpersonationDenied is returned when impersonation is not permitted.
var ErrImpersonationDenied = errors.New("impersonation not allowed")

// Authenticate resolves the user for a transport request. A nil user means
// the request is not authenticated.
func (h *Handler) Authenticate(ctx context.Context, ec *action.ExecContext, actionName string) *user.User {
	log := logging.Ctx(ctx).With().Str("component", "transport").Str("action", actionName).Logger()

	pki := user.New(ec.SSLPrincipal, user.AuthDomainInfo{FrontendType: user.DomainTLSCert})
	if h.isAdmin(ec.SSLPrincipal) {
		h.opts.Auditor.LogSucceededLogin(ctx, ec, pki.Name(), pki.Name())
		return withRequestedTenant(pki, ec)
	}

	st := h.current.Load()
	if st == nil {
		log.Error().Msg("Transport authentication not yet initialized")
		return nil
	}

	remote := ec.RemoteAddr
	if !st.accepts(remote) {
		log.Info().Str("remote_addr", remote.String()).Msg("Not accepting request due to acceptance rules")
		return nil
	}
	if h.opts.BlockedIPs.IsBlocked(remote) {
		log.Debug().Str("remote_addr", remote.String()).Msg("Rejecting transport request from blocked address")
		h.opts.Auditor.LogBlockedIP(ctx, ec, remote)
		return nil
	}

	creds, err := authc.ParseBasic(ec.Header(action.HeaderAuthorization),
		user.WithAuthenticatorType(user.DomainTransportBasic),
		user.WithDomainInfo(user.AuthDomainInfo{FrontendType: user.DomainTransportBasic}))
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring malformed Authorization header")
	}
	if creds != nil {
		defer creds.ClearSecrets()
	}
	impersonate := ec.Header(action.HeaderImpersonateAs)

	meta := authc.RequestMeta{
		RemoteAddr: remote,
		Channel:    string(ec.Channel),
		Origin:     string(ec.Origin),
		Action:     actionName,
		Headers:    ec.Headers(),
	}

	for _, d := range st.Domains.All() {
		if !d.Accepts(meta) {
			continue
		}

		var (
			u        *user.User
			err      error
			username string
		)
		switch {
		case creds != nil:
			username = creds.Username()
			if !d.AcceptsUser(username) {
				continue
			}
			u, err = h.authenticateCredentials(ctx, st, d, creds)
		case impersonate != "":
			username = impersonate
			u, err = h.impersonate(ctx, st, d, pki, impersonate)
		default:
			username = pki.Name()
			u, err = h.lookup(ctx, st, d, pki.Name(), user.DomainTLSCert)
		}
		if err != nil {
			log.Debug().
				Err(err).
				Str("domain", d.Name()).
				Str("user", logging.SanitizeUsername(username)).
				Msg("Cannot authenticate transport user with domain, trying next")
			continue
		}

		if h.isAdmin(u.Name()) {
			log.Error().Str("user", logging.SanitizeUsername(u.Name())).Msg("Admin user is not permitted to log in over transport")
			h.opts.Auditor.LogFailedLogin(ctx, ec, u.Name(), "admin user is not permitted to log in")
			return nil
		}
		if h.opts.BlockedUsers.IsBlocked(u.Name()) {
			log.Debug().Str("user", logging.SanitizeUsername(u.Name())).Str("domain", d.Name()).Msg("Rejecting transport request of blocked user")
			h.opts.Auditor.LogBlockedUser(ctx, ec, u.Name())
			continue
		}

		effective := u.Name()
		principal := effective
		if creds == nil && impersonate != "" {
			principal = pki.Name()
		}
		h.opts.Auditor.LogSucceededLogin(ctx, ec, principal, effective)
		return withRequestedTenant(u, ec)
	}

	failed := pki.Name()
	if creds != nil {
		failed = creds.Username()
	} else if impersonate != "" {
		failed = impersonate
	}
	h.opts.Auditor.LogFailedLogin(ctx, ec, failed, "transport authentication failed")
	h.opts.Failures.OnFailure(remote)
	log.Warn().
		Str("user", logging.SanitizeUsername(failed)).
		Str("remote_addr", remote.String()).
		Msg("Transport authentication finally failed")
	return nil
}

// withRequestedTenant attaches the tenant selected by the request header.
// Cached users are shared across requests and never carry a tenant.
func withRequestedTenant(u *user.User, ec *action.ExecContext) *user.User {
	tenant := ec.Header(action.HeaderTenant)
	if tenant == u.RequestedTenant() {
		return u
	}
	return u.WithRequestedTenant(tenant)
}

func (h *Handler) isAdmin(principal string) bool {
	return h.opts.Admins != nil && principal != "" && h.opts.Admins.IsAdmin(principal)
}

func (h *Handler) authenticateCredentials(ctx context.Context, st *state, d *authc.Domain, creds *user.AuthCredentials) (*user.User, error) {
	authenticate := func(ctx context.Context) (*user.User, error) {
		u, err := d.Authenticate(ctx, creds)
		if err != nil {
			return nil, err
		}
		return u.Freeze(), nil
	}
	if !d.CacheUser() || st.authenticated == nil {
		return authenticate(ctx)
	}
	return st.authenticated.Get(ctx, d.Name()+"\x00"+creds.CacheKey(), authenticate)
}

func (h *Handler) impersonate(ctx context.Context, st *state, d *authc.Domain, pki *user.User, target string) (*user.User, error) {
	if pki.Name() == "" {
		return nil, fmt.Errorf("%w: no certificate principal", ErrImpersonationDenied)
	}
	if h.isAdmin(target) {
		return nil, fmt.Errorf("%w: %q may not impersonate an admin user", ErrImpersonationDenied, pki.Name())
	}
	if !st.Impersonation.Allowed(pki.Name(), target) {
		return nil, fmt.Errorf("%w: %q may not impersonate %q", ErrImpersonationDenied, pki.Name(), target)
	}
	return h.lookup(ctx, st, d, target, user.DomainImpersonation)
}

func (h *Handler) lookup(ctx context.Context, st *state, d *authc.Domain, name, frontend string) (*user.User, error) {
	load := func(ctx context.Context) (*user.User, error) {
		u, err := d.Impersonate(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := u.SetDomain(u.Domain().Add(user.AuthDomainInfo{FrontendType: frontend})); err != nil {
			return nil, err
		}
		return u.Freeze(), nil
	}
	if st.impersonated == nil {
		return load(ctx)
	}
	return st.impersonated.Get(ctx, d.Name()+"\x00"+frontend+"\x00"+name, load)
}

// Client authenticates transport-origin requests that carry no user yet
// before passing them to next. Requests with an unauthenticated principal
// proceed without a user and are refused by the authorization filter.
func (h *Handler) Client(next action.Client) action.Client {
	return action.ClientFunc(func(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, l action.Listener) {
		if ec.Origin == action.OriginTransport && ec.User == nil {
			start := time.Now()
			if u := h.Authenticate(ctx, ec, actionName); u != nil {
				ec = ec.WithUser(u)
			}
			logging.Ctx(ctx).Trace().Dur("duration", time.Since(start)).Msg("Transport authentication done")
		}
		next.Execute(ctx, ec, actionName, req, l)
	})
}
