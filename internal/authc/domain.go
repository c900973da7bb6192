// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-bexpr"

	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/metrics"
	"github.com/tomtom215/palisade/internal/pattern"
	"github.com/tomtom215/palisade/internal/user"
)

// DomainConfig configures one authentication domain.
type DomainConfig struct {
	// Name identifies the domain in logs and metrics.
	Name string `koanf:"name" validate:"required"`

	// Type is "<frontend>/<backend>", e.g. "basic/internal" or "basic/ldap".
	Type string `koanf:"type" validate:"required"`

	// Order ranks domains; lower is tried first.
	Order int `koanf:"order"`

	// Enabled domains take part in authentication.
	// Default: true
	Enabled bool `koanf:"enabled"`

	// Accept is a go-bexpr expression over request metadata. Empty accepts all.
	Accept string `koanf:"accept"`

	// SkipUsers are user name patterns this domain never authenticates.
	SkipUsers []string `koanf:"skip_users"`

	// CacheUser allows authenticated users to be cached.
	// Default: true
	CacheUser bool `koanf:"cache_user"`

	// Authorization names the authorization backends adding backend roles.
	Authorization []string `koanf:"authorization"`
}

// RequestMeta describes a request for acceptance expressions.
type RequestMeta struct {
	RemoteAddr netip.Addr
	Channel    string
	Origin     string
	Action     string
	Headers    map[string]string
}

func (m RequestMeta) datum() map[string]any {
	headers := make(map[string]any, len(m.Headers))
	for k, v := range m.Headers {
		headers[strings.ToLower(k)] = v
	}
	addr := ""
	if m.RemoteAddr.IsValid() {
		addr = m.RemoteAddr.String()
	}
	return map[string]any{
		"remote_addr": addr,
		"channel":     m.Channel,
		"origin":      m.Origin,
		"action":      m.Action,
		"headers":     headers,
	}
}

// Domain is a compiled authentication domain.
type Domain struct {
	name        string
	frontend    string
	order       int
	cacheUser   bool
	backend     AuthenticationBackend
	authorizers []AuthorizationBackend
	accept      *bexpr.Evaluator
	skipUsers   pattern.Set
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// Frontend returns the credential frontend type.
func (d *Domain) Frontend() string { return d.frontend }

// CacheUser reports whether users of this domain may be cached.
func (d *Domain) CacheUser() bool { return d.cacheUser }

// Accepts evaluates the acceptance expression. Evaluation errors reject.
func (d *Domain) Accepts(meta RequestMeta) bool {
	if d.accept == nil {
		return true
	}
	ok, err := d.accept.Evaluate(meta.datum())
	if err != nil {
		logging.Debug().Err(err).Str("domain", d.name).Msg("Acceptance expression did not evaluate")
		return false
	}
	return ok
}

// AcceptsUser reports whether name is not excluded by skip_users.
func (d *Domain) AcceptsUser(name string) bool {
	return !d.skipUsers.Matches(name)
}

// Authenticate verifies creds with the backend and fills backend roles.
// Authorization backend failures fail the attempt.
func (d *Domain) Authenticate(ctx context.Context, creds *user.AuthCredentials) (*user.User, error) {
	start := time.Now()
	u, err := d.backend.Authenticate(ctx, creds)
	if err != nil {
		metrics.RecordAuthentication(d.name, "failed")
		logging.Ctx(ctx).Debug().
			Err(err).
			Str("domain", d.name).
			Str("user", logging.SanitizeUsername(creds.Username())).
			Dur("duration", time.Since(start)).
			Msg("Backend rejected credentials")
		return nil, fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, d.name, err)
	}
	if err := d.authorize(ctx, u); err != nil {
		metrics.RecordAuthentication(d.name, "error")
		return nil, err
	}
	metrics.RecordAuthentication(d.name, "success")
	return u, nil
}

// Impersonate looks up target without credentials and fills its roles.
// It returns ErrAuthenticationFailed when the user does not exist.
func (d *Domain) Impersonate(ctx context.Context, target string) (*user.User, error) {
	u, ok, err := d.backend.Exists(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, d.name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s: user does not exist", ErrAuthenticationFailed, d.name)
	}
	if err := d.authorize(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Domain) authorize(ctx context.Context, u *user.User) error {
	for _, a := range d.authorizers {
		if err := a.FillRoles(ctx, u); err != nil {
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("domain", d.name).
				Str("authorizer", a.Type()).
				Str("user", logging.SanitizeUsername(u.Name())).
				Msg("Authorization backend failed")
			return fmt.Errorf("%w: %s: authorization backend %s: %w", ErrAuthenticationFailed, d.name, a.Type(), err)
		}
	}
	return nil
}

// Domains is the ordered set of enabled domains.
type Domains struct {
	domains []*Domain
}

// NewDomains compiles domain configs. backends and authorizers are keyed by
// the names used in DomainConfig.Type and DomainConfig.Authorization.
func NewDomains(cfgs []DomainConfig, backends map[string]AuthenticationBackend, authorizers map[string]AuthorizationBackend) (*Domains, error) {
	var (
		out  []*Domain
		errs []error
	)
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		d, err := compileDomain(c, backends, authorizers)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, d)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].order < out[j].order })
	return &Domains{domains: out}, nil
}

func compileDomain(c DomainConfig, backends map[string]AuthenticationBackend, authorizers map[string]AuthorizationBackend) (*Domain, error) {
	frontend, backendName, ok := strings.Cut(c.Type, "/")
	if !ok || frontend == "" || backendName == "" {
		return nil, fmt.Errorf("%w: %s: type %q is not <frontend>/<backend>", ErrInvalidDomain, c.Name, c.Type)
	}
	backend, ok := backends[backendName]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %q", ErrUnknownBackend, c.Name, backendName)
	}
	d := &Domain{
		name:      c.Name,
		frontend:  frontend,
		order:     c.Order,
		cacheUser: c.CacheUser,
		backend:   backend,
	}
	for _, name := range c.Authorization {
		a, ok := authorizers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s: authorization %q", ErrUnknownBackend, c.Name, name)
		}
		d.authorizers = append(d.authorizers, a)
	}
	if strings.TrimSpace(c.Accept) != "" {
		ev, err := bexpr.CreateEvaluator(c.Accept)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: accept expression: %w", ErrInvalidDomain, c.Name, err)
		}
		d.accept = ev
	}
	skip, err := pattern.CompileSet(c.SkipUsers)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: skip_users: %w", ErrInvalidDomain, c.Name, err)
	}
	d.skipUsers = skip
	return d, nil
}

// All returns the domains in evaluation order.
func (ds *Domains) All() []*Domain {
	if ds == nil {
		return nil
	}
	return ds.domains
}

// Len returns the number of enabled domains.
func (ds *Domains) Len() int { return len(ds.All()) }

// Authenticate tries every accepting domain in order and returns the first
// user. It clears the credentials' secret before returning. skip, when
// non-nil, can veto a user, e.g. a blocked one; the next domain is then
// tried.
func (ds *Domains) Authenticate(ctx context.Context, meta RequestMeta, creds *user.AuthCredentials, skip func(*Domain, *user.User) bool) (*user.User, *Domain, error) {
	defer creds.ClearSecrets()

	var lastErr error
	for _, d := range ds.All() {
		if !d.Accepts(meta) || !d.AcceptsUser(creds.Username()) {
			continue
		}
		u, err := d.Authenticate(ctx, creds)
		if err != nil {
			lastErr = err
			continue
		}
		if skip != nil && skip(d, u) {
			continue
		}
		return u, d, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no domain accepted the request", ErrAuthenticationFailed)
	}
	return nil, nil, lastErr
}
