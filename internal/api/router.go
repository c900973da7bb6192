// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package api

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/middleware"
	"github.com/tomtom215/palisade/internal/user"
)

// Authenticator resolves the user of a request from its execution
// context. A nil user means authentication failed.
type Authenticator interface {
	Authenticate(ctx context.Context, ec *action.ExecContext, actionName string) *user.User
}

// RoleMapper maps a user to security roles.
type RoleMapper interface {
	MappedRoles(u *user.User, remote netip.Addr) []string
}

// TenantLister lists the tenants a user may use, mapped to write access.
type TenantLister interface {
	Tenants(u *user.User, mappedRoles []string) (map[string]bool, error)
}

// Status is reported by /healthz.
type Status struct {
	Initialized bool   `json:"initialized"`
	Generation  uint64 `json:"generation"`
	Node        string `json:"node"`
	Components  any    `json:"components,omitempty"`
}

// Deps are the collaborators of the router. Auth and Client are required.
type Deps struct {
	Auth    Authenticator
	Roles   RoleMapper
	Tenants TenantLister
	// Client executes authenticated actions, normally the authorization
	// pipeline.
	Client action.Client
	Status func() Status
}

// Config tunes the HTTP surface.
type Config struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
	// RequestTimeout bounds one action execution.
	RequestTimeout time.Duration
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    30 * time.Second,
		MaxBodyBytes:      10 << 20,
	}
}

// ErrMissingDependency is returned by NewRouter without Auth or Client.
var ErrMissingDependency = errors.New("api router requires an authenticator and a client")

// Router serves the gateway's HTTP endpoints.
type Router struct {
	deps Deps
	cfg  Config
}

// NewRouter creates the router.
func NewRouter(deps Deps, cfg Config) (*Router, error) {
	if deps.Auth == nil || deps.Client == nil {
		return nil, ErrMissingDependency
	}
	defaults := DefaultConfig()
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = defaults.RateLimitRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaults.RateLimitWindow
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if deps.Status == nil {
		deps.Status = func() Status { return Status{} }
	}
	return &Router{deps: deps, cfg: cfg}, nil
}

// rateLimit limits clients by remote address.
func (rt *Router) rateLimit() func(http.Handler) http.Handler {
	if rt.cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		rt.cfg.RateLimitRequests,
		rt.cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, action.NewStatusError(http.StatusTooManyRequests, nil, "too many requests"))
		}),
	)
}

// Handler builds the chi handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, action.NewStatusError(http.StatusNotFound, nil, "no handler found for uri [%s] and method [%s]", r.URL.Path, r.Method))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, action.NewStatusError(http.StatusMethodNotAllowed, nil, "incorrect HTTP method for uri [%s] and method [%s]", r.URL.Path, r.Method))
	})

	r.Get("/healthz", rt.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rt.rateLimit())
		r.Use(rt.limitBody)

		r.Get("/_palisade/authinfo", rt.authInfo)

		r.Get("/_cluster/health", rt.clusterHealth)
		r.Get("/_cluster/state", rt.clusterState)
		r.Post("/_aliases", rt.aliases)

		r.Post("/_bulk", rt.bulk)
		r.Post("/_mget", rt.multiGet)
		r.Post("/_msearch", rt.multiSearch)
		r.Get("/_search", rt.search)
		r.Post("/_search", rt.search)

		r.Route("/{target}", func(r chi.Router) {
			r.Delete("/", rt.deleteIndex)
			r.Post("/_close", rt.closeIndex)
			r.Post("/_bulk", rt.bulk)
			r.Post("/_mget", rt.multiGet)
			r.Get("/_search", rt.search)
			r.Post("/_search", rt.search)
			r.Post("/_update_by_query", rt.updateByQuery)
			r.Post("/_pit", rt.openPointInTime)

			r.Post("/_doc", rt.indexDocument)
			r.Put("/_doc/{id}", rt.indexDocument)
			r.Post("/_doc/{id}", rt.indexDocument)
			r.Put("/_create/{id}", rt.createDocument)
			r.Post("/_create/{id}", rt.createDocument)
			r.Get("/_doc/{id}", rt.getDocument)
			r.Delete("/_doc/{id}", rt.deleteDocument)
			r.Post("/_update/{id}", rt.updateDocument)
		})
	})

	return r
}

func (rt *Router) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
