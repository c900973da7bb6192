// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/jackc/puddle/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/metrics"
)

// ConnectionManager is a pooled Directory backed by one or more LDAP servers.
type ConnectionManager struct {
	cfg     ConnectionSettings
	pool    *puddle.Pool[*goldap.Conn]
	breaker *gobreaker.CircuitBreaker[any]
	next    atomic.Uint32
	name    string
}

// NewConnectionManager creates the pool and opens PoolMinSize connections.
// A directory that is down at startup is not an error; connections are
// retried on demand.
func NewConnectionManager(ctx context.Context, name string, cfg ConnectionSettings) (*ConnectionManager, error) {
	if cfg.PoolMaxSize <= 0 {
		cfg.PoolMaxSize = DefaultConnectionSettings().PoolMaxSize
	}
	m := &ConnectionManager{cfg: cfg, name: "ldap-" + name}

	pool, err := puddle.NewPool(&puddle.Config[*goldap.Conn]{
		Constructor: func(ctx context.Context) (*goldap.Conn, error) {
			return m.dial(ctx, true)
		},
		Destructor: func(c *goldap.Conn) {
			_ = c.Close()
		},
		MaxSize: int32(cfg.PoolMaxSize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ldap pool: %w", err)
	}
	m.pool = pool

	metrics.CircuitBreakerState.WithLabelValues(m.name).Set(0)
	m.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        m.name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= max(cfg.BreakerFailures, 1)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isConnectionError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("ldap circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	for i := 0; i < cfg.PoolMinSize && i < cfg.PoolMaxSize; i++ {
		if err := pool.CreateResource(ctx); err != nil {
			logging.Warn().Err(err).Str("directory", name).Msg("failed to open initial ldap connection")
			break
		}
	}
	return m, nil
}

// Close closes all pooled connections.
func (m *ConnectionManager) Close() {
	m.pool.Close()
}

// Connect checks out a connection.
func (m *ConnectionManager) Connect(ctx context.Context) (Conn, error) {
	res, err := execute(m, func() (*puddle.Resource[*goldap.Conn], error) {
		return m.pool.Acquire(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrBackend, err)
	}
	return &pooledConn{m: m, res: res}, nil
}

func execute[T any](m *ConnectionManager, fn func() (T, error)) (T, error) {
	out, err := m.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.CircuitBreakerRequests.WithLabelValues(m.name, result).Inc()
		var zero T
		return zero, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(m.name, "success").Inc()
	typed, _ := out.(T)
	return typed, nil
}

// hostOrder returns the hosts to try for one dial.
func (m *ConnectionManager) hostOrder() []string {
	hosts := m.cfg.hosts()
	if m.cfg.Strategy == StrategyFailover || len(hosts) == 1 {
		return hosts
	}
	start := int(m.next.Add(1)-1) % len(hosts)
	return append(append([]string{}, hosts[start:]...), hosts[:start]...)
}

func (m *ConnectionManager) dial(ctx context.Context, serviceBind bool) (*goldap.Conn, error) {
	var errs []error
	for _, host := range m.hostOrder() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := m.dialHost(host)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
			continue
		}
		if serviceBind && m.cfg.BindDN != "" {
			if err := conn.Bind(m.cfg.BindDN, m.cfg.Password); err != nil {
				_ = conn.Close()
				errs = append(errs, fmt.Errorf("%s: service bind: %w", host, err))
				continue
			}
		}
		return conn, nil
	}
	return nil, errors.Join(errs...)
}

func (m *ConnectionManager) dialHost(host string) (*goldap.Conn, error) {
	scheme := "ldap://"
	opts := []goldap.DialOpt{goldap.DialWithDialer(&net.Dialer{Timeout: m.cfg.ConnectTimeout})}
	if m.cfg.EnableTLS {
		scheme = "ldaps://"
		hostname, _, _ := net.SplitHostPort(host)
		opts = append(opts, goldap.DialWithTLSConfig(&tls.Config{
			ServerName:         hostname,
			InsecureSkipVerify: m.cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in
			MinVersion:         tls.VersionTLS12,
		}))
	}
	conn, err := goldap.DialURL(scheme+host, opts...)
	if err != nil {
		return nil, err
	}
	if m.cfg.ResponseTimeout > 0 {
		conn.SetTimeout(m.cfg.ResponseTimeout)
	}
	return conn, nil
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var le *goldap.Error
	if errors.As(err, &le) {
		switch le.ResultCode {
		case goldap.ErrorNetwork, goldap.LDAPResultBusy, goldap.LDAPResultUnavailable, goldap.LDAPResultServerDown, goldap.LDAPResultTimeout:
			return true
		}
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

type pooledConn struct {
	m        *ConnectionManager
	res      *puddle.Resource[*goldap.Conn]
	broken   bool
	released bool
}

func (c *pooledConn) Search(_ context.Context, base string, scope Scope, filter string) ([]*Entry, error) {
	start := time.Now()
	req := goldap.NewSearchRequest(base, scope.goldap(), goldap.DerefAlways, 0, 0, false, filter, nil, nil)
	res, err := execute(c.m, func() (*goldap.SearchResult, error) {
		return c.res.Value().Search(req)
	})
	if err != nil && goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
		err = nil
		res = &goldap.SearchResult{}
	}
	metrics.RecordLDAPOperation("search", time.Since(start), err)
	if err != nil {
		c.broken = c.broken || isConnectionError(err)
		return nil, fmt.Errorf("%w: search %q in %q: %w", ErrBackend, filter, base, err)
	}
	entries := make([]*Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, fromGoLDAP(e))
	}
	return entries, nil
}

func (c *pooledConn) Lookup(ctx context.Context, dn string) (*Entry, error) {
	entries, err := c.Search(ctx, dn, ScopeBase, "(objectClass=*)")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func (c *pooledConn) Bind(ctx context.Context, dn string, password []byte) error {
	start := time.Now()
	conn, err := execute(c.m, func() (*goldap.Conn, error) {
		return c.m.dial(ctx, false)
	})
	if err != nil {
		metrics.RecordLDAPOperation("bind", time.Since(start), err)
		return fmt.Errorf("%w: bind connection: %w", ErrBackend, err)
	}
	defer conn.Close()

	err = conn.Bind(dn, string(password))
	metrics.RecordLDAPOperation("bind", time.Since(start), err)
	if err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: bind: %w", ErrBackend, err)
	}
	return nil
}

func (c *pooledConn) Release() {
	if c.released {
		return
	}
	c.released = true
	if c.broken || c.res.Value().IsClosing() {
		c.res.Destroy()
		return
	}
	c.res.Release()
}
