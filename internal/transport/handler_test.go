// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package transport

import (
	"context"
	"encoding/base64"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/audit"
	"github.com/tomtom215/palisade/internal/authc"
	"github.com/tomtom215/palisade/internal/privileges"
	"github.com/tomtom215/palisade/internal/user"
)

const (
	adminDN = "CN=admin,O=palisade"
	proxyDN = "CN=node-1,O=palisade"
)

// fakeBackend knows users with fixed passwords and counts backend calls.
type fakeBackend struct {
	passwords map[string]string
	authCalls atomic.Int32
	lookups   atomic.Int32
}

func (b *fakeBackend) Type() string { return "fake" }

func (b *fakeBackend) Authenticate(_ context.Context, c *user.AuthCredentials) (*user.User, error) {
	b.authCalls.Add(1)
	pw, ok := b.passwords[c.Username()]
	if !ok || pw != string(c.Password()) {
		return nil, authc.ErrAuthenticationFailed
	}
	return c.NewUser("fake"), nil
}

func (b *fakeBackend) Exists(_ context.Context, name string) (*user.User, bool, error) {
	b.lookups.Add(1)
	if _, ok := b.passwords[name]; !ok {
		return nil, false, nil
	}
	return user.New(name, user.AuthDomainInfo{BackendType: "fake"}), true, nil
}

// recordingAuditor keeps event names for assertions.
type recordingAuditor struct {
	audit.Nop
	mu     sync.Mutex
	events []string
}

func (r *recordingAuditor) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAuditor) LogSucceededLogin(_ context.Context, _ *action.ExecContext, username, effective string) {
	r.add("success:" + username + ">" + effective)
}

func (r *recordingAuditor) LogFailedLogin(_ context.Context, _ *action.ExecContext, username, _ string) {
	r.add("failed:" + username)
}

func (r *recordingAuditor) LogBlockedIP(context.Context, *action.ExecContext, netip.Addr) {
	r.add("blocked_ip")
}

func (r *recordingAuditor) LogBlockedUser(_ context.Context, _ *action.ExecContext, username string) {
	r.add("blocked_user:" + username)
}

func (r *recordingAuditor) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	handler *Handler
	backend *fakeBackend
	auditor *recordingAuditor
	ips     *authc.IPBlockRegistry
}

func newFixture(t *testing.T, accepted ...string) *fixture {
	t.Helper()

	backend := &fakeBackend{passwords: map[string]string{
		"alice":   "pw",
		"blocked": "pw",
		proxyDN:   "",
		adminDN:   "",
	}}
	domains, err := authc.NewDomains([]authc.DomainConfig{
		{Name: "fake", Type: "basic/fake", Enabled: true, CacheUser: true},
	}, map[string]authc.AuthenticationBackend{"fake": backend}, nil)
	if err != nil {
		t.Fatal(err)
	}
	admins, err := privileges.NewAdminDNs([]string{adminDN})
	if err != nil {
		t.Fatal(err)
	}
	rules, err := authc.NewImpersonationRules(map[string][]string{proxyDN: {"alice", "blocked", adminDN}})
	if err != nil {
		t.Fatal(err)
	}
	ips, _ := authc.NewIPBlockRegistry([]string{"198.51.100.0/24"}, time.Hour)
	users, _ := authc.NewUserBlockRegistry([]string{"blocked"}, time.Hour)
	networks, err := ParseNetworks(accepted)
	if err != nil {
		t.Fatal(err)
	}

	auditor := &recordingAuditor{}
	h := NewHandler(Options{
		Admins:       admins,
		Auditor:      auditor,
		BlockedIPs:   ips,
		BlockedUsers: users,
		Failures:     authc.NewFailureListener(authc.FailureConfig{Enabled: true, AllowedTries: 2, TimeWindow: time.Hour}, ips),
	})
	h.Configure(Settings{
		Generation:    1,
		Domains:       domains,
		Impersonation: rules,
		Accepted:      networks,
		UserCache:     authc.CacheConfig{Size: 100, TTL: time.Hour},
	})
	return &fixture{handler: h, backend: backend, auditor: auditor, ips: ips}
}

func transportContext(principal, remote string, headers map[string]string) *action.ExecContext {
	ec := action.NewExecContext(action.OriginTransport, action.ChannelTransport, headers)
	ec.SSLPrincipal = principal
	ec.RemoteAddr = netip.MustParseAddr(remote)
	return ec
}

func basic(name, password string) map[string]string {
	return map[string]string{action.HeaderAuthorization: "Basic " + base64.StdEncoding.EncodeToString([]byte(name+":"+password))}
}

func TestAuthenticatePaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		principal string
		remote    string
		headers   map[string]string
		wantUser  string
		wantAudit string
	}{
		{name: "admin certificate", principal: adminDN, remote: "10.0.0.1", wantUser: adminDN, wantAudit: "success:" + adminDN + ">" + adminDN},
		{name: "credentials", principal: proxyDN, remote: "10.0.0.1", headers: basic("alice", "pw"), wantUser: "alice", wantAudit: "success:alice>alice"},
		{name: "wrong password", principal: proxyDN, remote: "10.0.0.1", headers: basic("alice", "nope"), wantAudit: "failed:alice"},
		{name: "impersonation", principal: proxyDN, remote: "10.0.0.1", headers: map[string]string{action.HeaderImpersonateAs: "alice"}, wantUser: "alice", wantAudit: "success:" + proxyDN + ">alice"},
		{name: "impersonating admin", principal: proxyDN, remote: "10.0.0.1", headers: map[string]string{action.HeaderImpersonateAs: adminDN}, wantAudit: "failed:" + adminDN},
		{name: "impersonation not allowed", principal: "CN=other,O=palisade", remote: "10.0.0.1", headers: map[string]string{action.HeaderImpersonateAs: "alice"}, wantAudit: "failed:alice"},
		{name: "self impersonation", principal: proxyDN, remote: "10.0.0.1", wantUser: proxyDN, wantAudit: "success:" + proxyDN + ">" + proxyDN},
		{name: "blocked address", principal: proxyDN, remote: "198.51.100.7", headers: basic("alice", "pw"), wantAudit: "blocked_ip"},
		{name: "blocked user", principal: proxyDN, remote: "10.0.0.1", headers: basic("blocked", "pw"), wantAudit: "failed:blocked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			u := f.handler.Authenticate(context.Background(), transportContext(tt.principal, tt.remote, tt.headers), "indices:data/read/search")
			got := ""
			if u != nil {
				got = u.Name()
			}
			if got != tt.wantUser {
				t.Errorf("user = %q, want %q", got, tt.wantUser)
			}
			if last := f.auditor.last(); last != tt.wantAudit {
				t.Errorf("last audit event = %q, want %q", last, tt.wantAudit)
			}
		})
	}
}

func TestCredentialsBeatImpersonation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	headers := basic("alice", "pw")
	headers[action.HeaderImpersonateAs] = "blocked"
	u := f.handler.Authenticate(context.Background(), transportContext(proxyDN, "10.0.0.1", headers), "indices:data/read/search")
	if u == nil || u.Name() != "alice" {
		t.Fatalf("user = %v, want alice", u)
	}
	if f.backend.lookups.Load() != 0 {
		t.Error("impersonation lookup performed although credentials were supplied")
	}
}

func TestUserCacheAndGenerationSwap(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if u := f.handler.Authenticate(ctx, transportContext(proxyDN, "10.0.0.1", basic("alice", "pw")), "a"); u == nil {
			t.Fatal("authentication failed")
		}
	}
	if n := f.backend.authCalls.Load(); n != 1 {
		t.Errorf("backend called %d times with cache, want 1", n)
	}

	st := f.handler.current.Load()
	f.handler.Configure(Settings{Generation: 2, Domains: st.Domains, Impersonation: st.Impersonation, UserCache: st.UserCache})
	if f.handler.Generation() != 2 {
		t.Fatalf("Generation() = %d, want 2", f.handler.Generation())
	}
	f.handler.Authenticate(ctx, transportContext(proxyDN, "10.0.0.1", basic("alice", "pw")), "a")
	if n := f.backend.authCalls.Load(); n != 2 {
		t.Errorf("backend called %d times after generation swap, want 2", n)
	}
}

func TestFailedAttemptsBlockAddress(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.handler.Authenticate(ctx, transportContext(proxyDN, "10.9.9.9", basic("alice", "wrong")), "a")
	}
	if !f.ips.IsBlocked(netip.MustParseAddr("10.9.9.9")) {
		t.Fatal("address not blocked after repeated failures")
	}
	if u := f.handler.Authenticate(ctx, transportContext(proxyDN, "10.9.9.9", basic("alice", "pw")), "a"); u != nil {
		t.Error("blocked address authenticated")
	}
}

func TestNotConfiguredAndAcceptance(t *testing.T) {
	t.Parallel()

	h := NewHandler(Options{})
	if u := h.Authenticate(context.Background(), transportContext(proxyDN, "10.0.0.1", basic("alice", "pw")), "a"); u != nil {
		t.Errorf("unconfigured handler returned %v", u)
	}

	f := newFixture(t, "192.0.2.0/24")
	if u := f.handler.Authenticate(context.Background(), transportContext(proxyDN, "10.0.0.1", basic("alice", "pw")), "a"); u != nil {
		t.Error("address outside accepted networks authenticated")
	}
	if u := f.handler.Authenticate(context.Background(), transportContext(proxyDN, "192.0.2.10", basic("alice", "pw")), "a"); u == nil {
		t.Error("address inside accepted networks rejected")
	}
}

func TestClientAttachesUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var seen *user.User
	next := action.NewPipeline(action.ExecutorFunc(func(_ context.Context, ec *action.ExecContext, _ string, _ action.Request) (action.Response, error) {
		seen = ec.User
		return &action.GenericResponse{}, nil
	}))
	c := f.handler.Client(next)
	if _, err := action.ExecuteSync(context.Background(), c, transportContext(proxyDN, "10.0.0.1", basic("alice", "pw")), action.NameSearch, &action.SearchRequest{}); err != nil {
		t.Fatal(err)
	}
	if seen == nil || seen.Name() != "alice" {
		t.Errorf("downstream user = %v, want alice", seen)
	}
}

func TestAuthenticateAttachesRequestedTenant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	headers := basic("alice", "pw")
	headers[action.HeaderTenant] = "ops"
	u := f.handler.Authenticate(ctx, transportContext(proxyDN, "10.0.0.1", headers), "indices:data/read/search")
	if u == nil || u.RequestedTenant() != "ops" {
		t.Fatalf("user = %v, want tenant ops", u)
	}

	// the cached user is shared and must not keep the previous tenant
	again := f.handler.Authenticate(ctx, transportContext(proxyDN, "10.0.0.1", basic("alice", "pw")), "indices:data/read/search")
	if again == nil {
		t.Fatal("second request not authenticated")
	}
	if again.RequestedTenant() != "" {
		t.Errorf("second user tenant = %q, want global", again.RequestedTenant())
	}
	if calls := f.backend.authCalls.Load(); calls != 1 {
		t.Errorf("backend calls = %d, want 1 (cached)", calls)
	}
}
