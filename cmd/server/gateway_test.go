// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/netip"
	"slices"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/audit"
	"github.com/tomtom215/palisade/internal/authc"
	"github.com/tomtom215/palisade/internal/cluster"
	"github.com/tomtom215/palisade/internal/config"
	"github.com/tomtom215/palisade/internal/privileges"
	"github.com/tomtom215/palisade/internal/tenancy"
	"github.com/tomtom215/palisade/internal/transport"
)

func newTestGateway(t *testing.T) *gateway {
	t.Helper()
	return newAuditedGateway(t, audit.Nop{})
}

func newAuditedGateway(t *testing.T, auditor audit.Auditor) *gateway {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	store, err := cluster.NewStore(db, cluster.Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = store.Close()
		_ = db.Close()
	})

	gw := newGateway(cluster.NewExecutor(store, "node-1"), auditor)
	gw.handler = transport.NewHandler(transport.Options{Admins: gw})
	return gw
}

func testConfig(t *testing.T, generation uint64) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	hash, err := authc.HashPassword([]byte("secret"), 4)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Generation = generation
	cfg.Auth.AdminDNs = []string{"CN=admin,O=example"}
	cfg.Auth.InternalUsers = map[string]authc.InternalUser{"alice": {Hash: hash}}
	cfg.Privileges.Roles = map[string]privileges.Role{
		"logs_writer": {IndexPermissions: []privileges.IndexPermission{{
			IndexPatterns:  []string{"logs-*"},
			AllowedActions: []string{"indices:data/*"},
		}}},
	}
	cfg.Privileges.RoleMappings = map[string]privileges.RoleMapping{
		"logs_writer": {Users: []string{"alice"}},
	}
	return cfg
}

func restContext(t *testing.T, gw *gateway, actionName string) *action.ExecContext {
	t.Helper()
	return tenantContext(t, gw, actionName, "")
}

// tenantContext authenticates alice with tenant selected by header.
func tenantContext(t *testing.T, gw *gateway, actionName, tenant string) *action.ExecContext {
	t.Helper()
	headers := map[string]string{
		action.HeaderAuthorization: "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret")),
	}
	if tenant != "" {
		headers[action.HeaderTenant] = tenant
	}
	ec := action.NewExecContext(action.OriginREST, action.ChannelHTTP, headers)
	ec.RemoteAddr = netip.MustParseAddr("127.0.0.1")
	u := gw.handler.Authenticate(context.Background(), ec, actionName)
	if u == nil {
		t.Fatal("alice was not authenticated")
	}
	return ec.WithUser(u)
}

func TestGatewayUninitialized(t *testing.T) {
	t.Parallel()
	gw := newTestGateway(t)

	ec := action.NewExecContext(action.OriginREST, action.ChannelHTTP, nil)
	_, err := action.ExecuteSync(context.Background(), gw, ec, action.NameSearch, &action.SearchRequest{})
	if action.StatusOf(err) != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want 503", err)
	}
	if gw.Generation() != 0 || gw.IsAdmin("CN=admin,O=example") {
		t.Error("uninitialized gateway reports state")
	}
}

func TestGatewayApplyAndReload(t *testing.T) {
	t.Parallel()
	gw := newTestGateway(t)
	ctx := context.Background()

	resources, err := gw.apply(ctx, testConfig(t, 1))
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if len(resources) != 0 {
		t.Errorf("resources = %v, want none without ldap", resources)
	}
	if gw.Generation() != 1 || gw.handler.Generation() != 1 {
		t.Errorf("generation = %d/%d, want 1", gw.Generation(), gw.handler.Generation())
	}
	if !gw.IsAdmin("cn=admin, o=example") {
		t.Error("admin DN not recognised")
	}

	ec := restContext(t, gw, action.NameIndex)
	if _, err := action.ExecuteSync(ctx, gw, ec, action.NameIndex, &action.IndexRequest{Index: "logs-1", ID: "1", Source: map[string]any{"m": "x"}}); err != nil {
		t.Fatalf("permitted write: %v", err)
	}
	_, err = action.ExecuteSync(ctx, gw, ec, action.NameIndex, &action.IndexRequest{Index: "secret", ID: "1", Source: map[string]any{"m": "x"}})
	if action.StatusOf(err) != http.StatusForbidden {
		t.Errorf("write outside role err = %v, want 403", err)
	}

	next := testConfig(t, 2)
	next.Privileges.RoleMappings = map[string]privileges.RoleMapping{}
	if _, err := gw.apply(ctx, next); err != nil {
		t.Fatalf("apply(2) error = %v", err)
	}
	_, err = action.ExecuteSync(ctx, gw, restContext(t, gw, action.NameGet), action.NameGet, &action.GetRequest{Index: "logs-1", ID: "1"})
	if action.StatusOf(err) != http.StatusForbidden {
		t.Errorf("read after unmapping err = %v, want 403", err)
	}
}

func TestGatewayRejectedGenerationKeepsActive(t *testing.T) {
	t.Parallel()
	gw := newTestGateway(t)
	ctx := context.Background()

	if _, err := gw.apply(ctx, testConfig(t, 1)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) {
			c.Auth.Domains = []authc.DomainConfig{{Name: "x", Type: "basic/nowhere", Enabled: true}}
		}},
		{"no enabled domain", func(c *config.Config) {
			c.Auth.Domains = nil
		}},
		{"bad admin dn", func(c *config.Config) {
			c.Auth.AdminDNs = []string{"not a dn"}
		}},
		{"bad accepted network", func(c *config.Config) {
			c.Auth.AcceptedNetworks = []string{"10.0.0.0/99"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, 2)
			tt.mutate(cfg)
			if _, err := gw.apply(ctx, cfg); err == nil {
				t.Fatal("apply() error = nil")
			}
			if gw.Generation() != 1 {
				t.Errorf("generation = %d, want 1", gw.Generation())
			}
		})
	}
}

func TestGatewayTenants(t *testing.T) {
	t.Parallel()
	gw := newTestGateway(t)

	cfg := testConfig(t, 1)
	cfg.Privileges.Tenants = []string{"shared"}
	if _, err := gw.apply(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	u := restContext(t, gw, action.NameWhoAmI).User
	tenants, err := gw.Tenants(u, gw.evaluator.MappedRoles(u, netip.Addr{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tenants["shared"]; ok {
		t.Errorf("tenants = %v, shared granted without tenant permission", tenants)
	}
	if !tenants["alice"] {
		t.Errorf("tenants = %v, want writable private tenant", tenants)
	}
}

// tenantConfig enables multi-tenancy. alice writes to blue and green and
// only reads readonly.
func tenantConfig(t *testing.T, generation uint64) *config.Config {
	t.Helper()
	cfg := testConfig(t, generation)
	cfg.Tenancy.Enabled = true
	cfg.Privileges.Tenants = []string{"blue", "green", "readonly"}
	cfg.Privileges.Roles["tenant_user"] = privileges.Role{TenantPermissions: []privileges.TenantPermission{
		{TenantPatterns: []string{"blue", "green"}, AllowedActions: []string{tenancy.PermissionWrite}},
		{TenantPatterns: []string{"readonly"}, AllowedActions: []string{tenancy.PermissionRead}},
	}}
	cfg.Privileges.RoleMappings["tenant_user"] = privileges.RoleMapping{Users: []string{"alice"}}
	return cfg
}

func tenantGet(t *testing.T, gw *gateway, tenant, id string) *action.GetResponse {
	t.Helper()
	ec := tenantContext(t, gw, action.NameGet, tenant)
	resp, err := action.ExecuteSync(context.Background(), gw, ec, action.NameGet, &action.GetRequest{Index: ".kibana", ID: id})
	if err != nil {
		t.Fatalf("get %s in %s: %v", id, tenant, err)
	}
	return resp.(*action.GetResponse)
}

func TestGatewayTenantsShareIDs(t *testing.T) {
	t.Parallel()

	writes := []struct {
		name  string
		write func(t *testing.T, gw *gateway, ec *action.ExecContext, id, title string) error
	}{
		{"index", func(t *testing.T, gw *gateway, ec *action.ExecContext, id, title string) error {
			resp, err := action.ExecuteSync(context.Background(), gw, ec, action.NameIndex, &action.IndexRequest{
				Index: ".kibana", ID: id, Source: map[string]any{"title": title},
			})
			if err != nil {
				return err
			}
			if got := resp.(*action.IndexResponse).ID; got != id {
				t.Errorf("index response ID = %q, want %q", got, id)
			}
			return nil
		}},
		{"bulk", func(t *testing.T, gw *gateway, ec *action.ExecContext, id, title string) error {
			resp, err := action.ExecuteSync(context.Background(), gw, ec, action.NameBulk, &action.BulkRequest{Items: []action.BulkItem{{
				Op: action.OpIndex, Index: ".kibana", ID: id, Source: map[string]any{"title": title},
			}}})
			if err != nil {
				return err
			}
			items := resp.(*action.BulkResponse).Items
			if len(items) != 1 || items[0].Failure != nil || items[0].ID != id {
				t.Errorf("bulk items = %+v, want one success for %q", items, id)
			}
			return nil
		}},
	}
	for _, tt := range writes {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gw := newTestGateway(t)
			ctx := context.Background()
			if _, err := gw.apply(ctx, tenantConfig(t, 1)); err != nil {
				t.Fatal(err)
			}

			for _, tenant := range []string{"blue", "green"} {
				ec := tenantContext(t, gw, action.NameIndex, tenant)
				if err := tt.write(t, gw, ec, "dashboard", tenant); err != nil {
					t.Fatalf("write in %s: %v", tenant, err)
				}
			}

			for _, tenant := range []string{"blue", "green"} {
				got := tenantGet(t, gw, tenant, "dashboard")
				if !got.Found {
					t.Fatalf("get in %s found nothing", tenant)
				}
				if got.ID != "dashboard" || got.Source["title"] != tenant {
					t.Errorf("get in %s = %s %v, want dashboard titled %s", tenant, got.ID, got.Source, tenant)
				}
			}

			// stored ids carry the tenant so both documents coexist
			plain := action.NewExecContext(action.OriginLocal, action.ChannelTransport, nil)
			for _, tenant := range []string{"blue", "green"} {
				internal := tenancy.InternalName(tenant, "alice")
				resp, err := gw.executor.Execute(ctx, plain, action.NameGet, &action.GetRequest{
					Index: ".kibana", ID: tenancy.Scope("dashboard", internal),
				})
				if err != nil {
					t.Fatal(err)
				}
				got := resp.(*action.GetResponse)
				if !got.Found || got.Source[tenancy.DefaultSettings().TenantField] != internal {
					t.Errorf("stored %s document = %+v, want tenant field %s", tenant, got, internal)
				}
			}
		})
	}
}

func TestGatewayTenantDeleteStaysInTenant(t *testing.T) {
	t.Parallel()
	gw := newTestGateway(t)
	ctx := context.Background()
	if _, err := gw.apply(ctx, tenantConfig(t, 1)); err != nil {
		t.Fatal(err)
	}

	blue := tenantContext(t, gw, action.NameIndex, "blue")
	if _, err := action.ExecuteSync(ctx, gw, blue, action.NameIndex, &action.IndexRequest{
		Index: ".kibana", ID: "only-blue", Source: map[string]any{"title": "x"},
	}); err != nil {
		t.Fatal(err)
	}

	foreign := tenancy.Scope("only-blue", tenancy.InternalName("blue", "alice"))
	green := tenantContext(t, gw, action.NameDelete, "green")
	resp, err := action.ExecuteSync(ctx, gw, green, action.NameDelete, &action.DeleteRequest{Index: ".kibana", ID: foreign})
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.(*action.DeleteResponse); got.Result != action.ResultNotFound || got.ID != "only-blue" {
		t.Errorf("foreign delete = %s %s, want not_found only-blue", got.Result, got.ID)
	}
	if !tenantGet(t, gw, "blue", "only-blue").Found {
		t.Fatal("document deleted from another tenant")
	}

	resp, err = action.ExecuteSync(ctx, gw, tenantContext(t, gw, action.NameDelete, "blue"), action.NameDelete,
		&action.DeleteRequest{Index: ".kibana", ID: "only-blue"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.(*action.DeleteResponse).Result; got != action.ResultDeleted {
		t.Errorf("own delete result = %s, want %s", got, action.ResultDeleted)
	}
	if tenantGet(t, gw, "blue", "only-blue").Found {
		t.Error("document still found after delete")
	}
}

type grant struct {
	action  string
	applied bool
}

// grantRecorder records granted privilege decisions.
type grantRecorder struct {
	audit.Nop
	mu     sync.Mutex
	grants []grant
}

func (r *grantRecorder) LogGrantedPrivileges(_ context.Context, ec *action.ExecContext, actionName string, _ action.Request, _ []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = append(r.grants, grant{action: actionName, applied: ec.TenancyApplied()})
}

func (r *grantRecorder) snapshot() []grant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.grants)
}

func TestGatewayTenantSubRequestsAreAuthorized(t *testing.T) {
	t.Parallel()
	rec := &grantRecorder{}
	gw := newAuditedGateway(t, rec)
	ctx := context.Background()
	if _, err := gw.apply(ctx, tenantConfig(t, 1)); err != nil {
		t.Fatal(err)
	}

	if _, err := action.ExecuteSync(ctx, gw, tenantContext(t, gw, action.NameIndex, "blue"), action.NameIndex,
		&action.IndexRequest{Index: ".kibana", ID: "d", Source: map[string]any{}}); err != nil {
		t.Fatal(err)
	}
	tenantGet(t, gw, "blue", "d")

	got := rec.snapshot()
	for _, want := range []grant{
		{action.NameIndex, false},
		{action.NameIndex, true},
		{action.NameGet, false},
		{action.NameSearch, true},
	} {
		if !slices.Contains(got, want) {
			t.Errorf("grants = %v, want %v", got, want)
		}
	}
}

func TestGatewayTenantDenied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		disabled bool
		tenant   string
		action   string
		req      action.Request
	}{
		{name: "write to read-only tenant", tenant: "readonly", action: action.NameIndex,
			req: &action.IndexRequest{Index: ".kibana", ID: "d", Source: map[string]any{}}},
		{name: "unknown tenant", tenant: "nowhere", action: action.NameGet,
			req: &action.GetRequest{Index: ".kibana", ID: "d"}},
		{name: "global tenant needs index privileges", action: action.NameGet,
			req: &action.GetRequest{Index: ".kibana", ID: "d"}},
		{name: "tenant does not widen other indices", tenant: "blue", action: action.NameIndex,
			req: &action.IndexRequest{Index: "secret", ID: "d", Source: map[string]any{}}},
		{name: "header ignored with tenancy disabled", disabled: true, tenant: "blue", action: action.NameGet,
			req: &action.GetRequest{Index: ".kibana", ID: "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gw := newTestGateway(t)
			ctx := context.Background()
			cfg := tenantConfig(t, 1)
			cfg.Tenancy.Enabled = !tt.disabled
			if _, err := gw.apply(ctx, cfg); err != nil {
				t.Fatal(err)
			}

			_, err := action.ExecuteSync(ctx, gw, tenantContext(t, gw, tt.action, tt.tenant), tt.action, tt.req)
			if got := action.StatusOf(err); got != http.StatusForbidden {
				t.Errorf("StatusOf(err) = %d, want %d (err = %v)", got, http.StatusForbidden, err)
			}
		})
	}
}
