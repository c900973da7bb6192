// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/palisade/internal/authc"
)

const testYAML = `
server:
  port: 9400
  node_name: test-node
  timeout: 5s
auth:
  admin_dn: ["CN=admin,O=palisade"]
  accepted_networks: ["10.0.0.0/8"]
  domains:
    - name: internal
      type: basic/internal
      enabled: true
      cache_user: true
  internal_users:
    alice:
      hash: "$2a$10$abcdefghijklmnopqrstuv"
      backend_roles: [dev]
privileges:
  tenants: [human_resources]
  roles:
    dev:
      index_permissions:
        - index_patterns: ["logs-*"]
          allowed_actions: ["indices:data/read/*"]
  role_mappings:
    dev:
      backend_roles: [dev]
tenancy:
  enabled: true
filter:
  immutable_indices: ["audit-*"]
cluster:
  in_memory: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "palisade.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") error = %v", err)
	}
	if cfg.Server.Port != 9300 {
		t.Errorf("Server.Port = %d, want 9300", cfg.Server.Port)
	}
	if len(cfg.Auth.Domains) != 1 || cfg.Auth.Domains[0].Type != "basic/"+authc.InternalBackendType {
		t.Errorf("Auth.Domains = %+v, want one basic/internal domain", cfg.Auth.Domains)
	}
	if cfg.LDAP.Authz.MaxNestedDepth != 30 {
		t.Errorf("LDAP.Authz.MaxNestedDepth = %d, want 30", cfg.LDAP.Authz.MaxNestedDepth)
	}
	if cfg.Tenancy.FrontendIndex != ".kibana" || cfg.Tenancy.Enabled {
		t.Errorf("Tenancy = %+v, want disabled with .kibana", cfg.Tenancy)
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 9400 || cfg.Server.NodeName != "test-node" || cfg.Server.Timeout != 5*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if u, ok := cfg.Auth.InternalUsers["alice"]; !ok || len(u.BackendRoles) != 1 || u.BackendRoles[0] != "dev" {
		t.Errorf("InternalUsers = %+v", cfg.Auth.InternalUsers)
	}
	role, ok := cfg.Privileges.Roles["dev"]
	if !ok || len(role.IndexPermissions) != 1 || role.IndexPermissions[0].IndexPatterns[0] != "logs-*" {
		t.Errorf("Roles = %+v", cfg.Privileges.Roles)
	}
	if !cfg.Tenancy.Enabled || cfg.Tenancy.TenantField != "sg_tenant" {
		t.Errorf("Tenancy = %+v, want enabled with default tenant field", cfg.Tenancy)
	}
	if !cfg.Cluster.InMemory {
		t.Error("Cluster.InMemory = false, want true")
	}
	// defaults survive for keys the file does not set
	if cfg.Audit.BufferSize != 1000 {
		t.Errorf("Audit.BufferSize = %d, want default 1000", cfg.Audit.BufferSize)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("IMMUTABLE_INDICES", "audit-*, ledger")
	t.Setenv("HTTP_PORT", "9500")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadFile(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9500 {
		t.Errorf("Server.Port = %d, want 9500", cfg.Server.Port)
	}
	want := []string{"audit-*", "ledger"}
	if len(cfg.Filter.ImmutableIndices) != 2 || cfg.Filter.ImmutableIndices[0] != want[0] || cfg.Filter.ImmutableIndices[1] != want[1] {
		t.Errorf("Filter.ImmutableIndices = %q, want %q", cfg.Filter.ImmutableIndices, want)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"LOG_LEVEL", "logging.level"},
		{"ldap_hosts", "ldap.connection.hosts"},
		{"TENANCY_FRONTEND_INDEX", "tenancy.frontend_index"},
		{"AUTH_FAILURE_TRIES", "auth.auth_failure.allowed_tries"},
		{"PATH", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.input); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "ldap backend disabled", mutate: func(c *Config) { c.Auth.Domains[0].Type = "basic/ldap" }, wantErr: `backend "ldap" is not available`},
		{name: "ldap backend enabled", mutate: func(c *Config) {
			c.LDAP.Enabled = true
			c.Auth.Domains[0].Type = "basic/ldap"
			c.Auth.Domains[0].Authorization = []string{"ldap"}
		}},
		{name: "malformed type", mutate: func(c *Config) { c.Auth.Domains[0].Type = "internal" }, wantErr: "<frontend>/<backend>"},
		{name: "no enabled domain", mutate: func(c *Config) { c.Auth.Domains[0].Enabled = false }, wantErr: "at least one domain"},
		{name: "tenancy without index", mutate: func(c *Config) {
			c.Tenancy.Enabled = true
			c.Tenancy.FrontendIndex = ""
		}, wantErr: "tenancy.frontend_index"},
		{name: "accepted network", mutate: func(c *Config) { c.Auth.AcceptedNetworks = []string{"10.0.0.0/99"} }, wantErr: "auth.accepted_networks"},
		{name: "immutable regex", mutate: func(c *Config) { c.Filter.ImmutableIndices = []string{"/[/"} }, wantErr: "filter.immutable_indices"},
		{name: "badger audit without path", mutate: func(c *Config) {
			c.Audit.Store = "badger"
			c.Audit.Path = ""
		}, wantErr: "audit.path"},
		{name: "resolution", mutate: func(c *Config) { c.Privileges.Resolution = "sometimes" }, wantErr: "privileges.resolution"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want one mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestStoreSwap(t *testing.T) {
	t.Parallel()

	s := NewStore(defaultConfig())
	if s.Current().Generation != 1 {
		t.Fatalf("initial generation = %d, want 1", s.Current().Generation)
	}

	var seen []uint64
	reject := false
	s.OnChange(func(_ context.Context, cfg *Config) error {
		if reject {
			return errors.New("rejected")
		}
		seen = append(seen, cfg.Generation)
		return nil
	})

	if err := s.Swap(context.Background(), defaultConfig()); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if s.Current().Generation != 2 || len(seen) != 1 || seen[0] != 2 {
		t.Errorf("after swap: generation %d, seen %v", s.Current().Generation, seen)
	}

	reject = true
	if err := s.Swap(context.Background(), defaultConfig()); err == nil {
		t.Fatal("Swap() with rejecting ApplyFunc succeeded")
	}
	if s.Current().Generation != 2 {
		t.Errorf("rejected generation became current: %d", s.Current().Generation)
	}
}

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, testYAML)
	initial, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(initial)
	w := NewWatcher(s, path)

	if err := os.WriteFile(path, []byte(strings.Replace(testYAML, "port: 9400", "port: 9401", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	w.reload(context.Background())
	if got := s.Current(); got.Generation != 2 || got.Server.Port != 9401 {
		t.Errorf("after reload generation %d port %d, want 2 and 9401", got.Generation, got.Server.Port)
	}

	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}
	w.reload(context.Background())
	if got := s.Current(); got.Generation != 2 {
		t.Errorf("broken file replaced generation: %d", got.Generation)
	}
}

func TestWatcherWithoutFile(t *testing.T) {
	t.Parallel()

	err := NewWatcher(NewStore(defaultConfig()), "").Serve(context.Background())
	if !errors.Is(err, ErrNoConfigFile) {
		t.Errorf("Serve() error = %v, want ErrNoConfigFile", err)
	}
}
