// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package tenancy

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Tenant names with special meaning.
const (
	PrivateTenant = "__user__"
	GlobalTenant  = "SGS_GLOBAL_TENANT"
)

// Settings configures front-end multi-tenancy.
type Settings struct {
	Enabled              bool `koanf:"enabled"`
	PrivateTenantEnabled bool `koanf:"private_tenant_enabled"`
	// FrontendIndex is the index shared by all tenants, e.g. ".kibana".
	FrontendIndex string `koanf:"frontend_index" validate:"required_if=Enabled true"`
	// ServerUsername is the frontend server user, which has full access.
	ServerUsername string `koanf:"server_username"`
	// TenantField is the document field holding the internal tenant name.
	TenantField string `koanf:"tenant_field" validate:"required_if=Enabled true"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Enabled:              false,
		PrivateTenantEnabled: true,
		FrontendIndex:        ".kibana",
		ServerUsername:       "kibanaserver",
		TenantField:          "sg_tenant",
	}
}

var indexSubNames = []string{"alerting_cases", "analytics", "security_solution", "ingest"}

// indexMatcher recognises the frontend index and its versioned or
// migration-temporary variants.
type indexMatcher struct {
	re *regexp.Regexp
}

func newIndexMatcher(frontendIndex string) indexMatcher {
	subs := make([]string, len(indexSubNames))
	for i, s := range indexSubNames {
		subs[i] = regexp.QuoteMeta("_" + s)
	}
	expr := "^(" + regexp.QuoteMeta(frontendIndex) + "(?:" + strings.Join(subs, "|") + ")?)" +
		`(_[0-9]+\.[0-9]+\.[0-9]+(_[0-9]{3})?)?` +
		"(_reindex_temp|_reindex_temp_alias)?$"
	return indexMatcher{re: regexp.MustCompile(expr)}
}

func (m indexMatcher) matches(index string) bool {
	return m.re.MatchString(index)
}

// IsGlobal reports whether tenant selects the global (unscoped) tenant.
func IsGlobal(tenant string) bool {
	return tenant == "" || tenant == GlobalTenant
}

// InternalName returns the name stored in the tenant field and used in
// scoped ids. The private tenant is resolved per user.
func InternalName(tenant, username string) string {
	if tenant == PrivateTenant {
		tenant = PrivateTenant + username
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenant))
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(h.Sum32()), 10))
	for _, r := range strings.ToLower(tenant) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IndexMatcher returns a predicate recognising frontendIndex and its
// versioned variants.
func IndexMatcher(frontendIndex string) func(string) bool {
	return newIndexMatcher(frontendIndex).matches
}
