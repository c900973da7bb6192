// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package api

import (
	"net/http"
	"sort"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/logging"
)

// health reports readiness. It answers 503 until the security
// configuration has been loaded.
func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	status := rt.deps.Status()
	code := http.StatusOK
	if !status.Initialized {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, status)
}

// AuthInfo describes the authenticated caller.
type AuthInfo struct {
	User            string          `json:"user"`
	UserName        string          `json:"user_name"`
	BackendRoles    []string        `json:"backend_roles"`
	Roles           []string        `json:"sg_roles"`
	Tenants         map[string]bool `json:"sg_tenants"`
	RequestedTenant string          `json:"user_requested_tenant,omitempty"`
	RemoteAddress   string          `json:"remote_address,omitempty"`
	CustomAttrs     []string        `json:"custom_attribute_names"`
	Principal       string          `json:"principal,omitempty"`
}

func (rt *Router) authInfo(w http.ResponseWriter, r *http.Request) {
	ec, u, ok := rt.authenticate(w, r, action.NameWhoAmI)
	if !ok {
		return
	}

	info := AuthInfo{
		User:            u.String(),
		UserName:        u.Name(),
		BackendRoles:    u.BackendRoles(),
		RequestedTenant: u.RequestedTenant(),
		Principal:       ec.SSLPrincipal,
		CustomAttrs:     make([]string, 0, len(u.Attributes())),
		Roles:           []string{},
	}
	if ec.RemoteAddr.IsValid() {
		info.RemoteAddress = ec.RemoteAddr.String()
	}
	for name := range u.Attributes() {
		info.CustomAttrs = append(info.CustomAttrs, name)
	}
	sort.Strings(info.CustomAttrs)

	if rt.deps.Roles != nil {
		info.Roles = rt.deps.Roles.MappedRoles(u, ec.RemoteAddr)
	}
	if rt.deps.Tenants != nil {
		tenants, err := rt.deps.Tenants.Tenants(u, info.Roles)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).
				Str("user", logging.SanitizeUsername(u.Name())).
				Msg("Failed to resolve tenants")
			respondError(w, action.Internal(err, "failed to resolve tenants"))
			return
		}
		info.Tenants = tenants
	}
	respondJSON(w, http.StatusOK, info)
}

func (rt *Router) clusterHealth(w http.ResponseWriter, r *http.Request) {
	rt.generic(w, r, action.NameClusterHealth)
}

func (rt *Router) clusterState(w http.ResponseWriter, r *http.Request) {
	rt.generic(w, r, action.NameClusterState)
}

func (rt *Router) generic(w http.ResponseWriter, r *http.Request, name string) {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	resp, ok := rt.execute(w, r, name, &action.GenericRequest{Params: params})
	if !ok {
		return
	}
	out, ok := resp.(*action.GenericResponse)
	if !ok {
		respondError(w, action.Internal(nil, "unexpected response %T", resp))
		return
	}
	respondJSON(w, http.StatusOK, out.Data)
}
