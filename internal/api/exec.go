// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package api

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/user"
)

// forwardedHeaders are copied from the HTTP request into the execution
// context.
var forwardedHeaders = []string{
	action.HeaderAuthorization,
	action.HeaderImpersonateAs,
	action.HeaderTenant,
}

// execContext builds the execution context of a REST request.
func execContext(r *http.Request) *action.ExecContext {
	headers := make(map[string]string, len(forwardedHeaders))
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	ec := action.NewExecContext(action.OriginREST, action.ChannelHTTP, headers)
	ec.RemoteAddr = remoteAddr(r)
	return ec
}

func remoteAddr(r *http.Request) netip.Addr {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// authenticate resolves the user or writes a 401 challenge.
func (rt *Router) authenticate(w http.ResponseWriter, r *http.Request, actionName string) (*action.ExecContext, *user.User, bool) {
	ec := execContext(r)
	u := rt.deps.Auth.Authenticate(r.Context(), ec, actionName)
	if u == nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="Palisade"`)
		respondError(w, action.Unauthorized("no credentials or invalid credentials for action [%s]", actionName))
		return nil, nil, false
	}
	return ec.WithUser(u), u, true
}

// execute authenticates the request and runs one action through the
// client. It writes the failure response itself and reports false.
func (rt *Router) execute(w http.ResponseWriter, r *http.Request, actionName string, req action.Request) (action.Response, bool) {
	ec, u, ok := rt.authenticate(w, r, actionName)
	if !ok {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.cfg.RequestTimeout)
	defer cancel()

	resp, err := action.ExecuteSync(ctx, rt.deps.Client, ec, actionName, req)
	if err != nil {
		level := logging.Ctx(ctx).Debug()
		if action.StatusOf(err) >= http.StatusInternalServerError {
			level = logging.Ctx(ctx).Error()
		}
		level.Err(err).
			Str("action", actionName).
			Str("user", logging.SanitizeUsername(u.Name())).
			Msg("Action failed")
		respondError(w, err)
		return nil, false
	}
	return resp, true
}

// targets splits a comma-separated target path segment.
func targets(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
