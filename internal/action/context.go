// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

import (
	"maps"
	"net/netip"

	"github.com/google/uuid"

	"github.com/tomtom215/palisade/internal/user"
)

// Origin says where a request entered the node.
type Origin string

const (
	OriginREST      Origin = "rest"
	OriginTransport Origin = "transport"
	OriginLocal     Origin = "local"
)

// Channel is the transport channel type a request arrived on.
type Channel string

const (
	ChannelHTTP         Channel = "http"
	ChannelTransport    Channel = "transport"
	ChannelInterCluster Channel = "inter_cluster"
	ChannelDirect       Channel = "direct"
)

// ExecContext is the per-request execution context passed explicitly through
// filters, handlers and the node-local client. It replaces ambient thread
// state: components never mutate a received ExecContext, they derive a copy
// with one of the With* methods, so a flag set for a sub-request cannot
// leak into the caller or into unrelated requests.
type ExecContext struct {
	TaskID       string
	Origin       Origin
	Channel      Channel
	RemoteAddr   netip.Addr
	SSLPrincipal string
	User         *user.User

	headers        map[string]string
	tenancyApplied bool
}

// NewExecContext creates a context with a fresh task id.
func NewExecContext(origin Origin, channel Channel, headers map[string]string) *ExecContext {
	return &ExecContext{
		TaskID:  uuid.NewString(),
		Origin:  origin,
		Channel: channel,
		headers: maps.Clone(headers),
	}
}

func (ec *ExecContext) clone() *ExecContext {
	c := *ec
	return &c
}

// Header returns a request header, "" when absent.
func (ec *ExecContext) Header(name string) string {
	return ec.headers[name]
}

// Headers returns a copy of all headers.
func (ec *ExecContext) Headers() map[string]string {
	return maps.Clone(ec.headers)
}

// WithHeader returns a copy with header name set.
func (ec *ExecContext) WithHeader(name, value string) *ExecContext {
	c := ec.clone()
	c.headers = maps.Clone(ec.headers)
	if c.headers == nil {
		c.headers = map[string]string{}
	}
	c.headers[name] = value
	return c
}

// WithUser returns a copy carrying u.
func (ec *ExecContext) WithUser(u *user.User) *ExecContext {
	c := ec.clone()
	c.User = u
	return c
}

// TenancyApplied reports whether multi-tenancy rewriting already happened
// for this request chain.
func (ec *ExecContext) TenancyApplied() bool {
	return ec.tenancyApplied
}

// WithTenancyApplied returns a copy marking tenancy rewriting as done. The
// receiver is left untouched.
func (ec *ExecContext) WithTenancyApplied() *ExecContext {
	c := ec.clone()
	c.tenancyApplied = true
	return c
}

// IsConfRequest reports whether the request carries the config-management marker.
func (ec *ExecContext) IsConfRequest() bool {
	return ec.headers[HeaderConfRequest] == "true"
}

// IsInterNode reports whether the request came over an inter-cluster or
// direct channel.
func (ec *ExecContext) IsInterNode() bool {
	return ec.Channel == ChannelInterCluster || ec.Channel == ChannelDirect
}

// WithOrigin returns a copy with origin o.
func (ec *ExecContext) WithOrigin(o Origin) *ExecContext {
	c := ec.clone()
	c.Origin = o
	return c
}
