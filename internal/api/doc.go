// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

/*
Package api provides the gateway's HTTP surface using the chi router.

# Routes

Operational endpoints, never authenticated:

	GET  /healthz              liveness and configuration generation
	GET  /metrics              Prometheus exposition

Authenticated endpoints. Credentials come from HTTP basic authentication
and are resolved through the configured authentication domains; the
sg_impersonate_as and sgtenant headers are passed through:

	GET  /_palisade/authinfo   user, backend roles, mapped roles, tenants

Document and search endpoints in the search cluster's REST dialect, each
mapped to one action and executed through the authorization pipeline:

	PUT|POST  /{index}/_doc/{id}       indices:data/write/index
	POST      /{index}/_doc            indices:data/write/index (generated id)
	PUT|POST  /{index}/_create/{id}    indices:data/write/index, op_type create
	GET       /{index}/_doc/{id}       indices:data/read/get
	DELETE    /{index}/_doc/{id}       indices:data/write/delete
	POST      /{index}/_update/{id}    indices:data/write/update
	POST      /_mget, /{index}/_mget   indices:data/read/mget
	GET|POST  /_search, /{target}/_search
	POST      /_msearch                indices:data/read/msearch (NDJSON)
	POST      /_bulk, /{index}/_bulk   indices:data/write/bulk (NDJSON)
	POST      /{target}/_update_by_query
	POST      /{target}/_pit           indices:data/read/open_point_in_time
	POST      /{target}/_close         indices:admin/close
	DELETE    /{target}                indices:admin/delete
	POST      /_aliases                indices:admin/aliases
	GET       /_cluster/health, /_cluster/state

Failures are rendered as {"error":{"type":...,"reason":...},"status":N}
with the status carried by action.StatusError.

# Middleware

Request ids and Prometheus metrics come from internal/middleware; client
rate limiting uses go-chi/httprate keyed by remote address. Forwarded-for
headers are not trusted, since the remote address feeds IP blocking and
authentication-domain rules.
*/
package api
