// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package middleware provides HTTP middleware for the gateway listener:
// request ids tied into the logging context, and Prometheus request
// metrics labelled by chi route pattern.
package middleware
