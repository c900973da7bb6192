// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package authc authenticates principals against ordered authentication
// domains.
//
// A domain pairs a frontend type (how credentials are presented, e.g.
// "basic") with an authentication backend ("internal" users hashed with
// bcrypt, or "ldap") and optional authorization backends that add backend
// roles to the authenticated user. Domains are tried in ascending order;
// a domain may restrict itself to matching requests with a go-bexpr
// acceptance expression evaluated over request metadata:
//
//	remote_addr matches "^10\\." and channel == "transport"
//
// Failures never tell the caller why authentication failed. Every failure
// is reported as ErrAuthenticationFailed.
//
// Block registries reject requests from blocked addresses and users. The
// FailureListener counts failed attempts per address with token buckets
// and blocks an address once it exceeds its allowance.
package authc
