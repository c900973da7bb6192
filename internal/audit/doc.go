// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

// Package audit records security events observed by the gateway.
//
// # Categories
//
// Authentication:
//   - AUTHENTICATED: a principal was authenticated (including impersonation)
//   - FAILED_LOGIN: credentials were rejected; the reason is never shown to the caller
//   - BLOCKED_IP, BLOCKED_USER: a block registry rejected the request
//
// Authorization:
//   - GRANTED_PRIVILEGES, MISSING_PRIVILEGES: privilege evaluation outcome
//   - COMPLIANCE_IMMUTABLE_INDEX_ATTEMPT: a mutation of an immutable index was refused
//
// # Architecture
//
// The audit system uses a producer-consumer pattern:
//
//	Logger.Log() -> Event Buffer (chan) -> Async Writer -> Store
//	                     |                      |
//	                 Non-blocking           Background goroutine
//
// The request path never waits on storage. When the buffer is full the
// event is dropped and counted in palisade_audit_events_total.
//
// Two stores are provided: MemoryStore, bounded and lost on restart, and
// BadgerStore, which keys events by timestamp so queries run most recent
// first and retention deletes are a prefix range scan. Logger.Serve runs
// retention cleanup and is registered with the supervisor tree.
package audit
