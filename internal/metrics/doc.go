// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

/*
Package metrics provides Prometheus metrics for the security gateway.

All collectors are registered with the default registry through promauto
and are exposed by the admin API at /metrics.

# Available Metrics

Authorization:
  - palisade_authz_decisions_total: Authorization filter outcomes (counter)
    Labels: result (granted, denied, admin, bypass, error)
  - palisade_authz_duration_seconds: Privilege evaluation latency (histogram)

Authentication:
  - palisade_authc_attempts_total: Authentication attempts (counter)
    Labels: domain, outcome (success, failure, blocked)
  - palisade_cache_lookups_total: User cache lookups (counter)
    Labels: cache, result (hit, miss)

Directory:
  - palisade_ldap_operation_duration_seconds: Directory operation latency (histogram)
    Labels: operation (search, lookup, bind)
  - palisade_ldap_errors_total: Directory errors (counter)
    Labels: operation

Multi-tenancy:
  - palisade_tenancy_rewrites_total: Requests rewritten per tenant scope (counter)
    Labels: kind

Circuit Breaker:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
  - circuit_breaker_requests_total: Requests through the breaker (counter)
  - circuit_breaker_consecutive_failures: Consecutive failures (gauge)
  - circuit_breaker_state_transitions_total: State transitions (counter)

Configuration, audit and storage:
  - palisade_config_generation: Active configuration generation (gauge)
  - palisade_config_reloads_total: Reload attempts by result (counter)
  - palisade_audit_events_total: Audit events by category and outcome (counter)
  - palisade_store_operation_duration_seconds: Document store latency (histogram)

Admin API:
  - http_requests_total, http_request_duration_seconds, http_requests_in_flight
*/
package metrics
