// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authorization Metrics
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_authz_decisions_total",
			Help: "Total number of authorization filter decisions",
		},
		[]string{"result"},
	)

	AuthzDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palisade_authz_duration_seconds",
			Help:    "Duration of privilege evaluation in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// Authentication Metrics
	AuthcAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_authc_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"domain", "outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_cache_lookups_total",
			Help: "Total number of user cache lookups",
		},
		[]string{"cache", "result"},
	)

	// Directory Metrics
	LDAPOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palisade_ldap_operation_duration_seconds",
			Help:    "Duration of directory operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	LDAPErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_ldap_errors_total",
			Help: "Total number of failed directory operations",
		},
		[]string{"operation"},
	)

	// Multi-tenancy Metrics
	TenancyRewrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_tenancy_rewrites_total",
			Help: "Total number of requests rewritten for a tenant scope",
		},
		[]string{"kind"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Configuration Metrics
	ConfigGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "palisade_config_generation",
			Help: "Generation number of the active security configuration",
		},
	)

	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_config_reloads_total",
			Help: "Total number of configuration reload attempts",
		},
		[]string{"result"},
	)

	// Audit Metrics
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_audit_events_total",
			Help: "Total number of audit events",
		},
		[]string{"category", "outcome"}, // outcome: "stored", "dropped", "failed"
	)

	// Document Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palisade_store_operation_duration_seconds",
			Help:    "Duration of embedded document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_store_errors_total",
			Help: "Total number of failed document store operations",
		},
		[]string{"operation"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)
)

// RecordAuthzDecision records an authorization filter outcome.
func RecordAuthzDecision(result string, duration time.Duration) {
	AuthzDecisions.WithLabelValues(result).Inc()
	if duration > 0 {
		AuthzDuration.Observe(duration.Seconds())
	}
}

// RecordAuthentication records one authentication attempt against a domain.
func RecordAuthentication(domain, outcome string) {
	AuthcAttempts.WithLabelValues(domain, outcome).Inc()
}

// RecordCacheLookup records a hit or miss on a named cache.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordLDAPOperation records a directory operation.
func RecordLDAPOperation(operation string, duration time.Duration, err error) {
	LDAPOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		LDAPErrors.WithLabelValues(operation).Inc()
	}
}

// RecordTenancyRewrite counts a request rewritten into a tenant scope.
func RecordTenancyRewrite(kind string) {
	TenancyRewrites.WithLabelValues(kind).Inc()
}

// RecordConfigReload records a configuration reload and the generation it produced.
func RecordConfigReload(generation uint64, err error) {
	if err != nil {
		ConfigReloads.WithLabelValues("failure").Inc()
		return
	}
	ConfigReloads.WithLabelValues("success").Inc()
	ConfigGeneration.Set(float64(generation))
}

// RecordAuditEvent records the outcome of delivering an audit event.
func RecordAuditEvent(category, outcome string) {
	AuditEvents.WithLabelValues(category, outcome).Inc()
}

// RecordStoreOperation records an embedded document store operation.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
