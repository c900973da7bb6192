// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent describes an authentication outcome.
type SecurityEvent struct {
	// Event is the event name, e.g. "transport_login" or "blocked_ip".
	Event string
	// Username is the claimed or authenticated user name.
	Username string
	// Domain is the authentication domain that produced the outcome.
	Domain string
	// RemoteAddr is the caller address.
	RemoteAddr string
	// Action is the requested action name.
	Action string
	// Success reports whether the attempt succeeded.
	Success bool
	// Error carries the failure reason.
	Error string
}

// SecurityLogger writes SecurityEvents with user-identifying data sanitized.
// Secrets never reach this logger; callers pass names only.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger returns a security logger on the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{logger: With().Str("component", "security").Logger()}
}

// NewSecurityLoggerWithLogger returns a security logger writing to logger.
//
//nolint:gocritic // zerolog.Logger is passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "security").Logger()}
}

// LogEvent writes event. Failures are logged at warn level.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info()
	status := "success"
	if !event.Success {
		e = l.logger.Warn()
		status = "failed"
	}
	e = e.Str("event", event.Event).Str("status", status)
	if event.Username != "" {
		e = e.Str("username", SanitizeUsername(event.Username))
	}
	if event.Domain != "" {
		e = e.Str("auth_domain", event.Domain)
	}
	if event.RemoteAddr != "" {
		e = e.Str("remote_addr", event.RemoteAddr)
	}
	if event.Action != "" {
		e = e.Str("action", event.Action)
	}
	if event.Error != "" && !event.Success {
		e = e.Str("reason", truncateString(event.Error, 200))
	}
	e.Send()
}

// SanitizeUsername keeps the first two characters of a name and masks the rest.
// Distinguished names keep their first RDN attribute type only.
func SanitizeUsername(name string) string {
	if name == "" {
		return ""
	}
	if i := strings.IndexByte(name, '='); i > 0 && i < 8 {
		return name[:i+1] + "***"
	}
	if len(name) <= 2 {
		return "***"
	}
	return name[:2] + "***"
}

// SanitizeToken reduces a token or secret to a fixed marker.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	return "[REDACTED]"
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
