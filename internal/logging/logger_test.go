// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// captureLogs swaps the global logger for one writing to a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	SetLogger(NewTestLogger(&buf))
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(strings.Split(strings.TrimSpace(buf.String()), "\n")[0])
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return m
}

func TestCtxAddsCorrelationAndRequestID(t *testing.T) {
	buf := captureLogs(t)

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithRequestID(ctx, "task-7")
	Ctx(ctx).Info().Msg("hello")

	m := decodeLine(t, buf)
	if m["correlation_id"] != "abc12345" {
		t.Errorf("correlation_id = %v, want abc12345", m["correlation_id"])
	}
	if m["request_id"] != "task-7" {
		t.Errorf("request_id = %v, want task-7", m["request_id"])
	}
	if m["message"] != "hello" {
		t.Errorf("message = %v, want hello", m["message"])
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("len = %d, want 8", len(a))
	}
	if a == b {
		t.Errorf("expected distinct ids, got %q twice", a)
	}
}

func TestSecurityLoggerSanitizes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sl := NewSecurityLoggerWithLogger(NewTestLogger(&buf))
	sl.LogEvent(&SecurityEvent{
		Event:    "transport_login",
		Username: "alice",
		Domain:   "ldap",
		Success:  false,
		Error:    "bad credentials",
	})

	m := decodeLine(t, &buf)
	if m["username"] != "al***" {
		t.Errorf("username = %v, want al***", m["username"])
	}
	if m["status"] != "failed" {
		t.Errorf("status = %v, want failed", m["status"])
	}
	if m["level"] != "warn" {
		t.Errorf("level = %v, want warn", m["level"])
	}
}

func TestSanitizeUsername(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                  "",
		"ab":                "***",
		"alice":             "al***",
		"cn=alice,ou=users": "cn=***",
	}
	for in, want := range tests {
		if got := SanitizeUsername(in); got != want {
			t.Errorf("SanitizeUsername(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	buf := captureLogs(t)

	logger := slog.New(&SlogHandler{logger: Logger()}).WithGroup("svc").With("name", "ldap-pool")
	logger.Warn("restarting", "attempt", 3)

	m := decodeLine(t, buf)
	if m["svc.name"] != "ldap-pool" {
		t.Errorf("svc.name = %v, want ldap-pool", m["svc.name"])
	}
	if m["svc.attempt"] != float64(3) {
		t.Errorf("svc.attempt = %v, want 3", m["svc.attempt"])
	}
	if m["level"] != "warn" {
		t.Errorf("level = %v, want warn", m["level"])
	}
}
