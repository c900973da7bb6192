// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package audit

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/user"
)

func newTestLogger(t *testing.T, store Store, cfg *Config) *Logger {
	t.Helper()
	l, err := NewLogger(store, cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return l
}

func testExec() *action.ExecContext {
	ec := action.NewExecContext(action.OriginREST, action.ChannelHTTP, nil)
	ec.RemoteAddr = netip.MustParseAddr("192.168.1.10")
	return ec.WithUser(user.New("alice", user.AuthDomainInfo{}))
}

func TestLoggerRecordsEvents(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(100)
	l := newTestLogger(t, store, &Config{Enabled: true, BufferSize: 10})

	ctx := context.Background()
	req := &action.DeleteRequest{Index: "audit-log", ID: "1"}
	l.LogMissingPrivileges(ctx, testExec(), action.NameDelete, req, "no index permission")
	l.LogImmutableIndexAttempt(ctx, testExec(), action.NameDelete, req)

	// Close drains the buffer.
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	events, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("stored %d events, want 2", len(events))
	}
	// Most recent first.
	if events[0].Category != CategoryImmutableIndexAttempt {
		t.Errorf("events[0].Category = %s, want %s", events[0].Category, CategoryImmutableIndexAttempt)
	}
	missing := events[1]
	if missing.User != "alice" || missing.RemoteAddr != "192.168.1.10" || missing.Layer != LayerREST {
		t.Errorf("missing privileges event = %+v", missing)
	}
	if missing.Reason != "no index permission" || missing.RequestKind != "delete" {
		t.Errorf("missing privileges event details = %+v", missing)
	}
	if missing.ID == "" || missing.Timestamp.IsZero() {
		t.Error("event id or timestamp not assigned")
	}
}

func TestLoggerFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *Config
		log  func(l *Logger)
		want int
	}{
		{
			name: "disabled",
			cfg:  &Config{Enabled: false, BufferSize: 10},
			log: func(l *Logger) {
				l.LogFailedLogin(context.Background(), testExec(), "bob", "bad password")
			},
			want: 0,
		},
		{
			name: "disabled category",
			cfg:  &Config{Enabled: true, BufferSize: 10, DisabledCategories: []Category{CategoryAuthenticated}},
			log: func(l *Logger) {
				l.LogSucceededLogin(context.Background(), testExec(), "bob", "bob")
				l.LogFailedLogin(context.Background(), testExec(), "bob", "bad password")
			},
			want: 1,
		},
		{
			name: "ignored user",
			cfg:  &Config{Enabled: true, BufferSize: 10, IgnoreUsers: []string{"kibana*"}},
			log: func(l *Logger) {
				l.LogBlockedUser(context.Background(), testExec(), "kibanaserver")
				l.LogBlockedUser(context.Background(), testExec(), "mallory")
			},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := NewMemoryStore(100)
			l := newTestLogger(t, store, tt.cfg)
			tt.log(l)
			_ = l.Close()
			if got := store.Len(); got != tt.want {
				t.Errorf("stored %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestLoggerImpersonation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(10)
	l := newTestLogger(t, store, &Config{Enabled: true, BufferSize: 10})
	l.LogSucceededLogin(context.Background(), testExec(), "proxy", "alice")
	_ = l.Close()

	events, _ := store.Query(context.Background(), QueryFilter{User: "alice"})
	if len(events) != 1 || events[0].EffectiveUser != "alice" || events[0].User != "proxy" {
		t.Errorf("impersonated login events = %+v", events)
	}
}

func TestMemoryStoreBoundAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore(10)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		e := &Event{ID: string(rune('a' + i)), Category: CategoryFailedLogin, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Save(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() > 10 {
		t.Errorf("Len() = %d, want <= 10", s.Len())
	}

	removed, err := s.Delete(ctx, base.Add(12*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed == 0 {
		t.Error("Delete() removed nothing")
	}
	n, _ := s.Count(ctx, QueryFilter{})
	if n != 3 {
		t.Errorf("Count() after delete = %d, want 3", n)
	}
}

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewBadgerStore(openBadger(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	categories := []Category{CategoryFailedLogin, CategoryMissingPrivileges, CategoryFailedLogin, CategoryBlockedIP}
	for i, c := range categories {
		e := &Event{
			ID:        string(rune('a' + i)),
			Category:  c,
			User:      "bob",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.Save(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	events, err := s.Query(ctx, QueryFilter{Categories: []Category{CategoryFailedLogin}})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].ID != "c" || events[1].ID != "a" {
		t.Errorf("Query(failed logins) = %+v, want c then a", events)
	}

	limited, _ := s.Query(ctx, QueryFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "d" {
		t.Errorf("Query(limit 1) = %+v, want d", limited)
	}

	removed, err := s.Delete(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("Delete() = %d, want 2", removed)
	}
	n, err := s.Count(ctx, QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}
