// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package audit

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/metrics"
	"github.com/tomtom215/palisade/internal/pattern"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	// Default: true
	Enabled bool `koanf:"enabled"`

	// BufferSize is the size of the async write buffer.
	// Default: 1000
	BufferSize int `koanf:"buffer_size" validate:"min=1"`

	// RetentionDays is how long stored events are kept.
	// Default: 90
	RetentionDays int `koanf:"retention_days" validate:"min=1"`

	// CleanupInterval is how often retention cleanup runs.
	// Default: 24h
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// LogToStdout also writes events through the application logger.
	LogToStdout bool `koanf:"log_to_stdout"`

	// DisabledCategories are never recorded.
	// Default: AUTHENTICATED, GRANTED_PRIVILEGES
	DisabledCategories []Category `koanf:"disabled_categories"`

	// IgnoreUsers lists user name patterns whose events are dropped.
	IgnoreUsers []string `koanf:"ignore_users"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		BufferSize:         1000,
		RetentionDays:      90,
		CleanupInterval:    24 * time.Hour,
		DisabledCategories: []Category{CategoryAuthenticated, CategoryGrantedPrivileges},
	}
}

// Logger is the asynchronous audit logger. It implements Auditor.
type Logger struct {
	config      *Config
	store       Store
	disabled    map[Category]struct{}
	ignoreUsers pattern.Set

	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

var _ Auditor = (*Logger)(nil)

// NewLogger creates an audit logger writing to store.
func NewLogger(store Store, config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	ignore, err := pattern.CompileSet(config.IgnoreUsers)
	if err != nil {
		return nil, err
	}
	disabled := make(map[Category]struct{}, len(config.DisabledCategories))
	for _, c := range config.DisabledCategories {
		disabled[c] = struct{}{}
	}

	l := &Logger{
		config:      config,
		store:       store,
		disabled:    disabled,
		ignoreUsers: ignore,
		eventChan:   make(chan *Event, max(config.BufferSize, 1)),
		stopChan:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l, nil
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *Event) {
	l.mu.RLock()
	toStdout := l.config.LogToStdout
	l.mu.RUnlock()

	if toStdout {
		l.logToStdout(event)
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.Save(ctx, event); err != nil {
			logging.Error().Err(err).Str("category", string(event.Category)).Msg("Failed to save audit event")
		}
	}
}

func (l *Logger) logToStdout(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal audit event")
		return
	}
	logging.Info().RawJSON("event", data).Msg("Audit event")
}

// Log records an event. It never blocks; events are dropped when the buffer
// is full.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.config.Enabled
	l.mu.RUnlock()

	category := string(event.Category)
	if !enabled {
		metrics.RecordAuditEvent(category, "disabled")
		return
	}
	if _, off := l.disabled[event.Category]; off {
		metrics.RecordAuditEvent(category, "filtered")
		return
	}
	if event.User != "" && l.ignoreUsers.Matches(event.User) {
		metrics.RecordAuditEvent(category, "filtered")
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.eventChan <- event:
		metrics.RecordAuditEvent(category, "queued")
	default:
		metrics.RecordAuditEvent(category, "dropped")
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// Close stops the writer after draining buffered events.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// Serve runs retention cleanup until ctx is canceled. It implements
// suture.Service.
func (l *Logger) Serve(ctx context.Context) error {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.cleanup(ctx, time.Now().AddDate(0, 0, -retention))
		}
	}
}

func (l *Logger) cleanup(ctx context.Context, cutoff time.Time) {
	if l.store == nil {
		return
	}
	count, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit cleanup error")
	} else if count > 0 {
		logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
	}
}

// String names the service in supervisor logs.
func (l *Logger) String() string { return "audit-retention" }

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// newEvent fills the fields every event derives from the execution context.
func newEvent(ctx context.Context, category Category, ec *action.ExecContext) *Event {
	e := &Event{
		Category:      category,
		Layer:         LayerTransport,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	}
	if ec == nil {
		return e
	}
	if ec.Origin == action.OriginREST {
		e.Layer = LayerREST
	}
	e.Origin = string(ec.Origin)
	e.TaskID = ec.TaskID
	e.SSLPrincipal = ec.SSLPrincipal
	if ec.RemoteAddr.IsValid() {
		e.RemoteAddr = ec.RemoteAddr.String()
	}
	if ec.User != nil {
		e.User = ec.User.Name()
	}
	return e
}

func withRequest(e *Event, actionName string, req action.Request) *Event {
	e.Action = actionName
	if req != nil {
		e.RequestKind = req.Kind().String()
		e.Indices = req.Indices()
	}
	return e
}

// LogGrantedPrivileges implements Auditor.
func (l *Logger) LogGrantedPrivileges(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, mappedRoles []string) {
	e := withRequest(newEvent(ctx, CategoryGrantedPrivileges, ec), actionName, req)
	e.MappedRoles = mappedRoles
	l.Log(e)
}

// LogMissingPrivileges implements Auditor.
func (l *Logger) LogMissingPrivileges(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request, reason string) {
	e := withRequest(newEvent(ctx, CategoryMissingPrivileges, ec), actionName, req)
	e.Reason = reason
	l.Log(e)
}

// LogImmutableIndexAttempt implements Auditor.
func (l *Logger) LogImmutableIndexAttempt(ctx context.Context, ec *action.ExecContext, actionName string, req action.Request) {
	l.Log(withRequest(newEvent(ctx, CategoryImmutableIndexAttempt, ec), actionName, req))
}

// LogSucceededLogin implements Auditor.
func (l *Logger) LogSucceededLogin(ctx context.Context, ec *action.ExecContext, username, effectiveUser string) {
	e := newEvent(ctx, CategoryAuthenticated, ec)
	e.User = username
	if effectiveUser != username {
		e.EffectiveUser = effectiveUser
	}
	l.Log(e)
}

// LogFailedLogin implements Auditor.
func (l *Logger) LogFailedLogin(ctx context.Context, ec *action.ExecContext, username, reason string) {
	e := newEvent(ctx, CategoryFailedLogin, ec)
	e.User = username
	e.Reason = reason
	l.Log(e)
}

// LogBlockedIP implements Auditor.
func (l *Logger) LogBlockedIP(ctx context.Context, ec *action.ExecContext, addr netip.Addr) {
	e := newEvent(ctx, CategoryBlockedIP, ec)
	if addr.IsValid() {
		e.RemoteAddr = addr.String()
	}
	l.Log(e)
}

// LogBlockedUser implements Auditor.
func (l *Logger) LogBlockedUser(ctx context.Context, ec *action.ExecContext, username string) {
	e := newEvent(ctx, CategoryBlockedUser, ec)
	e.User = username
	l.Log(e)
}

// Nop discards every event.
type Nop struct{}

var _ Auditor = Nop{}

func (Nop) LogGrantedPrivileges(context.Context, *action.ExecContext, string, action.Request, []string) {}
func (Nop) LogMissingPrivileges(context.Context, *action.ExecContext, string, action.Request, string) {}
func (Nop) LogImmutableIndexAttempt(context.Context, *action.ExecContext, string, action.Request) {}
func (Nop) LogSucceededLogin(context.Context, *action.ExecContext, string, string) {}
func (Nop) LogFailedLogin(context.Context, *action.ExecContext, string, string) {}
func (Nop) LogBlockedIP(context.Context, *action.ExecContext, netip.Addr) {}
func (Nop) LogBlockedUser(context.Context, *action.ExecContext, string) {}
