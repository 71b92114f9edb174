// Package audit records who did what through the switch endpoint.
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/switching"
)

// Config holds the configuration for the audit trail
type Config struct {
	// Source names the emitting service in every record
	Source string
	// EventType tags request records
	EventType string
	// Logger receives the records. Defaults to slog.Default().
	Logger *slog.Logger
}

// Middleware writes audit records for requests and switch events.
type Middleware struct {
	config Config
	log    *slog.Logger
}

var _ switching.Observer = (*Middleware)(nil)

func NewMiddleware(config Config) *Middleware {
	if config.Source == "" {
		config.Source = "user-switching"
	}
	if config.EventType == "" {
		config.EventType = "audit.request"
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Middleware{
		config: config,
		log:    log.With("audit", true, "source", config.Source),
	}
}

// AuditEvent represents an audit event
type AuditEvent struct {
	Type      string
	UserID    string
	OldUserID string
	URI       string
	Method    string
	Message   string
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// WithMetadata adds metadata to the audit event
func (e AuditEvent) WithMetadata(key string, value interface{}) AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AuditAuthMiddleware records every request with the identity it arrived with.
func (m *Middleware) AuditAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event := AuditEvent{
			Type:      m.config.EventType,
			URI:       r.RequestURI,
			Method:    r.Method,
			Timestamp: time.Now(),
		}
		if u, ok := client.GetAuthUser(r.Context()); ok {
			event.UserID = u.UserId
		} else {
			event.Message = "No jwt token"
		}
		if action := r.URL.Query().Get("action"); action != "" {
			event = event.WithMetadata("action", action)
		}

		m.record(r.Context(), event)
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) SwitchedTo(ctx context.Context, e switching.Event) {
	m.record(ctx, m.switchEvent("audit.switch_to", e))
}

func (m *Middleware) SwitchedBack(ctx context.Context, e switching.Event) {
	m.record(ctx, m.switchEvent("audit.switch_back", e))
}

func (m *Middleware) SwitchedOff(ctx context.Context, e switching.Event) {
	m.record(ctx, m.switchEvent("audit.switch_off", e))
}

func (m *Middleware) switchEvent(eventType string, e switching.Event) AuditEvent {
	return AuditEvent{
		Type:      eventType,
		UserID:    e.UserID,
		OldUserID: e.OldUserID,
		Timestamp: e.At,
	}
}

func (m *Middleware) record(ctx context.Context, event AuditEvent) {
	attrs := []any{
		"type", event.Type,
		"user", event.UserID,
		"timestamp", event.Timestamp.Format(time.RFC3339),
	}
	if event.OldUserID != "" {
		attrs = append(attrs, "old_user", event.OldUserID)
	}
	if event.URI != "" {
		attrs = append(attrs, "uri", event.URI, "method", event.Method)
	}
	if event.Message != "" {
		attrs = append(attrs, "message", event.Message)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	m.log.InfoContext(ctx, "audit", attrs...)
}
