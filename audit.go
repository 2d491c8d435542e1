package authsession

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Audit event types emitted by Session.
const (
	AuditLogin    = "login"
	AuditRegister = "register"
	AuditRecover  = "recover"
	AuditRenew    = "renew"
	AuditTeardown = "teardown"
	AuditLogout   = "logout"
)

// AuditEvent records one session transition. It never carries credential
// values.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events on the dispatcher goroutine, one at a time.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// SinkFunc adapts a function to AuditSink.
type SinkFunc func(ctx context.Context, event AuditEvent)

func (f SinkFunc) Emit(ctx context.Context, event AuditEvent) {
	if f != nil {
		f(ctx, event)
	}
}

// ChannelSink forwards events to a buffered channel. Emit blocks while the
// channel is full.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan AuditEvent, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// LogSink writes each event as one structured log entry at info level
// (warn for failures), under the "audit" message.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil {
		return
	}
	e := s.log.Info()
	if !event.Success {
		e = s.log.Warn()
	}
	e = e.Time("at", event.Timestamp).
		Str("event_type", event.EventType).
		Bool("success", event.Success)
	if event.Username != "" {
		e = e.Str("username", event.Username)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	if len(event.Metadata) > 0 {
		dict := zerolog.Dict()
		for k, v := range event.Metadata {
			dict = dict.Str(k, v)
		}
		e = e.Dict("metadata", dict)
	}
	e.Msg("audit")
}
