package goCred

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is the security log entry emitted for every credential
// operation outcome. Raw tokens and codes are never included.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	SubjectID string            `json:"subject_id,omitempty"`
	Purpose   string            `json:"purpose,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

const (
	auditEventTokenIssued       = "token.issued"
	auditEventTokenValidated    = "token.validated"
	auditEventTokenConsumed     = "token.consumed"
	auditEventTokenInvalidated  = "token.invalidated"
	auditEventTokenSweep        = "token.sweep"
	auditEventRateLimitHit      = "rate_limit.hit"
	auditEventLockoutStarted    = "lockout.started"
	auditEventLockoutCleared    = "lockout.cleared"
	auditEventMFASetupInitiated = "mfa.setup_initiated"
	auditEventMFASetupConfirmed = "mfa.setup_confirmed"
	auditEventMFAChallenge      = "mfa.challenge"
	auditEventMFADisabled       = "mfa.disabled"
	auditEventMFACodesReplaced  = "mfa.backup_codes_replaced"
	auditEventStateIssued       = "oauth_state.issued"
	auditEventStateVerified     = "oauth_state.verified"
)

// AuditSink receives audit events from the engine's async dispatcher.
// Implementations must be safe for concurrent use.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

// Emit implements [AuditSink].
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink buffers events on a channel for in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink returns a sink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit implements [AuditSink].
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the delivery channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to the wrapped writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps w; writes are serialized under an internal mutex.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements [AuditSink].
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
