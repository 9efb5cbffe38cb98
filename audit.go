package idsession

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the machine. One constant per observable
// outcome; metadata carries the rest.
const (
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventChallengeIssued      = "challenge_issued"
	auditEventSignOut              = "sign_out"
	auditEventSessionRefreshed     = "session_refreshed"
	auditEventSessionExpired       = "session_expired"
	auditEventRegistered           = "registered"
	auditEventRegistrationConfirm  = "registration_confirmed"
	auditEventResetRequested       = "reset_requested"
	auditEventResetConfirmed       = "reset_confirmed"
	auditEventCredentialChallenge  = "credential_challenge_completed"
	auditEventAttributesUpdated    = "attributes_updated"
	auditEventAttributeVerified    = "attribute_verified"
	auditEventEnrollmentStarted    = "enrollment_started"
	auditEventEnrollmentConfirmed  = "enrollment_confirmed"
	auditEventEnrollmentFailed     = "enrollment_failed"
	auditEventSecondFactorDisabled = "second_factor_disabled"
)

// AuditEvent is a structured record of one machine operation outcome.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Identity  string            `json:"identity,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the machine's audit dispatcher.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

// Emit implements [AuditSink].
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink is a buffered channel-based [AuditSink], useful in tests and
// for custom fan-out.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

// Emit implements [AuditSink].
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receiving end.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON-encoded event per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements [AuditSink].
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
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
