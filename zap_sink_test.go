package idsession

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: auditEventSignInSuccess,
		Identity:  "alice",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: auditEventSignInFailure,
		Identity:  "alice",
		Error:     "invalid credential",
		Metadata:  map[string]string{"challenge": "none"},
	})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[0].Message != auditEventSignInSuccess {
		t.Fatalf("first entry = %+v", entries[0].Entry)
	}
	if entries[1].Level != zap.WarnLevel {
		t.Fatalf("failure must log at warn, got %v", entries[1].Level)
	}

	fields := entries[1].ContextMap()
	if fields["error"] != "invalid credential" {
		t.Fatalf("fields = %v", fields)
	}
	if fields["meta.challenge"] != "none" {
		t.Fatalf("metadata fields = %v", fields)
	}
}

func TestZapSinkNilLogger(t *testing.T) {
	sink := NewZapSink(nil)
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventSignOut})
}
