package idsession

import (
	"context"

	"go.uber.org/zap"
)

// ZapSink is an [AuditSink] that writes events through a zap logger.
// Failures log at warn, everything else at info.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps logger; nil falls back to zap.NewNop.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

// Emit implements [AuditSink].
func (s *ZapSink) Emit(_ context.Context, event AuditEvent) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.Identity != "" {
		fields = append(fields, zap.String("identity", event.Identity))
	}
	if event.Stage != "" {
		fields = append(fields, zap.String("stage", event.Stage))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if event.Success {
		s.logger.Info(event.EventType, fields...)
		return
	}
	s.logger.Warn(event.EventType, fields...)
}
