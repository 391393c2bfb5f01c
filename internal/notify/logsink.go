package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes events to the structured log. It is the default sink for
// development and for deployments without a broker.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs events at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_type", event.Type),
		zap.String("entity_id", event.EntityID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	for k, v := range event.Attributes {
		fields = append(fields, zap.String(k, v))
	}
	s.logger.Info("integration event", fields...)
	return nil
}

func (s *LogSink) Close() error { return nil }
