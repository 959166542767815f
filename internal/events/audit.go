package events

import (
	"context"
	"log/slog"
)

// AuditSink writes every event to the structured log.
type AuditSink struct {
	logger *slog.Logger
}

func NewAuditSink(logger *slog.Logger) *AuditSink {
	return &AuditSink{logger: logger.With(slog.String("component", "events.audit"))}
}

func (s *AuditSink) Consume(ctx context.Context, ev Event) {
	attrs := []any{
		slog.String("kind", string(ev.Kind)),
		slog.Int64("license_id", ev.LicenseID),
		slog.String("key", ev.Key),
		slog.Time("at", ev.At),
	}
	if ev.DiscordUsername != "" {
		attrs = append(attrs, slog.String("discord_username", ev.DiscordUsername))
	}
	if ev.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *ev.ExpiresAt))
	}
	s.logger.InfoContext(ctx, "license event", attrs...)
}
