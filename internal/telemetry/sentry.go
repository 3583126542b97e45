package telemetry

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"petcare/internal/types"
)

// SentryAlerter raises operator alerts as Sentry messages. Every alert is
// also logged, so a missing DSN still leaves a trail.
type SentryAlerter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// NewSentryAlerter captures on hub. A nil hub, or one without a client,
// reduces alerts to log lines.
func NewSentryAlerter(hub *sentry.Hub, logger *slog.Logger) *SentryAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentryAlerter{hub: hub, logger: logger}
}

func (a *SentryAlerter) Alert(ctx context.Context, message string, tags map[string]string) {
	reqID := types.GetRequestID(ctx)

	attrs := make([]any, 0, 2*len(tags)+2)
	for k, v := range tags {
		attrs = append(attrs, k, v)
	}
	if reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}
	a.logger.WarnContext(ctx, "alert: "+message, attrs...)

	if a.hub == nil || a.hub.Client() == nil {
		return
	}
	hub := a.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTags(tags)
		if reqID != "" {
			scope.SetTag("request_id", reqID)
		}
		hub.CaptureMessage(message)
	})
}
