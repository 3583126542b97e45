package billing

import (
	"context"
	"log/slog"

	"petcare/internal/types"
)

// secondary is a best-effort side effect. fire runs it and absorbs the
// failure, so a secondary error can never reach a handler's return value.
type secondary struct {
	effect string
	do     func(ctx context.Context) error
}

func (r *Reconciler) fire(ctx context.Context, log *slog.Logger, s secondary) {
	if err := s.do(ctx); err != nil {
		log.WarnContext(ctx, "best-effort step failed", "effect", s.effect, "error", err)
		r.metrics.RecordSecondaryFailure(ctx, s.effect)
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordWebhookEvent(context.Context, string, string) {}
func (nopMetrics) RecordMissingLinkage(context.Context, string, string) {}
func (nopMetrics) RecordWriteFailure(context.Context, string) {}
func (nopMetrics) RecordSecondaryFailure(context.Context, string) {}
func (nopMetrics) RecordVerificationChanged(context.Context, types.VerificationStatus) {}

type nopAlerter struct{}

func (nopAlerter) Alert(context.Context, string, map[string]string) {}
