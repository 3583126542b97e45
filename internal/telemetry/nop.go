package telemetry

import (
	"context"
	"time"

	"petcare/internal/types"
)

// NopRecorder discards every metric. Used when METRICS_BACKEND=none.
type NopRecorder struct{}

func (NopRecorder) RecordWebhookEvent(context.Context, string, string) {}
func (NopRecorder) RecordMissingLinkage(context.Context, string, string) {}
func (NopRecorder) RecordWriteFailure(context.Context, string) {}
func (NopRecorder) RecordSecondaryFailure(context.Context, string) {}
func (NopRecorder) RecordVerificationChanged(context.Context, types.VerificationStatus) {}
func (NopRecorder) RecordRequest(string, string, string, time.Duration) {}
