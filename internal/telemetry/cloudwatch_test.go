package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petcare/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assertDimension(t *testing.T, dims []cwtypes.Dimension, name, value string) {
	t.Helper()
	for _, d := range dims {
		if *d.Name == name {
			assert.Equal(t, value, *d.Value, "dimension %s", name)
			return
		}
	}
	t.Errorf("dimension %q not found", name)
}

func TestCloudWatchRecorder_WebhookEvent(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", discardLogger())

	rec.RecordWebhookEvent(context.Background(), "customer.subscription.deleted", types.OutcomeProcessed)

	require.Len(t, cw.calls, 1)
	input := cw.calls[0]
	assert.Equal(t, types.MetricNamespace, *input.Namespace)
	require.Len(t, input.MetricData, 1)

	datum := input.MetricData[0]
	assert.Equal(t, types.MetricWebhookEvent, *datum.MetricName)
	assert.Equal(t, 1.0, *datum.Value)
	assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)
	assertDimension(t, datum.Dimensions, types.DimEventType, "customer.subscription.deleted")
	assertDimension(t, datum.Dimensions, types.DimOutcome, types.OutcomeProcessed)
}

func TestCloudWatchRecorder_MetricNamesAndDimensions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		record func(*CloudWatchRecorder)
		metric string
		dim    string
		value  string
	}{
		{
			name:   "missing linkage",
			record: func(r *CloudWatchRecorder) { r.RecordMissingLinkage(ctx, "checkout.session.completed", "missing_metadata") },
			metric: types.MetricWebhookMissingLinkage,
			dim:    types.DimReason,
			value:  "missing_metadata",
		},
		{
			name:   "write failure",
			record: func(r *CloudWatchRecorder) { r.RecordWriteFailure(ctx, "user_subscription") },
			metric: types.MetricReconcileWriteFailure,
			dim:    types.DimEntity,
			value:  "user_subscription",
		},
		{
			name:   "secondary failure",
			record: func(r *CloudWatchRecorder) { r.RecordSecondaryFailure(ctx, "notify") },
			metric: types.MetricSecondaryFailure,
			dim:    types.DimEffect,
			value:  "notify",
		},
		{
			name:   "verification changed",
			record: func(r *CloudWatchRecorder) { r.RecordVerificationChanged(ctx, types.VerificationUnverified) },
			metric: types.MetricVerificationChanged,
			dim:    types.DimStatus,
			value:  string(types.VerificationUnverified),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cw := &mockCloudWatchClient{}
			tt.record(NewCloudWatchRecorder(cw, "Custom", discardLogger()))

			require.Len(t, cw.calls, 1)
			assert.Equal(t, "Custom", *cw.calls[0].Namespace)
			datum := cw.calls[0].MetricData[0]
			assert.Equal(t, tt.metric, *datum.MetricName)
			assertDimension(t, datum.Dimensions, tt.dim, tt.value)
		})
	}
}

func TestCloudWatchRecorder_RequestLatency(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", discardLogger())

	rec.RecordRequest("POST", "/webhooks/stripe", "400", 250*time.Millisecond)

	require.Len(t, cw.calls, 1)
	datum := cw.calls[0].MetricData[0]
	assert.Equal(t, types.MetricAPILatency, *datum.MetricName)
	assert.Equal(t, 250.0, *datum.Value)
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, datum.Unit)
	assertDimension(t, datum.Dimensions, "Endpoint", "/webhooks/stripe")
	assertDimension(t, datum.Dimensions, types.DimStatus, "400")
}

func TestCloudWatchRecorder_ErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	rec := NewCloudWatchRecorder(cw, "", discardLogger())

	assert.NotPanics(t, func() {
		rec.RecordWriteFailure(context.Background(), "subscriber")
	})
	assert.Len(t, cw.calls, 1)
}
