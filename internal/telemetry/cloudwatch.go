package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"petcare/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder emits one datum per call to AWS CloudWatch. Delivery
// errors are logged and dropped.
//
// Metrics emitted:
//   - WebhookEvent: Dims {EventType, Outcome}
//   - WebhookMissingLinkage: Dims {EventType, Reason}
//   - ReconcileWriteFailure: Dims {Entity}
//   - SecondaryEffectFailure: Dims {Effect}
//   - VerificationChanged: Dims {Status}
//   - APILatency: Dims {Method, Endpoint, Status}, milliseconds
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder publishes to namespace, or types.MetricNamespace when
// namespace is empty.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchRecorder) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	m.put(ctx, types.MetricWebhookEvent, 1, cwtypes.StandardUnitCount,
		dim(types.DimEventType, eventType), dim(types.DimOutcome, outcome))
}

func (m *CloudWatchRecorder) RecordMissingLinkage(ctx context.Context, eventType, reason string) {
	m.put(ctx, types.MetricWebhookMissingLinkage, 1, cwtypes.StandardUnitCount,
		dim(types.DimEventType, eventType), dim(types.DimReason, reason))
}

func (m *CloudWatchRecorder) RecordWriteFailure(ctx context.Context, entity string) {
	m.put(ctx, types.MetricReconcileWriteFailure, 1, cwtypes.StandardUnitCount,
		dim(types.DimEntity, entity))
}

func (m *CloudWatchRecorder) RecordSecondaryFailure(ctx context.Context, effect string) {
	m.put(ctx, types.MetricSecondaryFailure, 1, cwtypes.StandardUnitCount,
		dim(types.DimEffect, effect))
}

func (m *CloudWatchRecorder) RecordVerificationChanged(ctx context.Context, status types.VerificationStatus) {
	m.put(ctx, types.MetricVerificationChanged, 1, cwtypes.StandardUnitCount,
		dim(types.DimStatus, string(status)))
}

// RecordRequest emits request latency. The HTTP middleware has no context
// to hand over, so the call is bounded by its own timeout.
func (m *CloudWatchRecorder) RecordRequest(method, endpoint, status string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.put(ctx, types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds,
		dim("Method", method), dim("Endpoint", endpoint), dim(types.DimStatus, status))
}

func (m *CloudWatchRecorder) put(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record metric",
			"error", err.Error(),
			"metric", name,
		)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
