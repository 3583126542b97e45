package types

// Telemetry metric names shared by the Prometheus and CloudWatch recorders.
// All components MUST use these constants.
const (
	// Metric Names
	MetricWebhookEvent          = "WebhookEvent"
	MetricWebhookMissingLinkage = "WebhookMissingLinkage"
	MetricReconcileWriteFailure = "ReconcileWriteFailure"
	MetricSecondaryFailure      = "SecondaryEffectFailure"
	MetricVerificationChanged   = "VerificationChanged"
	MetricAPILatency            = "APILatency"

	// Dimension Keys
	DimEventType = "EventType"
	DimOutcome   = "Outcome"
	DimReason    = "Reason"
	DimEntity    = "Entity"
	DimEffect    = "Effect"
	DimStatus    = "Status"

	// Metric Namespace
	MetricNamespace = "PetCareBilling"
)

// Webhook outcome dimension values.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeNoop      = "noop"
	OutcomeFailed    = "failed"
)
