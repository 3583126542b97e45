package types

import "time"

// VerificationChangedMessage is the SQS payload published whenever the
// reconciler writes a specialist's verification status. The e-mail worker
// consumes it to notify the specialist.
type VerificationChangedMessage struct {
	MessageID string             `json:"message_id"`
	UserID    string             `json:"user_id"`
	Status    VerificationStatus `json:"status"`
	Reason    string             `json:"reason"`
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	PackageID string             `json:"package_id,omitempty"`
	ChangedAt time.Time          `json:"changed_at"`

	// Observability
	TraceID string `json:"trace_id"`
}
