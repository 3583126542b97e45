package billing

import (
	"context"

	"petcare/internal/types"
)

// SubscriberStore persists Subscriber rows keyed by e-mail.
type SubscriberStore interface {
	UpsertByEmail(ctx context.Context, s *types.Subscriber) error
	// FindBySubscriptionID returns (nil, nil) when no row matches.
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*types.Subscriber, error)
	UpdateByEmail(ctx context.Context, email string, u types.SubscriberUpdate) error
}

// UserSubscriptionStore persists the single UserSubscription row per user.
type UserSubscriptionStore interface {
	Upsert(ctx context.Context, sub *types.UserSubscription) error
	// FindByUser returns (nil, nil) when the user has no row.
	FindByUser(ctx context.Context, userID string) (*types.UserSubscription, error)
	Replace(ctx context.Context, sub *types.UserSubscription) error
	Insert(ctx context.Context, sub *types.UserSubscription) error
	ApplyLifecycle(ctx context.Context, userID string, u types.UserSubscriptionUpdate) error
	ListActivePackageNames(ctx context.Context, userID string) ([]string, error)
}

// PaymentLogStore appends audit rows.
type PaymentLogStore interface {
	Append(ctx context.Context, entry *types.PaymentLog) error
}

// PackageStore resolves packages and Stripe prices.
type PackageStore interface {
	// GetPackage returns (nil, nil) for an unknown ID.
	GetPackage(ctx context.Context, id string) (*types.Package, error)
	// PackageIDForPrice returns "" when the price is not mapped.
	PackageIDForPrice(ctx context.Context, priceID string) (string, error)
}

// VerificationStore writes the specialist verification status.
type VerificationStore interface {
	SetVerificationStatus(ctx context.Context, userID string, status types.VerificationStatus) error
}

// SubscriptionProvider reads live subscription state from the payment provider.
type SubscriptionProvider interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*types.ProviderSubscription, error)
}

// VerificationNotifier announces verification status changes to downstream
// consumers.
type VerificationNotifier interface {
	PublishVerificationChanged(ctx context.Context, msg types.VerificationChangedMessage) error
}

// Metrics records reconciliation outcomes. Implementations must not block
// on delivery failures.
type Metrics interface {
	RecordWebhookEvent(ctx context.Context, eventType, outcome string)
	RecordMissingLinkage(ctx context.Context, eventType, reason string)
	RecordWriteFailure(ctx context.Context, entity string)
	RecordSecondaryFailure(ctx context.Context, effect string)
	RecordVerificationChanged(ctx context.Context, status types.VerificationStatus)
}

// Alerter raises an operator-facing alert.
type Alerter interface {
	Alert(ctx context.Context, message string, tags map[string]string)
}
