package external

import (
	"context"

	"petcare/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// SubscriptionReader looks up live subscription state at the payment provider.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*types.ProviderSubscription, error)
}

// WebhookVerifier authenticates a raw webhook delivery and returns the event.
type WebhookVerifier interface {
	Verify(payload []byte, header string) (stripe.Event, error)
}

var (
	_ SubscriptionReader = (*StripeClient)(nil)
	_ WebhookVerifier    = (*StripeVerifier)(nil)
)
