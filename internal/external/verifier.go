package external

import (
	"errors"
	"strings"
	"time"

	"petcare/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeVerifier authenticates webhook deliveries with the endpoint's signing
// secret and decodes the event envelope.
type StripeVerifier struct {
	secret    types.SecretString
	tolerance time.Duration
}

// NewStripeVerifier creates a verifier. A non-positive tolerance falls back
// to the library default of five minutes.
func NewStripeVerifier(secret types.SecretString, tolerance time.Duration) *StripeVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeVerifier{secret: secret, tolerance: tolerance}
}

// Verify checks the Stripe-Signature header against payload and returns the
// decoded event. No state is touched on failure.
func (v *StripeVerifier) Verify(payload []byte, header string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" {
		return stripe.Event{}, types.NewAppError(types.ErrCodeWebhookSignatureMissing, "missing Stripe-Signature header", nil)
	}
	if v.secret.IsZero() {
		return stripe.Event{}, types.NewAppError(types.ErrCodeWebhookSignatureInvalid, "webhook secret not configured", nil)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret.Unmask(), webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return stripe.Event{}, types.NewAppError(types.ErrCodeWebhookSignatureInvalid, "signature verification failed", err)
		}
		return stripe.Event{}, types.NewAppError(types.ErrCodeValidationInvalidPayload, "webhook body is not a valid event", err)
	}
	return event, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
