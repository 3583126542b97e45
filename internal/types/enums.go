package types

// SubscriptionStatus is the internal lifecycle state of a UserSubscription row.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// PaymentStatus classifies a PaymentLog entry.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentUpdated   PaymentStatus = "updated"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentExpired   PaymentStatus = "expired"
)

// VerificationStatus is stored on the specialist role record. The values are
// persisted verbatim and read by the practice UI.
type VerificationStatus string

const (
	VerificationVerified   VerificationStatus = "zweryfikowany"
	VerificationUnverified VerificationStatus = "niezweryfikowany"
)

// RoleSpecialist is the role whose record carries the verification status.
const RoleSpecialist = "specialist"

// ProviderSubscriptionStatus mirrors the payment provider's subscription
// status strings that the reconciler classifies.
type ProviderSubscriptionStatus string

const (
	ProviderStatusActive            ProviderSubscriptionStatus = "active"
	ProviderStatusTrialing          ProviderSubscriptionStatus = "trialing"
	ProviderStatusCanceled          ProviderSubscriptionStatus = "canceled"
	ProviderStatusUnpaid            ProviderSubscriptionStatus = "unpaid"
	ProviderStatusPastDue           ProviderSubscriptionStatus = "past_due"
	ProviderStatusIncomplete        ProviderSubscriptionStatus = "incomplete"
	ProviderStatusIncompleteExpired ProviderSubscriptionStatus = "incomplete_expired"
	ProviderStatusPaused            ProviderSubscriptionStatus = "paused"
)

// IsActive reports whether the provider considers the subscription usable.
func (s ProviderSubscriptionStatus) IsActive() bool {
	return s == ProviderStatusActive || s == ProviderStatusTrialing
}

// IsCanceled reports whether the provider has ended the subscription.
func (s ProviderSubscriptionStatus) IsCanceled() bool {
	return s == ProviderStatusCanceled || s == ProviderStatusUnpaid
}
