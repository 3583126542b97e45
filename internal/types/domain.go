package types

import "time"

// Subscriber identifies a paying user by e-mail and Stripe customer.
// At most one row exists per e-mail address.
type Subscriber struct {
	UserID               string     `json:"user_id" db:"user_id"`
	Email                string     `json:"email" db:"email"`
	StripeCustomerID     string     `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"-" db:"stripe_subscription_id"`
	Subscribed           bool       `json:"subscribed" db:"subscribed"`
	SubscriptionTier     *string    `json:"subscription_tier,omitempty" db:"subscription_tier"`
	SubscriptionEnd      *time.Time `json:"subscription_end,omitempty" db:"subscription_end"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// SubscriberUpdate carries the fields a subscription lifecycle event rewrites.
// A nil Tier leaves the stored tier untouched.
type SubscriberUpdate struct {
	Subscribed      bool
	SubscriptionEnd *time.Time
	Tier            *string
}

// UserSubscription is the internal record that drives feature access.
// At most one row exists per user.
type UserSubscription struct {
	UserID    string             `json:"user_id" db:"user_id"`
	PackageID string             `json:"package_id" db:"package_id"`
	Status    SubscriptionStatus `json:"status" db:"status"`
	StartDate time.Time          `json:"start_date" db:"start_date"`
	EndDate   *time.Time         `json:"end_date,omitempty" db:"end_date"`
	PaymentID string             `json:"payment_id" db:"payment_id"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// UserSubscriptionUpdate carries the fields a lifecycle event rewrites.
// A nil PackageID leaves the stored package untouched.
type UserSubscriptionUpdate struct {
	Status    SubscriptionStatus
	EndDate   *time.Time
	PackageID *string
}

// PaymentLog is one append-only audit entry.
type PaymentLog struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	SessionID      string          `json:"session_id,omitempty" db:"session_id"`
	SubscriptionID string          `json:"subscription_id,omitempty" db:"subscription_id"`
	PackageID      *string         `json:"package_id,omitempty" db:"package_id"`
	AmountMinor    int64           `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	Status         PaymentStatus   `json:"status" db:"status"`
	Metadata       PaymentMetadata `json:"metadata" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Package is read-only reference data describing a subscription tier.
type Package struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Price int64  `json:"price" db:"price"`
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ProviderSubscription is the subset of the payment provider's subscription
// object the reconciler consults during checkout.
type ProviderSubscription struct {
	ID               string
	Status           ProviderSubscriptionStatus
	CurrentPeriodEnd *time.Time
}
