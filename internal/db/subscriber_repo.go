package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"petcare/internal/types"
)

// SubscriberRepo persists Subscriber rows. The e-mail address is the
// uniqueness key; rows are never deleted.
type SubscriberRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriberRepo creates a SubscriberRepo.
func NewSubscriberRepo(db DBTX, logger *slog.Logger) *SubscriberRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriberRepo{db: db, logger: logger}
}

const subscriberColumns = `user_id, email, stripe_customer_id, stripe_subscription_id,
	subscribed, subscription_tier, subscription_end, updated_at`

// UpsertByEmail inserts the subscriber or overwrites the existing row with
// the same e-mail.
func (r *SubscriberRepo) UpsertByEmail(ctx context.Context, s *types.Subscriber) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscribers (user_id, email, stripe_customer_id, stripe_subscription_id,
		                          subscribed, subscription_tier, subscription_end, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (email) DO UPDATE SET
		     user_id                = EXCLUDED.user_id,
		     stripe_customer_id     = EXCLUDED.stripe_customer_id,
		     stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		     subscribed             = EXCLUDED.subscribed,
		     subscription_tier      = EXCLUDED.subscription_tier,
		     subscription_end       = EXCLUDED.subscription_end,
		     updated_at             = NOW()`,
		s.UserID,
		s.Email,
		s.StripeCustomerID,
		s.StripeSubscriptionID,
		s.Subscribed,
		s.SubscriptionTier,
		s.SubscriptionEnd,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscriber", err)
	}
	return nil
}

// FindBySubscriptionID returns the subscriber linked to a Stripe
// subscription, or (nil, nil) when none is linked.
func (r *SubscriberRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*types.Subscriber, error) {
	var s types.Subscriber
	err := r.db.QueryRow(ctx,
		`SELECT `+subscriberColumns+`
		 FROM subscribers
		 WHERE stripe_subscription_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		subscriptionID,
	).Scan(
		&s.UserID,
		&s.Email,
		&s.StripeCustomerID,
		&s.StripeSubscriptionID,
		&s.Subscribed,
		&s.SubscriptionTier,
		&s.SubscriptionEnd,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find subscriber by subscription", err)
	}
	return &s, nil
}

// UpdateByEmail applies a lifecycle update. A nil Tier keeps the stored tier.
func (r *SubscriberRepo) UpdateByEmail(ctx context.Context, email string, u types.SubscriberUpdate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscribers
		 SET subscribed        = $1,
		     subscription_end  = $2,
		     subscription_tier = COALESCE($3, subscription_tier),
		     updated_at        = NOW()
		 WHERE email = $4`,
		u.Subscribed,
		u.SubscriptionEnd,
		u.Tier,
		email,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscriber", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscriber, "subscriber not found", nil)
	}
	return nil
}
