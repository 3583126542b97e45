package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"petcare/internal/types"
)

// UserSubscriptionRepo persists the single feature-access row per user.
type UserSubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUserSubscriptionRepo creates a UserSubscriptionRepo.
func NewUserSubscriptionRepo(db DBTX, logger *slog.Logger) *UserSubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserSubscriptionRepo{db: db, logger: logger}
}

// Upsert writes the row keyed by user_id.
func (r *UserSubscriptionRepo) Upsert(ctx context.Context, sub *types.UserSubscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_subscriptions (user_id, package_id, status, start_date, end_date, payment_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		     package_id = EXCLUDED.package_id,
		     status     = EXCLUDED.status,
		     start_date = EXCLUDED.start_date,
		     end_date   = EXCLUDED.end_date,
		     payment_id = EXCLUDED.payment_id,
		     updated_at = NOW()`,
		sub.UserID, sub.PackageID, sub.Status, sub.StartDate, sub.EndDate, sub.PaymentID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user subscription", err)
	}
	return nil
}

// FindByUser returns the user's row, or (nil, nil) when there is none.
func (r *UserSubscriptionRepo) FindByUser(ctx context.Context, userID string) (*types.UserSubscription, error) {
	var sub types.UserSubscription
	err := r.db.QueryRow(ctx,
		`SELECT user_id, package_id, status, start_date, end_date, payment_id, updated_at
		 FROM user_subscriptions
		 WHERE user_id = $1`,
		userID,
	).Scan(&sub.UserID, &sub.PackageID, &sub.Status, &sub.StartDate, &sub.EndDate, &sub.PaymentID, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user subscription", err)
	}
	return &sub, nil
}

// Replace overwrites every mutable column of an existing row. It is the
// update half of the upsert fallback.
func (r *UserSubscriptionRepo) Replace(ctx context.Context, sub *types.UserSubscription) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_subscriptions
		 SET package_id = $1, status = $2, start_date = $3, end_date = $4, payment_id = $5, updated_at = NOW()
		 WHERE user_id = $6`,
		sub.PackageID, sub.Status, sub.StartDate, sub.EndDate, sub.PaymentID, sub.UserID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to replace user subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalDB, "user subscription disappeared during replace", nil)
	}
	return nil
}

// Insert adds a row without conflict handling. It is the insert half of the
// upsert fallback.
func (r *UserSubscriptionRepo) Insert(ctx context.Context, sub *types.UserSubscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_subscriptions (user_id, package_id, status, start_date, end_date, payment_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		sub.UserID, sub.PackageID, sub.Status, sub.StartDate, sub.EndDate, sub.PaymentID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert user subscription", err)
	}
	return nil
}

// ApplyLifecycle updates status and end date for a user. A nil PackageID
// keeps the stored package. A missing row is not an error: the user may not
// have completed checkout yet.
func (r *UserSubscriptionRepo) ApplyLifecycle(ctx context.Context, userID string, u types.UserSubscriptionUpdate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_subscriptions
		 SET status     = $1,
		     end_date   = $2,
		     package_id = COALESCE($3, package_id),
		     updated_at = NOW()
		 WHERE user_id = $4`,
		u.Status, u.EndDate, u.PackageID, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update user subscription", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "no user subscription row to update", slog.String("user_id", userID))
	}
	return nil
}

// ListActivePackageNames returns the package name of every active
// subscription row for the user. Callers apply the tier policy.
func (r *UserSubscriptionRepo) ListActivePackageNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.name
		 FROM user_subscriptions us
		 JOIN packages p ON p.id = us.package_id
		 WHERE us.user_id = $1
		   AND us.status = $2`,
		userID, types.SubscriptionActive,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active subscriptions", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan active subscription", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate active subscriptions", err)
	}
	return names, nil
}
