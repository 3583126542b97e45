package db

import (
	"context"

	"petcare/internal/types"
)

// PaymentLogRepo appends audit rows. There is no update or delete path.
type PaymentLogRepo struct {
	db DBTX
}

// NewPaymentLogRepo creates a PaymentLogRepo.
func NewPaymentLogRepo(db DBTX) *PaymentLogRepo {
	return &PaymentLogRepo{db: db}
}

// Append inserts entry and fills in its generated ID and timestamp.
func (r *PaymentLogRepo) Append(ctx context.Context, entry *types.PaymentLog) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO payment_logs (user_id, session_id, subscription_id, package_id,
		                           amount, currency, status, metadata, created_at)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, NOW())
		 RETURNING id, created_at`,
		entry.UserID,
		entry.SessionID,
		entry.SubscriptionID,
		entry.PackageID,
		entry.AmountMinor,
		entry.Currency,
		entry.Status,
		entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append payment log", err)
	}
	return nil
}
