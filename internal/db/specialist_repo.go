package db

import (
	"context"
	"log/slog"

	"petcare/internal/types"
)

// SpecialistRepo writes the verification status on the specialist role row.
type SpecialistRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSpecialistRepo creates a SpecialistRepo.
func NewSpecialistRepo(db DBTX, logger *slog.Logger) *SpecialistRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpecialistRepo{db: db, logger: logger}
}

// SetVerificationStatus sets (never toggles) the status. Users without a
// specialist role row are left alone and logged.
func (r *SpecialistRepo) SetVerificationStatus(ctx context.Context, userID string, status types.VerificationStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_roles
		 SET verification_status = $1
		 WHERE user_id = $2
		   AND role = $3`,
		status, userID, types.RoleSpecialist,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set verification status", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "no specialist role row for user",
			slog.String("user_id", userID),
			slog.String("status", string(status)),
		)
	}
	return nil
}
