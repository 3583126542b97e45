package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"petcare/internal/types"
)

// PackageRepo reads the package catalogue and the Stripe price mapping.
// Both tables are reference data maintained outside this service.
type PackageRepo struct {
	db DBTX
}

// NewPackageRepo creates a PackageRepo.
func NewPackageRepo(db DBTX) *PackageRepo {
	return &PackageRepo{db: db}
}

// GetPackage returns the package, or (nil, nil) if the ID is unknown.
func (r *PackageRepo) GetPackage(ctx context.Context, id string) (*types.Package, error) {
	var p types.Package
	err := r.db.QueryRow(ctx,
		`SELECT id, name, price FROM packages WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load package", err)
	}
	return &p, nil
}

// PackageIDForPrice maps a Stripe price ID to the internal package ID.
// It returns "" when no mapping exists.
func (r *PackageRepo) PackageIDForPrice(ctx context.Context, priceID string) (string, error) {
	var packageID string
	err := r.db.QueryRow(ctx,
		`SELECT package_id FROM stripe_price_packages WHERE stripe_price_id = $1`,
		priceID,
	).Scan(&packageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to map price to package", err)
	}
	return packageID, nil
}
