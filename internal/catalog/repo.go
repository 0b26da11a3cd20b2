package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

// Repository flips product availability with guarded updates. Every mutation
// is a conditional UPDATE on the current status so two swaps can never reserve
// the same listing.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Reserve(ctx context.Context, productID uuid.UUID) (bool, error)
	Release(ctx context.Context, productID uuid.UUID) (bool, error)
	TransferOwnership(ctx context.Context, productID, newOwnerID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a product status repository on the shared gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Reserve moves an active listing to reserved. Returns false when the product
// is already reserved, swapped or inactive.
func (r *repository) Reserve(ctx context.Context, productID uuid.UUID) (bool, error) {
	return r.transition(ctx, productID, enums.ProductStatusActive, enums.ProductStatusReserved)
}

// Release puts a reserved listing back on the market after a cancelled swap.
func (r *repository) Release(ctx context.Context, productID uuid.UUID) (bool, error) {
	return r.transition(ctx, productID, enums.ProductStatusReserved, enums.ProductStatusActive)
}

// TransferOwnership reassigns a swapped item to the counterparty. Only
// reserved listings can change hands; the status flips to swapped in the same
// statement.
func (r *repository) TransferOwnership(ctx context.Context, productID, newOwnerID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND status = ?", productID, enums.ProductStatusReserved).
		Updates(map[string]any{
			"owner_id": newOwnerID,
			"status":   enums.ProductStatusSwapped,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) transition(ctx context.Context, productID uuid.UUID, from, to enums.ProductStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND status = ?", productID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
