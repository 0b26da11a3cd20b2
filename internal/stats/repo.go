package stats

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
)

// countersRowID is the singleton row seeded by the migration.
const countersRowID = 1

// Repository accrues marketplace-wide totals. RecordSettlement runs inside
// the settlement transaction, so the counters can never drift from the ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	RecordSettlement(ctx context.Context, fee decimal.Decimal) error
	Get(ctx context.Context) (*models.PlatformCounters, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the counters repository on the shared gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// RecordSettlement bumps the completion count and accrues the fee. Half of
// every fee funds the community pool; item-for-item swaps settle with a zero
// fee and only move the counter.
func (r *repository) RecordSettlement(ctx context.Context, fee decimal.Decimal) error {
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	poolShare := fee.Div(decimal.NewFromInt(2)).Round(2)

	result := r.db.WithContext(ctx).
		Model(&models.PlatformCounters{}).
		Where("id = ?", countersRowID).
		Updates(map[string]any{
			"total_swaps_completed": gorm.Expr("total_swaps_completed + 1"),
			"total_fees_collected":  gorm.Expr("total_fees_collected + ?", fee),
			"community_pool":        gorm.Expr("community_pool + ?", poolShare),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Get(ctx context.Context) (*models.PlatformCounters, error) {
	var counters models.PlatformCounters
	err := r.db.WithContext(ctx).
		Where("id = ?", countersRowID).
		First(&counters).Error
	if err != nil {
		return nil, err
	}
	return &counters, nil
}
