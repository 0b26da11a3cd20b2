package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformCounters is a singleton row of marketplace-wide totals. Increments
// happen atomically inside the settlement transaction; half of every fee
// accrues to the community pool.
type PlatformCounters struct {
	ID                  int             `gorm:"column:id;primaryKey"`
	TotalSwapsCompleted int64           `gorm:"column:total_swaps_completed;not null;default:0"`
	TotalFeesCollected  decimal.Decimal `gorm:"column:total_fees_collected;type:numeric(16,2);not null;default:0"`
	CommunityPool       decimal.Decimal `gorm:"column:community_pool;type:numeric(16,2);not null;default:0"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
