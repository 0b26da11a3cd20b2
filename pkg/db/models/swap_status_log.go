package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

// SwapStatusLog is the append-only audit trail, one row per transition.
// ChangedBy is nil for sweeper-driven transitions. Reason carries sub-events
// such as mutual-cancel requests and forced overrides.
type SwapStatusLog struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SwapID     uuid.UUID        `gorm:"column:swap_id;type:uuid;not null"`
	FromStatus enums.SwapStatus `gorm:"column:from_status;type:swap_status;not null"`
	ToStatus   enums.SwapStatus `gorm:"column:to_status;type:swap_status;not null"`
	ChangedBy  *uuid.UUID       `gorm:"column:changed_by;type:uuid"`
	Reason     *string          `gorm:"column:reason;type:text"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}
