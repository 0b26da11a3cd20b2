package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

// SwapRequest is the aggregate root of one exchange. Status moves only along
// the transition table in internal/swaps; rows are never deleted, terminal
// statuses are permanent records.
type SwapRequest struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID     uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	RequesterID uuid.UUID `gorm:"column:requester_id;type:uuid;not null"`

	ProductID        uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	OfferedProductID *uuid.UUID `gorm:"column:offered_product_id;type:uuid"`

	// PendingValor is the escrowed credit amount. Nil for item-for-item swaps.
	// DepositValor is fixed at acceptance and never recomputed afterwards.
	PendingValor *decimal.Decimal `gorm:"column:pending_valor;type:numeric(14,2)"`
	DepositValor decimal.Decimal  `gorm:"column:deposit_valor;type:numeric(14,2);not null;default:0"`
	RiskTier     enums.RiskTier   `gorm:"column:risk_tier;type:risk_tier;not null;default:'low'"`

	DeliveryMethod       *enums.DeliveryMethod `gorm:"column:delivery_method;type:delivery_method"`
	DeliveryPointID      *uuid.UUID            `gorm:"column:delivery_point_id;type:uuid"`
	DeliveryLocation     *string               `gorm:"column:delivery_location;type:text"`
	DeliveryCode         *string               `gorm:"column:delivery_code;type:text"`
	VerificationCodeHash *string               `gorm:"column:verification_code_hash;type:text"`

	PackagingPhotos []string `gorm:"column:packaging_photos;type:jsonb;serializer:json"`
	DeliveryPhotos  []string `gorm:"column:delivery_photos;type:jsonb;serializer:json"`
	ReceivingPhotos []string `gorm:"column:receiving_photos;type:jsonb;serializer:json"`

	// Bilateral confirmation flags for item-for-item swaps.
	OwnerReceivedProduct     bool `gorm:"column:owner_received_product;not null;default:false"`
	RequesterReceivedProduct bool `gorm:"column:requester_received_product;not null;default:false"`

	Status                    enums.SwapStatus  `gorm:"column:status;type:swap_status;not null;default:'pending'"`
	StatusBeforeCancelRequest *enums.SwapStatus `gorm:"column:status_before_cancel_request;type:swap_status"`
	CancelRequestedBy         *uuid.UUID        `gorm:"column:cancel_requested_by;type:uuid"`

	AutoCompleteEligible bool `gorm:"column:auto_complete_eligible;not null;default:false"`

	DeliveredAt             *time.Time `gorm:"column:delivered_at"`
	DisputeWindowEndsAt     *time.Time `gorm:"column:dispute_window_ends_at"`
	DeliveryConfirmDeadline *time.Time `gorm:"column:delivery_confirm_deadline"`
	CreatedAt               time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsItemForItem reports whether the swap trades goods on both sides instead of
// escrowed Valor.
func (s *SwapRequest) IsItemForItem() bool {
	return s.OfferedProductID != nil
}

// BothPartiesConfirmed reports whether both handover confirmations are in.
func (s *SwapRequest) BothPartiesConfirmed() bool {
	return s.OwnerReceivedProduct && s.RequesterReceivedProduct
}
