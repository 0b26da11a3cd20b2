package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

// SwapOfferedEvent signals a new swap offer against a listed product.
type SwapOfferedEvent struct {
	SwapID           uuid.UUID        `json:"swap_id"`
	OwnerID          uuid.UUID        `json:"owner_id"`
	RequesterID      uuid.UUID        `json:"requester_id"`
	ProductID        uuid.UUID        `json:"product_id"`
	OfferedProductID *uuid.UUID       `json:"offered_product_id,omitempty"`
	PendingValor     *decimal.Decimal `json:"pending_valor,omitempty"`
}

// SwapAcceptedEvent is emitted when the owner accepts and escrow is locked.
type SwapAcceptedEvent struct {
	SwapID       uuid.UUID       `json:"swap_id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	RequesterID  uuid.UUID       `json:"requester_id"`
	DepositValor decimal.Decimal `json:"deposit_valor"`
	RiskTier     enums.RiskTier  `json:"risk_tier"`
}

// SwapDeliverySetupEvent carries the chosen delivery method. The
// verification code travels only here; it is never stored in clear.
type SwapDeliverySetupEvent struct {
	SwapID           uuid.UUID            `json:"swap_id"`
	OwnerID          uuid.UUID            `json:"owner_id"`
	RequesterID      uuid.UUID            `json:"requester_id"`
	DeliveryMethod   enums.DeliveryMethod `json:"delivery_method"`
	DeliveryCode     string               `json:"delivery_code,omitempty"`
	VerificationCode string               `json:"verification_code,omitempty"`
}

// SwapDeliveredEvent marks the start of the dispute window.
type SwapDeliveredEvent struct {
	SwapID              uuid.UUID `json:"swap_id"`
	OwnerID             uuid.UUID `json:"owner_id"`
	RequesterID         uuid.UUID `json:"requester_id"`
	DeliveredAt         time.Time `json:"delivered_at"`
	DisputeWindowEndsAt time.Time `json:"dispute_window_ends_at"`
}

// SwapPartialDeliveryEvent reports one side of an item-for-item handover.
type SwapPartialDeliveryEvent struct {
	SwapID      uuid.UUID `json:"swap_id"`
	ConfirmedBy uuid.UUID `json:"confirmed_by"`
}

// SwapCompletedEvent is the terminal settlement payload.
type SwapCompletedEvent struct {
	SwapID      uuid.UUID       `json:"swap_id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	RequesterID uuid.UUID       `json:"requester_id"`
	GrossValor  decimal.Decimal `json:"gross_valor"`
	Fee         decimal.Decimal `json:"fee"`
	NetValor    decimal.Decimal `json:"net_valor"`
	CompletedAt time.Time       `json:"completed_at"`
}

// SwapCancelledEvent is emitted for both unilateral and mutual cancels.
type SwapCancelledEvent struct {
	SwapID      uuid.UUID          `json:"swap_id"`
	OwnerID     uuid.UUID          `json:"owner_id"`
	RequesterID uuid.UUID          `json:"requester_id"`
	CancelledBy *uuid.UUID         `json:"cancelled_by,omitempty"`
	Reason      enums.CancelReason `json:"reason"`
	Status      enums.SwapStatus   `json:"status"`
	CancelledAt time.Time          `json:"cancelled_at"`
}

// SwapExpiryReminderEvent warns that an idle swap is about to time out.
// TargetUserIDs lists the parties whose action is overdue.
type SwapExpiryReminderEvent struct {
	SwapID        uuid.UUID        `json:"swap_id"`
	Status        enums.SwapStatus `json:"status"`
	TargetUserIDs []uuid.UUID      `json:"target_user_ids"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// MutualCancelRequestedEvent asks the counterparty to approve a cancel.
type MutualCancelRequestedEvent struct {
	SwapID         uuid.UUID `json:"swap_id"`
	RequestedBy    uuid.UUID `json:"requested_by"`
	CounterpartyID uuid.UUID `json:"counterparty_id"`
}

// MutualCancelResolvedEvent reports the counterparty's decision.
type MutualCancelResolvedEvent struct {
	SwapID    uuid.UUID `json:"swap_id"`
	DecidedBy uuid.UUID `json:"decided_by"`
	Approved  bool      `json:"approved"`
}

// DisputeOpenedEvent freezes settlement for the swap.
type DisputeOpenedEvent struct {
	SwapID           uuid.UUID         `json:"swap_id"`
	DisputeID        uuid.UUID         `json:"dispute_id"`
	ReporterID       uuid.UUID         `json:"reporter_id"`
	ReportedUserID   uuid.UUID         `json:"reported_user_id"`
	Type             enums.DisputeType `json:"type"`
	EvidenceDeadline time.Time         `json:"evidence_deadline"`
}

// DisputeEvidenceEvent reports evidence attached by either party.
type DisputeEvidenceEvent struct {
	DisputeID   uuid.UUID `json:"dispute_id"`
	SwapID      uuid.UUID `json:"swap_id"`
	SubmittedBy uuid.UUID `json:"submitted_by"`
}

// DisputeResolvedEvent carries the admin verdict and where the escrow went.
type DisputeResolvedEvent struct {
	DisputeID      uuid.UUID           `json:"dispute_id"`
	SwapID         uuid.UUID           `json:"swap_id"`
	ReporterID     uuid.UUID           `json:"reporter_id"`
	ReportedUserID uuid.UUID           `json:"reported_user_id"`
	ResolvedBy     uuid.UUID           `json:"resolved_by"`
	Status         enums.DisputeStatus `json:"status"`
	Outcome        string              `json:"outcome"`
}

// ActivityRecordedEvent feeds the trust score history stream.
type ActivityRecordedEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	SwapID   uuid.UUID `json:"swap_id"`
	Activity string    `json:"activity"`
	Delta    int       `json:"delta"`
	NewScore int       `json:"new_score"`
}
