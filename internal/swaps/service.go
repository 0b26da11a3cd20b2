package swaps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/internal/catalog"
	"github.com/gokselkaptan/takas-app-sub004/internal/fees"
	"github.com/gokselkaptan/takas-app-sub004/internal/stats"
	"github.com/gokselkaptan/takas-app-sub004/internal/trust"
	"github.com/gokselkaptan/takas-app-sub004/internal/valor"
	"github.com/gokselkaptan/takas-app-sub004/pkg/config"
	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	pkgerrors "github.com/gokselkaptan/takas-app-sub004/pkg/errors"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
	"github.com/gokselkaptan/takas-app-sub004/pkg/metrics"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox"
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox/payloads"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the swap lifecycle. Every mutation runs in one transaction
// covering the status flip, the ledger entries, the audit log row and the
// outbox emission, so observers never see a half-applied transition.
type Service interface {
	CreateOffer(ctx context.Context, input CreateOfferInput) (*models.SwapRequest, error)
	AcceptOffer(ctx context.Context, swapID, actorID uuid.UUID) (*models.SwapRequest, error)
	SetupDelivery(ctx context.Context, input SetupDeliveryInput) (*DeliverySetup, error)
	RedeemDelivery(ctx context.Context, swapID, actorID uuid.UUID, code string, receivingPhotos []string) (*models.SwapRequest, error)
	ConfirmSettlement(ctx context.Context, swapID, actorID uuid.UUID) (*ConfirmResult, error)
	Cancel(ctx context.Context, input CancelInput) error
	RequestMutualCancel(ctx context.Context, swapID, actorID uuid.UUID) error
	RespondMutualCancel(ctx context.Context, swapID, actorID uuid.UUID, approve bool) error
	ForceComplete(ctx context.Context, swapID, adminID uuid.UUID, note string) error
	ForceCancelSuspended(ctx context.Context, swapID, adminID uuid.UUID) error

	GetSwap(ctx context.Context, swapID, actorID uuid.UUID) (*models.SwapRequest, error)
	GetStatusLog(ctx context.Context, swapID uuid.UUID) ([]models.SwapStatusLog, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.SwapRequest, string, error)

	// Terminate is the single escrow release path, exposed for the dispute
	// resolver which composes it inside its own transaction.
	Terminate(ctx context.Context, tx *gorm.DB, input TerminateInput) error

	AutoCancelExpired(ctx context.Context, now time.Time) (int, error)
	RemindExpiring(ctx context.Context, now time.Time) (int, error)
	AutoCompleteDelivered(ctx context.Context, now time.Time) (int, error)
}

// CreateOfferInput describes a new offer. Exactly one of OfferedValor and
// OfferedProductID must be set.
type CreateOfferInput struct {
	RequesterID      uuid.UUID
	ProductID        uuid.UUID
	OfferedValor     *decimal.Decimal
	OfferedProductID *uuid.UUID
}

// SetupDeliveryInput carries the owner's shipping arrangements.
type SetupDeliveryInput struct {
	SwapID          uuid.UUID
	ActorID         uuid.UUID
	Method          enums.DeliveryMethod
	DeliveryPointID *uuid.UUID
	Location        *string
	PackagingPhotos []string
}

// DeliverySetup returns the generated codes exactly once. The verification
// code is stored only as a hash after this response.
type DeliverySetup struct {
	Swap             *models.SwapRequest
	DeliveryCode     string
	VerificationCode string
}

// CancelInput describes a unilateral cancellation.
type CancelInput struct {
	SwapID  uuid.UUID
	ActorID uuid.UUID
	Reason  enums.CancelReason
	Note    *string
}

// ConfirmOutcome distinguishes full settlement from a one-sided item receipt.
type ConfirmOutcome string

const (
	ConfirmOutcomeSettled ConfirmOutcome = "settled"
	ConfirmOutcomePartial ConfirmOutcome = "partial_confirmation"
)

// ConfirmResult reports what a confirmation call achieved.
type ConfirmResult struct {
	Outcome ConfirmOutcome
	Swap    *models.SwapRequest
	Fee     *fees.Breakdown
}

// TerminateOutcome selects where the escrowed funds go.
type TerminateOutcome string

const (
	OutcomeSettle     TerminateOutcome = "settle"
	OutcomeRefundBoth TerminateOutcome = "refund_both"
	OutcomeCompensate TerminateOutcome = "compensate"
)

// TerminateInput parameterizes the terminal transition. Escrow, deposit and
// product releases all flow through this one path.
type TerminateInput struct {
	Swap        *models.SwapRequest
	Event       Event
	FinalStatus enums.SwapStatus
	Outcome     TerminateOutcome
	ChangedBy   *uuid.UUID
	Reason      *string

	CancelReason    enums.CancelReason
	SettleEntryType enums.ValorTransactionType
	RefundEntryType enums.ValorTransactionType
	EmitEventType   enums.OutboxEventType
	MetricsOutcome  string

	CompensationUserID *uuid.UUID
	CompensationAmount decimal.Decimal

	ExtraUpdates map[string]any
}

type service struct {
	repo     Repository
	products catalog.Repository
	ledger   valor.Service
	counters stats.Repository
	fees     *fees.Engine
	trust    *trust.Updater
	tx       txRunner
	outbox   outboxEmitter
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	cfg      config.SwapsConfig
	now      func() time.Time
}

// NewService wires the swap lifecycle service.
func NewService(
	repo Repository,
	products catalog.Repository,
	ledger valor.Service,
	counters stats.Repository,
	feeEngine *fees.Engine,
	trustUpdater *trust.Updater,
	tx txRunner,
	emitter outboxEmitter,
	settlementMetrics *metrics.SettlementMetrics,
	logg *logger.Logger,
	cfg config.SwapsConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("swap repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("valor service required")
	}
	if counters == nil {
		return nil, fmt.Errorf("counters repository required")
	}
	if feeEngine == nil {
		return nil, fmt.Errorf("fee engine required")
	}
	if trustUpdater == nil {
		return nil, fmt.Errorf("trust updater required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:     repo,
		products: products,
		ledger:   ledger,
		counters: counters,
		fees:     feeEngine,
		trust:    trustUpdater,
		tx:       tx,
		outbox:   emitter,
		metrics:  settlementMetrics,
		logg:     logg,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (s *service) CreateOffer(ctx context.Context, input CreateOfferInput) (*models.SwapRequest, error) {
	if input.RequesterID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester and product are required")
	}
	hasValor := input.OfferedValor != nil
	hasItem := input.OfferedProductID != nil
	if hasValor == hasItem {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer exactly one of valor or a product")
	}
	if hasValor && !input.OfferedValor.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offered valor must be positive")
	}

	var swap *models.SwapRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)

		product, err := products.GetProduct(ctx, input.ProductID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return err
		}
		if product.OwnerID == input.RequesterID {
			return pkgerrors.New(pkgerrors.CodeValidation, "cannot make an offer on your own listing")
		}

		ok, err := products.Reserve(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "product is not available for swap")
		}

		if hasItem {
			offered, err := products.GetProduct(ctx, *input.OfferedProductID)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound, "offered product not found")
				}
				return err
			}
			if offered.OwnerID != input.RequesterID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "offered product belongs to someone else")
			}
			ok, err := products.Reserve(ctx, *input.OfferedProductID)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "offered product is not available for swap")
			}
		}

		swap = &models.SwapRequest{
			ID:               uuid.New(),
			OwnerID:          product.OwnerID,
			RequesterID:      input.RequesterID,
			ProductID:        input.ProductID,
			OfferedProductID: input.OfferedProductID,
			PendingValor:     input.OfferedValor,
			Status:           enums.SwapStatusPending,
		}
		if err := s.repo.WithTx(tx).Create(ctx, swap); err != nil {
			return err
		}

		if hasValor {
			if err := s.ledger.HoldEscrow(ctx, tx, swap.ID, input.RequesterID, *input.OfferedValor); err != nil {
				return err
			}
		}

		if err := s.appendLog(ctx, tx, swap.ID, enums.SwapStatusPending, enums.SwapStatusPending, &input.RequesterID, strPtr("offer_created")); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSwapOffered,
			AggregateType: enums.AggregateSwapRequest,
			AggregateID:   swap.ID,
			Actor:         &outbox.ActorRef{UserID: input.RequesterID, Role: "requester"},
			Data: payloads.SwapOfferedEvent{
				SwapID:           swap.ID,
				OwnerID:          swap.OwnerID,
				RequesterID:      swap.RequesterID,
				ProductID:        swap.ProductID,
				OfferedProductID: swap.OfferedProductID,
				PendingValor:     swap.PendingValor,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return swap, nil
}

func (s *service) AcceptOffer(ctx context.Context, swapID, actorID uuid.UUID) (*models.SwapRequest, error) {
	var swap *models.SwapRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		swap, err = s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		if swap.OwnerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the product owner can accept an offer")
		}
		if _, err := SingleTarget(swap.Status, EventAccept); err != nil {
			return err
		}

		product, err := s.products.WithTx(tx).GetProduct(ctx, swap.ProductID)
		if err != nil {
			return err
		}
		deposit := product.ValorPrice.Mul(s.cfg.DepositRate).Round(2)
		tier := s.riskTierFor(s.grossAmount(swap, product))

		if err := s.ledger.LockDeposit(ctx, tx, swap.ID, swap.OwnerID, deposit); err != nil {
			return err
		}

		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, swap.ID, enums.SwapStatusPending, enums.SwapStatusAccepted, map[string]any{
			"deposit_valor": deposit,
			"risk_tier":     tier,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
		}
		swap.Status = enums.SwapStatusAccepted
		swap.DepositValor = deposit
		swap.RiskTier = tier

		if err := s.appendLog(ctx, tx, swap.ID, enums.SwapStatusPending, enums.SwapStatusAccepted, &actorID, nil); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSwapAccepted,
			AggregateType: enums.AggregateSwapRequest,
			AggregateID:   swap.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: "owner"},
			Data: payloads.SwapAcceptedEvent{
				SwapID:       swap.ID,
				OwnerID:      swap.OwnerID,
				RequesterID:  swap.RequesterID,
				DepositValor: deposit,
				RiskTier:     tier,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return swap, nil
}

func (s *service) SetupDelivery(ctx context.Context, input SetupDeliveryInput) (*DeliverySetup, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery method")
	}
	if len(input.PackagingPhotos) < 1 || len(input.PackagingPhotos) > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "between 1 and 5 packaging photos are required")
	}

	deliveryCode, err := generateCode(deliveryCodeLength)
	if err != nil {
		return nil, err
	}
	verificationCode, err := generateCode(verificationCodeLength)
	if err != nil {
		return nil, err
	}

	var setup *DeliverySetup
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.loadSwap(ctx, tx, input.SwapID)
		if err != nil {
			return err
		}
		if swap.OwnerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the product owner can set up delivery")
		}
		target, err := SingleTarget(swap.Status, EventSetupDelivery)
		if err != nil {
			return err
		}

		deadline := s.now().Add(s.cfg.DeliveryConfirmWindow)
		photos, err := json.Marshal(input.PackagingPhotos)
		if err != nil {
			return err
		}
		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, swap.ID, swap.Status, target, map[string]any{
			"delivery_method":           input.Method,
			"delivery_point_id":         input.DeliveryPointID,
			"delivery_location":         input.Location,
			"delivery_code":             deliveryCode,
			"verification_code_hash":    hashCode(verificationCode),
			"packaging_photos":          string(photos),
			"delivery_confirm_deadline": deadline,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
		}
		from := swap.Status
		swap.Status = target
		swap.DeliveryMethod = &input.Method
		swap.DeliveryConfirmDeadline = &deadline

		if err := s.appendLog(ctx, tx, swap.ID, from, target, &input.ActorID, nil); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSwapDeliverySetup,
			AggregateType: enums.AggregateSwapRequest,
			AggregateID:   swap.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: "owner"},
			Data: payloads.SwapDeliverySetupEvent{
				SwapID:           swap.ID,
				OwnerID:          swap.OwnerID,
				RequesterID:      swap.RequesterID,
				DeliveryMethod:   input.Method,
				DeliveryCode:     deliveryCode,
				VerificationCode: verificationCode,
			},
			Version: 1,
		}); err != nil {
			return err
		}
		setup = &DeliverySetup{Swap: swap, DeliveryCode: deliveryCode, VerificationCode: verificationCode}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return setup, nil
}

func (s *service) RedeemDelivery(ctx context.Context, swapID, actorID uuid.UUID, code string, receivingPhotos []string) (*models.SwapRequest, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verification code is required")
	}
	if len(receivingPhotos) > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at most 5 receiving photos are allowed")
	}

	var swap *models.SwapRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		swap, err = s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		if actorID != swap.OwnerID && actorID != swap.RequesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this swap")
		}
		if swap.VerificationCodeHash == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no delivery is awaiting verification")
		}
		if !matchCode(code, *swap.VerificationCodeHash) {
			return pkgerrors.New(pkgerrors.CodeValidation, "verification code does not match")
		}

		// First item-for-item leg parks the swap in partially_delivered; the
		// code stays live for the counter-leg and is burned on the last one.
		target := enums.SwapStatusDelivered
		if swap.IsItemForItem() && swap.Status == enums.SwapStatusAwaitingDelivery {
			target = enums.SwapStatusPartiallyDelivered
		}
		if err := ValidateTransition(swap.Status, EventDeliver, target); err != nil {
			return err
		}

		updates := map[string]any{}
		if len(receivingPhotos) > 0 {
			photos, err := json.Marshal(receivingPhotos)
			if err != nil {
				return err
			}
			updates["receiving_photos"] = string(photos)
		}
		now := s.now()
		if target == enums.SwapStatusDelivered {
			windowEnd := now.Add(s.cfg.DisputeWindow)
			updates["delivered_at"] = now
			updates["dispute_window_ends_at"] = windowEnd
			updates["auto_complete_eligible"] = true
			updates["verification_code_hash"] = nil
			swap.DeliveredAt = &now
			swap.DisputeWindowEndsAt = &windowEnd
			swap.AutoCompleteEligible = true
			swap.VerificationCodeHash = nil
		}

		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, swap.ID, swap.Status, target, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
		}
		from := swap.Status
		swap.Status = target

		if err := s.appendLog(ctx, tx, swap.ID, from, target, &actorID, nil); err != nil {
			return err
		}

		if target == enums.SwapStatusPartiallyDelivered {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSwapPartialDelivery,
				AggregateType: enums.AggregateSwapRequest,
				AggregateID:   swap.ID,
				Actor:         &outbox.ActorRef{UserID: actorID, Role: s.roleOf(swap, actorID)},
				Data:          payloads.SwapPartialDeliveryEvent{SwapID: swap.ID, ConfirmedBy: actorID},
				Version:       1,
			})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSwapDelivered,
			AggregateType: enums.AggregateSwapRequest,
			AggregateID:   swap.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: s.roleOf(swap, actorID)},
			Data: payloads.SwapDeliveredEvent{
				SwapID:              swap.ID,
				OwnerID:             swap.OwnerID,
				RequesterID:         swap.RequesterID,
				DeliveredAt:         *swap.DeliveredAt,
				DisputeWindowEndsAt: *swap.DisputeWindowEndsAt,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return swap, nil
}

func (s *service) ConfirmSettlement(ctx context.Context, swapID, actorID uuid.UUID) (*ConfirmResult, error) {
	var result *ConfirmResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		if _, err := SingleTarget(swap.Status, EventConfirm); err != nil {
			return err
		}

		if swap.IsItemForItem() {
			return s.confirmItemLeg(ctx, tx, swap, actorID, &result)
		}

		if actorID != swap.RequesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the receiving party can confirm settlement")
		}
		breakdown, err := s.settle(ctx, tx, swap, TerminateInput{
			Event:           EventConfirm,
			FinalStatus:     enums.SwapStatusCompleted,
			ChangedBy:       &actorID,
			SettleEntryType: enums.ValorTransactionTypeSwapCompleted,
			MetricsOutcome:  "confirmed",
		})
		if err != nil {
			return err
		}
		result = &ConfirmResult{Outcome: ConfirmOutcomeSettled, Swap: swap, Fee: breakdown}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// confirmItemLeg records one party's receipt confirmation on an item-for-item
// swap and settles once both flags are in.
func (s *service) confirmItemLeg(ctx context.Context, tx *gorm.DB, swap *models.SwapRequest, actorID uuid.UUID, result **ConfirmResult) error {
	var column string
	switch actorID {
	case swap.OwnerID:
		column = "owner_received_product"
		swap.OwnerReceivedProduct = true
	case swap.RequesterID:
		column = "requester_received_product"
		swap.RequesterReceivedProduct = true
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this swap")
	}

	// Same-status guarded update keeps the flag write out of disputed swaps.
	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, swap.ID, swap.Status, swap.Status, map[string]any{column: true})
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
	}

	if !swap.BothPartiesConfirmed() {
		if err := s.appendLog(ctx, tx, swap.ID, swap.Status, swap.Status, &actorID, strPtr("partial_confirmation")); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSwapPartialDelivery,
			AggregateType: enums.AggregateSwapRequest,
			AggregateID:   swap.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: s.roleOf(swap, actorID)},
			Data:          payloads.SwapPartialDeliveryEvent{SwapID: swap.ID, ConfirmedBy: actorID},
			Version:       1,
		}); err != nil {
			return err
		}
		*result = &ConfirmResult{Outcome: ConfirmOutcomePartial, Swap: swap}
		return nil
	}

	breakdown, err := s.settle(ctx, tx, swap, TerminateInput{
		Event:           EventConfirm,
		FinalStatus:     enums.SwapStatusCompleted,
		ChangedBy:       &actorID,
		SettleEntryType: enums.ValorTransactionTypeSwapCompleted,
		MetricsOutcome:  "confirmed",
	})
	if err != nil {
		return err
	}
	*result = &ConfirmResult{Outcome: ConfirmOutcomeSettled, Swap: swap, Fee: breakdown}
	return nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown cancel reason")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.loadSwap(ctx, tx, input.SwapID)
		if err != nil {
			return err
		}
		if input.ActorID != swap.OwnerID && input.ActorID != swap.RequesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this swap")
		}
		penalize := swap.Status != enums.SwapStatusPending

		if err := s.Terminate(ctx, tx, TerminateInput{
			Swap:          swap,
			Event:         EventCancel,
			FinalStatus:   enums.SwapStatusCancelled,
			Outcome:       OutcomeRefundBoth,
			ChangedBy:     &input.ActorID,
			Reason:        input.Note,
			CancelReason:  input.Reason,
			EmitEventType: enums.EventSwapCancelled,
		}); err != nil {
			return err
		}

		// Withdrawing an unanswered offer carries no reputation cost.
		if penalize {
			if err := s.recordActivity(ctx, tx, swap.ID, input.ActorID, trust.ActivityUnilateralCancel); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) RequestMutualCancel(ctx context.Context, swapID, actorID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		if actorID != swap.OwnerID && actorID != swap.RequesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this swap")
		}
		target, err := SingleTarget(swap.Status, EventRequestMutual)
		if err != nil {
			return err
		}

		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, swap.ID, swap.Status, target, map[string]any{
			"status_before_cancel_request": swap.Status,
			"cancel_requested_by":          actorID,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
		}

		if err := s.appendLog(ctx, tx, swap.ID, swap.Status, target, &actorID, strPtr("mutual_cancel_requested")); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMutualCancelRequest,
			AggregateType: enums.AggregateSwapRequest,
			AggregateID:   swap.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: s.roleOf(swap, actorID)},
			Data: payloads.MutualCancelRequestedEvent{
				SwapID:         swap.ID,
				RequestedBy:    actorID,
				CounterpartyID: otherParty(swap, actorID),
			},
			Version: 1,
		})
	})
}

func (s *service) RespondMutualCancel(ctx context.Context, swapID, actorID uuid.UUID, approve bool) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		if actorID != swap.OwnerID && actorID != swap.RequesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this swap")
		}
		if swap.Status != enums.SwapStatusCancelRequested || swap.CancelRequestedBy == nil || swap.StatusBeforeCancelRequest == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no mutual cancel request is pending")
		}
		if actorID == *swap.CancelRequestedBy {
			return pkgerrors.New(pkgerrors.CodeForbidden, "the requesting party cannot decide its own cancel request")
		}

		if approve {
			if err := s.Terminate(ctx, tx, TerminateInput{
				Swap:          swap,
				Event:         EventAcceptMutual,
				FinalStatus:   enums.SwapStatusCancelledMutual,
				Outcome:       OutcomeRefundBoth,
				ChangedBy:     &actorID,
				Reason:        strPtr("mutual_cancel_accepted"),
				CancelReason:  enums.CancelReasonMutualAgreement,
				EmitEventType: enums.EventSwapCancelled,
				ExtraUpdates: map[string]any{
					"status_before_cancel_request": nil,
					"cancel_requested_by":          nil,
				},
			}); err != nil {
				return err
			}
		} else {
			prior := *swap.StatusBeforeCancelRequest
			if err := ValidateTransition(swap.Status, EventRejectMutual, prior); err != nil {
				return err
			}
			ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, swap.ID, swap.Status, prior, map[string]any{
				"status_before_cancel_request": nil,
				"cancel_requested_by":          nil,
			})
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
			}
			if err := s.appendLog(ctx, tx, swap.ID, enums.SwapStatusCancelRequested, prior, &actorID, strPtr("mutual_cancel_rejected")); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMutualCancelResolved,
			AggregateType: enums.AggregateSwapRequest,
			AggregateID:   swap.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: s.roleOf(swap, actorID)},
			Data:          payloads.MutualCancelResolvedEvent{SwapID: swap.ID, DecidedBy: actorID, Approved: approve},
			Version:       1,
		})
	})
}

func (s *service) ForceComplete(ctx context.Context, swapID, adminID uuid.UUID, note string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		_, err = s.settle(ctx, tx, swap, TerminateInput{
			Event:           EventForceComplete,
			FinalStatus:     enums.SwapStatusCompleted,
			ChangedBy:       &adminID,
			Reason:          strPtr("forced: " + note),
			SettleEntryType: enums.ValorTransactionTypeSwapCompleted,
			MetricsOutcome:  "forced",
		})
		return err
	})
}

func (s *service) ForceCancelSuspended(ctx context.Context, swapID, adminID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		return s.Terminate(ctx, tx, TerminateInput{
			Swap:            swap,
			Event:           EventCancel,
			FinalStatus:     enums.SwapStatusCancelled,
			Outcome:         OutcomeRefundBoth,
			ChangedBy:       &adminID,
			Reason:          strPtr("account_suspended_reclaim"),
			CancelReason:    enums.CancelReasonAccountSuspended,
			RefundEntryType: enums.ValorTransactionTypeSuspensionReturn,
			EmitEventType:   enums.EventSwapCancelled,
		})
	})
}

func (s *service) GetSwap(ctx context.Context, swapID, actorID uuid.UUID) (*models.SwapRequest, error) {
	swap, err := s.repo.GetByID(ctx, swapID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "swap not found")
		}
		return nil, err
	}
	if actorID != uuid.Nil && actorID != swap.OwnerID && actorID != swap.RequesterID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this swap")
	}
	return swap, nil
}

func (s *service) GetStatusLog(ctx context.Context, swapID uuid.UUID) ([]models.SwapStatusLog, error) {
	return s.repo.ListStatusLog(ctx, swapID)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.SwapRequest, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	swaps, err := s.repo.ListByParticipant(ctx, userID, pagination.Params{Limit: limit, Cursor: params.Cursor})
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(swaps) > limit {
		swaps = swaps[:limit]
		last := swaps[len(swaps)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return swaps, next, nil
}

// Terminate applies a terminal transition and routes every escrowed unit of
// value. The conditional status flip makes the whole release exactly-once.
func (s *service) Terminate(ctx context.Context, tx *gorm.DB, input TerminateInput) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	swap := input.Swap
	if swap == nil {
		return fmt.Errorf("swap required")
	}

	switch input.Outcome {
	case OutcomeSettle:
		_, err := s.settle(ctx, tx, swap, input)
		return err
	case OutcomeRefundBoth, OutcomeCompensate:
		return s.refund(ctx, tx, swap, input)
	default:
		return fmt.Errorf("unknown terminate outcome %q", input.Outcome)
	}
}

func (s *service) settle(ctx context.Context, tx *gorm.DB, swap *models.SwapRequest, input TerminateInput) (*fees.Breakdown, error) {
	if err := ValidateTransition(swap.Status, input.Event, input.FinalStatus); err != nil {
		return nil, err
	}

	updates := map[string]any{"auto_complete_eligible": false}
	for column, value := range input.ExtraUpdates {
		updates[column] = value
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.UpdateStatus(ctx, swap.ID, swap.Status, input.FinalStatus, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "swap was settled or cancelled concurrently")
	}
	from := swap.Status
	swap.Status = input.FinalStatus
	swap.AutoCompleteEligible = false

	fee := decimal.Zero
	var breakdown *fees.Breakdown
	if swap.PendingValor != nil {
		bd, err := s.fees.Calculate(*swap.PendingValor)
		if err != nil {
			return nil, err
		}
		breakdown = &bd
		fee = bd.Fee

		metadata, err := json.Marshal(bd)
		if err != nil {
			return nil, err
		}
		if err := s.ledger.SettleEscrow(ctx, tx, valor.SettleEscrowInput{
			SwapID:      swap.ID,
			RequesterID: swap.RequesterID,
			OwnerID:     swap.OwnerID,
			Gross:       bd.Gross,
			Fee:         bd.Fee,
			Net:         bd.Net,
			EntryType:   input.SettleEntryType,
			Metadata:    metadata,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.ledger.ReleaseDeposit(ctx, tx, swap.ID, swap.OwnerID, swap.DepositValor); err != nil {
		return nil, err
	}
	if swap.PendingValor != nil {
		if err := s.ledger.VerifyConservation(ctx, tx, swap.ID, *swap.PendingValor); err != nil {
			return nil, err
		}
	}

	products := s.products.WithTx(tx)
	if ok, err := products.TransferOwnership(ctx, swap.ProductID, swap.RequesterID); err != nil {
		return nil, err
	} else if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settled product was not reserved")
	}
	if swap.IsItemForItem() {
		if ok, err := products.TransferOwnership(ctx, *swap.OfferedProductID, swap.OwnerID); err != nil {
			return nil, err
		} else if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "offered product was not reserved")
		}
	}

	if err := s.counters.WithTx(tx).RecordSettlement(ctx, fee); err != nil {
		return nil, err
	}
	if err := s.recordActivity(ctx, tx, swap.ID, swap.OwnerID, trust.ActivitySwapCompleted); err != nil {
		return nil, err
	}

	if err := s.appendLog(ctx, tx, swap.ID, from, input.FinalStatus, input.ChangedBy, input.Reason); err != nil {
		return nil, err
	}

	gross := decimal.Zero
	net := decimal.Zero
	if breakdown != nil {
		gross = breakdown.Gross
		net = breakdown.Net
	}
	var actor *outbox.ActorRef
	if input.ChangedBy != nil {
		actor = &outbox.ActorRef{UserID: *input.ChangedBy, Role: s.roleOf(swap, *input.ChangedBy)}
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSwapCompleted,
		AggregateType: enums.AggregateSwapRequest,
		AggregateID:   swap.ID,
		Actor:         actor,
		Data: payloads.SwapCompletedEvent{
			SwapID:      swap.ID,
			OwnerID:     swap.OwnerID,
			RequesterID: swap.RequesterID,
			GrossValor:  gross,
			Fee:         fee,
			NetValor:    net,
			CompletedAt: s.now(),
		},
		Version: 1,
	}); err != nil {
		return nil, err
	}

	s.metrics.IncSettled(input.MetricsOutcome)
	s.metrics.AddFees(fee)
	return breakdown, nil
}

func (s *service) refund(ctx context.Context, tx *gorm.DB, swap *models.SwapRequest, input TerminateInput) error {
	if err := ValidateTransition(swap.Status, input.Event, input.FinalStatus); err != nil {
		return err
	}

	updates := map[string]any{"auto_complete_eligible": false}
	for column, value := range input.ExtraUpdates {
		updates[column] = value
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.UpdateStatus(ctx, swap.ID, swap.Status, input.FinalStatus, updates)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was settled or cancelled concurrently")
	}
	from := swap.Status
	swap.Status = input.FinalStatus
	swap.AutoCompleteEligible = false

	if swap.PendingValor != nil {
		entryType := input.RefundEntryType
		if entryType == "" {
			entryType = enums.ValorTransactionTypeEscrowRefund
		}
		if err := s.ledger.RefundEscrow(ctx, tx, swap.ID, swap.RequesterID, *swap.PendingValor, entryType); err != nil {
			return err
		}
	}
	if err := s.ledger.ReleaseDeposit(ctx, tx, swap.ID, swap.OwnerID, swap.DepositValor); err != nil {
		return err
	}
	if swap.PendingValor != nil {
		if err := s.ledger.VerifyConservation(ctx, tx, swap.ID, *swap.PendingValor); err != nil {
			return err
		}
	}

	products := s.products.WithTx(tx)
	if _, err := products.Release(ctx, swap.ProductID); err != nil {
		return err
	}
	if swap.IsItemForItem() {
		if _, err := products.Release(ctx, *swap.OfferedProductID); err != nil {
			return err
		}
	}

	if input.Outcome == OutcomeCompensate && input.CompensationUserID != nil && input.CompensationAmount.IsPositive() {
		if err := s.ledger.Compensate(ctx, tx, swap.ID, *input.CompensationUserID, input.CompensationAmount); err != nil {
			return err
		}
	}

	if err := s.appendLog(ctx, tx, swap.ID, from, input.FinalStatus, input.ChangedBy, input.Reason); err != nil {
		return err
	}

	eventType := input.EmitEventType
	if eventType == "" {
		eventType = enums.EventSwapCancelled
	}
	var actor *outbox.ActorRef
	if input.ChangedBy != nil {
		actor = &outbox.ActorRef{UserID: *input.ChangedBy, Role: s.roleOf(swap, *input.ChangedBy)}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSwapRequest,
		AggregateID:   swap.ID,
		Actor:         actor,
		Data: payloads.SwapCancelledEvent{
			SwapID:      swap.ID,
			OwnerID:     swap.OwnerID,
			RequesterID: swap.RequesterID,
			CancelledBy: input.ChangedBy,
			Reason:      input.CancelReason,
			Status:      input.FinalStatus,
			CancelledAt: s.now(),
		},
		Version: 1,
	})
}

func (s *service) AutoCancelExpired(ctx context.Context, now time.Time) (int, error) {
	statuses := []enums.SwapStatus{
		enums.SwapStatusPending,
		enums.SwapStatusAccepted,
		enums.SwapStatusAwaitingDelivery,
	}
	cutoff := now.Add(-s.cfg.OfferTTL)
	stale, err := s.repo.ListStale(ctx, statuses, cutoff, s.batchSize())
	if err != nil {
		return 0, err
	}

	var errs error
	cancelled := 0
	for i := range stale {
		swap := stale[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			current, err := s.loadSwap(ctx, tx, swap.ID)
			if err != nil {
				return err
			}
			return s.Terminate(ctx, tx, TerminateInput{
				Swap:          current,
				Event:         EventAutoCancel,
				FinalStatus:   enums.SwapStatusCancelled,
				Outcome:       OutcomeRefundBoth,
				Reason:        strPtr("auto_cancel_timeout"),
				CancelReason:  enums.CancelReasonTimeout,
				EmitEventType: enums.EventSwapAutoCancelled,
			})
		})
		switch {
		case err == nil:
			cancelled++
		case isStateConflict(err):
			// another worker or the user got there first
		default:
			errs = multierr.Append(errs, fmt.Errorf("auto-cancel swap %s: %w", swap.ID, err))
		}
	}
	s.metrics.AddSwept("auto_cancel", cancelled)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"job": "auto_cancel", "scanned": len(stale), "cancelled": cancelled})
		s.logg.Info(logCtx, "auto-cancel sweep finished")
	}
	return cancelled, errs
}

func (s *service) RemindExpiring(ctx context.Context, now time.Time) (int, error) {
	statuses := []enums.SwapStatus{
		enums.SwapStatusPending,
		enums.SwapStatusAccepted,
		enums.SwapStatusAwaitingDelivery,
	}
	olderThan := now.Add(-s.cfg.ReminderAfter)
	newerThan := now.Add(-s.cfg.ReminderBefore)
	idle, err := s.repo.ListNearExpiry(ctx, statuses, olderThan, newerThan, s.batchSize())
	if err != nil {
		return 0, err
	}

	var errs error
	reminded := 0
	for i := range idle {
		swap := idle[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSwapExpiryReminder,
				AggregateType: enums.AggregateSwapRequest,
				AggregateID:   swap.ID,
				Data: payloads.SwapExpiryReminderEvent{
					SwapID:        swap.ID,
					Status:        swap.Status,
					TargetUserIDs: s.blockingParties(&swap),
					ExpiresAt:     swap.UpdatedAt.Add(s.cfg.OfferTTL),
				},
				Version: 1,
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remind swap %s: %w", swap.ID, err))
			continue
		}
		reminded++
	}
	s.metrics.AddSwept("expiry_reminder", reminded)
	return reminded, errs
}

func (s *service) AutoCompleteDelivered(ctx context.Context, now time.Time) (int, error) {
	tiers := []enums.RiskTier{enums.RiskTierLow}
	if s.cfg.AutoCompleteHighRisk {
		tiers = append(tiers, enums.RiskTierMedium, enums.RiskTierHigh)
	}
	due, err := s.repo.ListAutoCompletable(ctx, now, tiers, s.batchSize())
	if err != nil {
		return 0, err
	}

	var errs error
	completed := 0
	for i := range due {
		swap := due[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			current, err := s.loadSwap(ctx, tx, swap.ID)
			if err != nil {
				return err
			}
			if !current.AutoCompleteEligible {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "swap is no longer auto-complete eligible")
			}
			_, err = s.settle(ctx, tx, current, TerminateInput{
				Event:           EventAutoComplete,
				FinalStatus:     enums.SwapStatusCompleted,
				Reason:          strPtr("auto_complete_window_elapsed"),
				SettleEntryType: enums.ValorTransactionTypeAutoCompleteRelease,
				MetricsOutcome:  "auto",
			})
			return err
		})
		switch {
		case err == nil:
			completed++
		case isStateConflict(err):
			// consumed by a manual confirm or a dispute in the meantime
		default:
			errs = multierr.Append(errs, fmt.Errorf("auto-complete swap %s: %w", swap.ID, err))
		}
	}
	s.metrics.AddSwept("auto_complete", completed)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"job": "auto_complete", "scanned": len(due), "completed": completed})
		s.logg.Info(logCtx, "auto-complete sweep finished")
	}
	return completed, errs
}

func (s *service) loadSwap(ctx context.Context, tx *gorm.DB, swapID uuid.UUID) (*models.SwapRequest, error) {
	swap, err := s.repo.WithTx(tx).GetByID(ctx, swapID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "swap not found")
		}
		return nil, err
	}
	return swap, nil
}

func (s *service) appendLog(ctx context.Context, tx *gorm.DB, swapID uuid.UUID, from, to enums.SwapStatus, changedBy *uuid.UUID, reason *string) error {
	return s.repo.WithTx(tx).AppendStatusLog(ctx, &models.SwapStatusLog{
		ID:         uuid.New(),
		SwapID:     swapID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  changedBy,
		Reason:     reason,
	})
}

// recordActivity applies a trust delta and journals it to the outbox.
func (s *service) recordActivity(ctx context.Context, tx *gorm.DB, swapID, userID uuid.UUID, activity trust.Activity) error {
	delta, err := s.trust.Delta(activity)
	if err != nil {
		return err
	}
	newScore, err := s.ledger.AdjustTrust(ctx, tx, userID, delta)
	if err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventActivityRecorded,
		AggregateType: enums.AggregateSwapRequest,
		AggregateID:   swapID,
		Data: payloads.ActivityRecordedEvent{
			UserID:   userID,
			SwapID:   swapID,
			Activity: string(activity),
			Delta:    delta,
			NewScore: newScore,
		},
		Version: 1,
	})
}

// grossAmount is the value at stake, used for risk tiering. Item-for-item
// swaps are tiered on the listed product price.
func (s *service) grossAmount(swap *models.SwapRequest, product *models.Product) decimal.Decimal {
	if swap.PendingValor != nil {
		return *swap.PendingValor
	}
	return product.ValorPrice
}

func (s *service) riskTierFor(amount decimal.Decimal) enums.RiskTier {
	switch {
	case amount.GreaterThanOrEqual(s.cfg.HighRiskThreshold):
		return enums.RiskTierHigh
	case amount.GreaterThanOrEqual(s.cfg.MediumRiskThreshold):
		return enums.RiskTierMedium
	default:
		return enums.RiskTierLow
	}
}

// blockingParties names who must act before the swap times out.
func (s *service) blockingParties(swap *models.SwapRequest) []uuid.UUID {
	switch swap.Status {
	case enums.SwapStatusPending:
		return []uuid.UUID{swap.OwnerID}
	case enums.SwapStatusAccepted:
		return []uuid.UUID{swap.OwnerID}
	default:
		return []uuid.UUID{swap.OwnerID, swap.RequesterID}
	}
}

func otherParty(swap *models.SwapRequest, userID uuid.UUID) uuid.UUID {
	if userID == swap.OwnerID {
		return swap.RequesterID
	}
	return swap.OwnerID
}

func (s *service) roleOf(swap *models.SwapRequest, userID uuid.UUID) string {
	switch userID {
	case swap.OwnerID:
		return "owner"
	case swap.RequesterID:
		return "requester"
	default:
		return "admin"
	}
}

func (s *service) batchSize() int {
	if s.cfg.SweepBatchSize > 0 {
		return s.cfg.SweepBatchSize
	}
	return 100
}

func isStateConflict(err error) bool {
	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code() == pkgerrors.CodeStateConflict
}

func strPtr(s string) *string { return &s }
