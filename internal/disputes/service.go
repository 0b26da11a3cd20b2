package disputes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/internal/swaps"
	"github.com/gokselkaptan/takas-app-sub004/internal/trust"
	"github.com/gokselkaptan/takas-app-sub004/internal/valor"
	"github.com/gokselkaptan/takas-app-sub004/pkg/config"
	dbpkg "github.com/gokselkaptan/takas-app-sub004/pkg/db"
	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	pkgerrors "github.com/gokselkaptan/takas-app-sub004/pkg/errors"
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
}

// swapTerminator is the slice of the swap service a dispute resolution needs.
type swapTerminator interface {
	Terminate(ctx context.Context, tx *gorm.DB, input swaps.TerminateInput) error
}

// Service handles the dispute lifecycle. Opening a dispute freezes the parent
// swap out of settlement; resolution routes the escrow through the swap
// terminator so funds only ever move along one path.
type Service interface {
	Open(ctx context.Context, input OpenInput) (*models.DisputeReport, error)
	SubmitEvidence(ctx context.Context, disputeID, actorID uuid.UUID, evidence []string) (*models.DisputeReport, error)
	Resolve(ctx context.Context, input ResolveInput) error

	Get(ctx context.Context, disputeID uuid.UUID) (*models.DisputeReport, error)
	ListOpen(ctx context.Context, params pagination.Params) ([]models.DisputeReport, string, error)
}

// OpenInput describes a new dispute against a delivered swap.
type OpenInput struct {
	SwapID      uuid.UUID
	ReporterID  uuid.UUID
	Type        enums.DisputeType
	Description string
	Evidence    []string
}

// ResolveInput carries the admin verdict. Uphold sides with the reporter and
// terminates the swap; otherwise the swap returns to delivered with a fresh
// dispute window.
type ResolveInput struct {
	DisputeID    uuid.UUID
	AdminID      uuid.UUID
	Uphold       bool
	Compensation decimal.Decimal
	Note         string
}

type service struct {
	repo     Repository
	swapRepo swaps.Repository
	swapSvc  swapTerminator
	ledger   valor.Service
	trust    *trust.Updater
	tx       txRunner
	outbox   outboxEmitter
	metrics  *metrics.SettlementMetrics
	cfg      config.SwapsConfig
	now      func() time.Time
}

// NewService wires the dispute service.
func NewService(
	repo Repository,
	swapRepo swaps.Repository,
	swapSvc swapTerminator,
	ledger valor.Service,
	trustUpdater *trust.Updater,
	tx txRunner,
	emitter outboxEmitter,
	settlementMetrics *metrics.SettlementMetrics,
	cfg config.SwapsConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dispute repository required")
	}
	if swapRepo == nil {
		return nil, fmt.Errorf("swap repository required")
	}
	if swapSvc == nil {
		return nil, fmt.Errorf("swap terminator required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("valor service required")
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
		swapRepo: swapRepo,
		swapSvc:  swapSvc,
		ledger:   ledger,
		trust:    trustUpdater,
		tx:       tx,
		outbox:   emitter,
		metrics:  settlementMetrics,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (s *service) Open(ctx context.Context, input OpenInput) (*models.DisputeReport, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown dispute type")
	}
	if input.Description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a description is required")
	}

	var report *models.DisputeReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		swap, err := s.swapRepo.WithTx(tx).GetByID(ctx, input.SwapID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "swap not found")
			}
			return err
		}

		var reported uuid.UUID
		switch input.ReporterID {
		case swap.OwnerID:
			reported = swap.RequesterID
		case swap.RequesterID:
			reported = swap.OwnerID
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this swap")
		}

		if _, err := s.repo.WithTx(tx).GetOpenBySwapID(ctx, swap.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "a dispute is already open for this swap")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := swaps.ValidateTransition(swap.Status, swaps.EventOpenDispute, enums.SwapStatusDisputed); err != nil {
			return err
		}
		ok, err := s.swapRepo.WithTx(tx).UpdateStatus(ctx, swap.ID, swap.Status, enums.SwapStatusDisputed, map[string]any{
			"auto_complete_eligible": false,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
		}

		reason := "dispute_opened"
		if err := s.swapRepo.WithTx(tx).AppendStatusLog(ctx, &models.SwapStatusLog{
			ID:         uuid.New(),
			SwapID:     swap.ID,
			FromStatus: swap.Status,
			ToStatus:   enums.SwapStatusDisputed,
			ChangedBy:  &input.ReporterID,
			Reason:     &reason,
		}); err != nil {
			return err
		}

		deadline := s.now().Add(s.cfg.EvidenceDeadline)
		report = &models.DisputeReport{
			ID:               uuid.New(),
			SwapRequestID:    swap.ID,
			ReporterID:       input.ReporterID,
			ReportedUserID:   reported,
			Type:             input.Type,
			Description:      input.Description,
			Status:           enums.DisputeStatusOpen,
			ReporterEvidence: input.Evidence,
			EvidenceDeadline: deadline,
		}
		if err := s.repo.WithTx(tx).Create(ctx, report); err != nil {
			// racing reporters land on the partial unique index
			if dbpkg.IsUniqueViolation(err, "uq_dispute_reports_open_swap") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a dispute is already open for this swap")
			}
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeOpened,
			AggregateType: enums.AggregateDisputeReport,
			AggregateID:   report.ID,
			Actor:         &outbox.ActorRef{UserID: input.ReporterID, Role: "reporter"},
			Data: payloads.DisputeOpenedEvent{
				SwapID:           swap.ID,
				DisputeID:        report.ID,
				ReporterID:       input.ReporterID,
				ReportedUserID:   reported,
				Type:             input.Type,
				EvidenceDeadline: deadline,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) SubmitEvidence(ctx context.Context, disputeID, actorID uuid.UUID, evidence []string) (*models.DisputeReport, error) {
	if len(evidence) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "evidence is required")
	}
	if len(evidence) > 10 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at most 10 evidence items are allowed")
	}

	var report *models.DisputeReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		report, err = repo.GetByID(ctx, disputeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
			}
			return err
		}
		if report.Status != enums.DisputeStatusOpen && report.Status != enums.DisputeStatusEvidenceSubmitted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute is already resolved")
		}
		if s.now().After(report.EvidenceDeadline) {
			return pkgerrors.New(pkgerrors.CodeValidation, "evidence deadline has passed")
		}

		var column, role string
		nextStatus := report.Status
		switch actorID {
		case report.ReporterID:
			column, role = "reporter_evidence", "reporter"
			report.ReporterEvidence = append(report.ReporterEvidence, evidence...)
		case report.ReportedUserID:
			column, role = "reported_evidence", "reported"
			report.ReportedEvidence = append(report.ReportedEvidence, evidence...)
			nextStatus = enums.DisputeStatusEvidenceSubmitted
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this dispute")
		}

		merged := report.ReporterEvidence
		if column == "reported_evidence" {
			merged = report.ReportedEvidence
		}
		payload, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		ok, err := repo.UpdateStatus(ctx, report.ID, report.Status, nextStatus, map[string]any{
			column: string(payload),
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute was modified concurrently")
		}
		report.Status = nextStatus

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeEvidence,
			AggregateType: enums.AggregateDisputeReport,
			AggregateID:   report.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: role},
			Data: payloads.DisputeEvidenceEvent{
				DisputeID:   report.ID,
				SwapID:      report.SwapRequestID,
				SubmittedBy: actorID,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) error {
	if input.Compensation.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "compensation must not be negative")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		report, err := repo.GetByID(ctx, input.DisputeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
			}
			return err
		}
		if report.Status != enums.DisputeStatusOpen && report.Status != enums.DisputeStatusEvidenceSubmitted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute is already resolved")
		}

		swap, err := s.swapRepo.WithTx(tx).GetByID(ctx, report.SwapRequestID)
		if err != nil {
			return err
		}

		switch {
		case swap.Status.IsTerminal():
			if err := s.resolveSuperseded(ctx, tx, report, swap, input); err != nil {
				return err
			}
		case input.Uphold:
			if err := s.resolveUpheld(ctx, tx, report, swap, input); err != nil {
				return err
			}
		default:
			if err := s.resolveRejected(ctx, tx, report, swap, input); err != nil {
				return err
			}
		}

		outcome := "rejected"
		finalStatus := enums.DisputeStatusRejected
		if input.Uphold {
			outcome = "upheld"
			finalStatus = enums.DisputeStatusResolved
		}
		now := s.now()
		ok, err := repo.UpdateStatus(ctx, report.ID, report.Status, finalStatus, map[string]any{
			"resolution_note": input.Note,
			"resolved_by":     input.AdminID,
			"resolved_at":     now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute was modified concurrently")
		}

		s.metrics.IncDisputeResolved(outcome)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeResolved,
			AggregateType: enums.AggregateDisputeReport,
			AggregateID:   report.ID,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: "admin"},
			Data: payloads.DisputeResolvedEvent{
				DisputeID:      report.ID,
				SwapID:         swap.ID,
				ReporterID:     report.ReporterID,
				ReportedUserID: report.ReportedUserID,
				ResolvedBy:     input.AdminID,
				Status:         finalStatus,
				Outcome:        outcome,
			},
			Version: 1,
		})
	})
}

// resolveUpheld terminates the swap in the reporter's favor. Escrow and
// deposit return to their sources; the optional compensation is platform
// funded so the losing party's refund stays whole.
func (s *service) resolveUpheld(ctx context.Context, tx *gorm.DB, report *models.DisputeReport, swap *models.SwapRequest, input ResolveInput) error {
	reason := "dispute_upheld"
	if err := s.swapSvc.Terminate(ctx, tx, swaps.TerminateInput{
		Swap:               swap,
		Event:              swaps.EventResolveDispute,
		FinalStatus:        enums.SwapStatusResolved,
		Outcome:            swaps.OutcomeCompensate,
		ChangedBy:          &input.AdminID,
		Reason:             &reason,
		CancelReason:       enums.CancelReasonOther,
		CompensationUserID: &report.ReporterID,
		CompensationAmount: input.Compensation,
	}); err != nil {
		return err
	}

	return s.penalizeReported(ctx, tx, report, swap)
}

// resolveSuperseded closes a report whose parent swap already reached a
// terminal status, typically through an admin force-complete while the
// dispute was open. The swap record is final and stays untouched; an upheld
// outcome still compensates the reporter from platform funds and penalizes
// the reported party so the queue never holds an unresolvable report.
func (s *service) resolveSuperseded(ctx context.Context, tx *gorm.DB, report *models.DisputeReport, swap *models.SwapRequest, input ResolveInput) error {
	if !input.Uphold {
		return nil
	}
	if input.Compensation.IsPositive() {
		if err := s.ledger.Compensate(ctx, tx, swap.ID, report.ReporterID, input.Compensation); err != nil {
			return err
		}
	}
	return s.penalizeReported(ctx, tx, report, swap)
}

func (s *service) penalizeReported(ctx context.Context, tx *gorm.DB, report *models.DisputeReport, swap *models.SwapRequest) error {
	delta, err := s.trust.Delta(trust.ActivityDisputeAgainst)
	if err != nil {
		return err
	}
	newScore, err := s.ledger.AdjustTrust(ctx, tx, report.ReportedUserID, delta)
	if err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventActivityRecorded,
		AggregateType: enums.AggregateSwapRequest,
		AggregateID:   swap.ID,
		Data: payloads.ActivityRecordedEvent{
			UserID:   report.ReportedUserID,
			SwapID:   swap.ID,
			Activity: string(trust.ActivityDisputeAgainst),
			Delta:    delta,
			NewScore: newScore,
		},
		Version: 1,
	})
}

// resolveRejected sends the swap back to delivered with a fresh dispute
// window so the parties can still settle normally.
func (s *service) resolveRejected(ctx context.Context, tx *gorm.DB, report *models.DisputeReport, swap *models.SwapRequest, input ResolveInput) error {
	if err := swaps.ValidateTransition(swap.Status, swaps.EventResolveDispute, enums.SwapStatusDelivered); err != nil {
		return err
	}
	windowEnd := s.now().Add(s.cfg.DisputeWindow)
	ok, err := s.swapRepo.WithTx(tx).UpdateStatus(ctx, swap.ID, swap.Status, enums.SwapStatusDelivered, map[string]any{
		"dispute_window_ends_at": windowEnd,
		"auto_complete_eligible": true,
	})
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "swap was modified concurrently")
	}

	reason := "dispute_rejected"
	return s.swapRepo.WithTx(tx).AppendStatusLog(ctx, &models.SwapStatusLog{
		ID:         uuid.New(),
		SwapID:     swap.ID,
		FromStatus: swap.Status,
		ToStatus:   enums.SwapStatusDelivered,
		ChangedBy:  &input.AdminID,
		Reason:     &reason,
	})
}

func (s *service) Get(ctx context.Context, disputeID uuid.UUID) (*models.DisputeReport, error) {
	report, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, err
	}
	return report, nil
}

func (s *service) ListOpen(ctx context.Context, params pagination.Params) ([]models.DisputeReport, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	reports, err := s.repo.ListByStatuses(ctx, openStatuses, pagination.Params{Limit: limit, Cursor: params.Cursor})
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(reports) > limit {
		reports = reports[:limit]
		last := reports[len(reports)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return reports, next, nil
}
