package valor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/internal/trust"
	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	pkgerrors "github.com/gokselkaptan/takas-app-sub004/pkg/errors"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

// Service is the single gateway for balance mutation. Every primitive runs
// inside the caller's transaction and writes exactly one paired
// ValorTransaction row, so no balance can move without a matching record.
type Service interface {
	HoldEscrow(ctx context.Context, tx *gorm.DB, swapID, requesterID uuid.UUID, amount decimal.Decimal) error
	RefundEscrow(ctx context.Context, tx *gorm.DB, swapID, requesterID uuid.UUID, amount decimal.Decimal, entryType enums.ValorTransactionType) error
	SettleEscrow(ctx context.Context, tx *gorm.DB, input SettleEscrowInput) error
	AdjustTrust(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int) (int, error)
	LockDeposit(ctx context.Context, tx *gorm.DB, swapID, userID uuid.UUID, amount decimal.Decimal) error
	ReleaseDeposit(ctx context.Context, tx *gorm.DB, swapID, userID uuid.UUID, amount decimal.Decimal) error
	Compensate(ctx context.Context, tx *gorm.DB, swapID, reporterID uuid.UUID, amount decimal.Decimal) error

	Balance(ctx context.Context, userID uuid.UUID) (*BalanceView, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ValorTransaction, string, error)
	SwapLedger(ctx context.Context, swapID uuid.UUID) ([]models.ValorTransaction, error)
	VerifyConservation(ctx context.Context, tx *gorm.DB, swapID uuid.UUID, escrowed decimal.Decimal) error
}

// SettleEscrowInput carries the settlement credit parameters.
type SettleEscrowInput struct {
	SwapID      uuid.UUID
	RequesterID uuid.UUID
	OwnerID     uuid.UUID
	Gross       decimal.Decimal
	Fee         decimal.Decimal
	Net         decimal.Decimal
	EntryType   enums.ValorTransactionType
	Metadata    json.RawMessage
}

// BalanceView is the read model for the balance endpoint.
type BalanceView struct {
	UserID     uuid.UUID       `json:"user_id"`
	Available  decimal.Decimal `json:"available"`
	Locked     decimal.Decimal `json:"locked"`
	TrustScore int             `json:"trust_score"`
}

type service struct {
	repo Repository
}

// NewService wires a valor service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("valor repository required")
	}
	return &service{repo: repo}, nil
}

// HoldEscrow moves the offer amount from the requester's available balance
// into locked escrow and records an escrow_hold entry.
func (s *service) HoldEscrow(ctx context.Context, tx *gorm.DB, swapID, requesterID uuid.UUID, amount decimal.Decimal) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.LockAvailable(ctx, requesterID, amount)
	if err != nil {
		return fmt.Errorf("locking escrow: %w", err)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available balance does not cover the offer")
	}

	entry := &models.ValorTransaction{
		FromUserID: &requesterID,
		SwapID:     &swapID,
		Type:       enums.ValorTransactionTypeEscrowHold,
		Amount:     amount,
		NetAmount:  amount,
	}
	return repo.CreateTransaction(ctx, entry)
}

// RefundEscrow returns escrowed funds to the requester in full. entryType
// distinguishes plain refunds from suspension reclaims.
func (s *service) RefundEscrow(ctx context.Context, tx *gorm.DB, swapID, requesterID uuid.UUID, amount decimal.Decimal, entryType enums.ValorTransactionType) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if entryType != enums.ValorTransactionTypeEscrowRefund && entryType != enums.ValorTransactionTypeSuspensionReturn {
		return fmt.Errorf("entry type %q is not a refund type", entryType)
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.UnlockToAvailable(ctx, requesterID, amount)
	if err != nil {
		return fmt.Errorf("unlocking escrow: %w", err)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "escrow to refund is not locked")
	}

	entry := &models.ValorTransaction{
		ToUserID:  &requesterID,
		SwapID:    &swapID,
		Type:      entryType,
		Amount:    amount,
		NetAmount: amount,
	}
	return repo.CreateTransaction(ctx, entry)
}

// SettleEscrow burns the requester's locked escrow and credits the owner the
// net amount. The fee stays with the platform; the caller accounts for it in
// the platform counters.
func (s *service) SettleEscrow(ctx context.Context, tx *gorm.DB, input SettleEscrowInput) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if err := requirePositive(input.Gross); err != nil {
		return err
	}
	if input.Fee.IsNegative() {
		return fmt.Errorf("fee %s must not be negative", input.Fee)
	}
	if !input.Gross.Equal(input.Fee.Add(input.Net)) {
		return fmt.Errorf("settlement does not balance: %s != %s + %s", input.Gross, input.Fee, input.Net)
	}
	entryType := input.EntryType
	if entryType == "" {
		entryType = enums.ValorTransactionTypeSwapCompleted
	}
	if entryType != enums.ValorTransactionTypeSwapCompleted && entryType != enums.ValorTransactionTypeAutoCompleteRelease {
		return fmt.Errorf("entry type %q is not a settlement type", entryType)
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.DebitLocked(ctx, input.RequesterID, input.Gross)
	if err != nil {
		return fmt.Errorf("debiting escrow: %w", err)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "escrow to settle is not locked")
	}
	if err := repo.CreditAvailable(ctx, input.OwnerID, input.Net); err != nil {
		return fmt.Errorf("crediting owner: %w", err)
	}

	entry := &models.ValorTransaction{
		FromUserID: &input.RequesterID,
		ToUserID:   &input.OwnerID,
		SwapID:     &input.SwapID,
		Type:       entryType,
		Amount:     input.Gross,
		Fee:        input.Fee,
		NetAmount:  input.Net,
		Metadata:   input.Metadata,
	}
	return repo.CreateTransaction(ctx, entry)
}

// AdjustTrust sets the user's trust score to the clamped result of adding
// delta. The write is always an absolute set so replays cannot compound.
func (s *service) AdjustTrust(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int) (int, error) {
	if err := requireTx(tx); err != nil {
		return 0, err
	}
	repo := s.repo.WithTx(tx)

	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return 0, err
	}
	newScore := trust.Clamp(user.TrustScore + delta)
	if err := repo.SetTrustScore(ctx, userID, newScore); err != nil {
		return 0, fmt.Errorf("setting trust score: %w", err)
	}
	return newScore, nil
}

// LockDeposit locks the security deposit out of the user's available balance.
func (s *service) LockDeposit(ctx context.Context, tx *gorm.DB, swapID, userID uuid.UUID, amount decimal.Decimal) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.LockAvailable(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("locking deposit: %w", err)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available balance does not cover the deposit")
	}

	entry := &models.ValorTransaction{
		FromUserID: &userID,
		SwapID:     &swapID,
		Type:       enums.ValorTransactionTypeDepositLock,
		Amount:     amount,
		NetAmount:  amount,
	}
	return repo.CreateTransaction(ctx, entry)
}

// ReleaseDeposit returns a locked deposit. Deposits always come back whole;
// penalties are trust-score business, never deposit seizure.
func (s *service) ReleaseDeposit(ctx context.Context, tx *gorm.DB, swapID, userID uuid.UUID, amount decimal.Decimal) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.UnlockToAvailable(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("releasing deposit: %w", err)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "deposit to release is not locked")
	}

	entry := &models.ValorTransaction{
		ToUserID:  &userID,
		SwapID:    &swapID,
		Type:      enums.ValorTransactionTypeDepositRelease,
		Amount:    amount,
		NetAmount: amount,
	}
	return repo.CreateTransaction(ctx, entry)
}

// Compensate credits the reporter from platform funds. No user is debited;
// the entry's nil FromUserID marks it system-funded.
func (s *service) Compensate(ctx context.Context, tx *gorm.DB, swapID, reporterID uuid.UUID, amount decimal.Decimal) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)

	if err := repo.CreditAvailable(ctx, reporterID, amount); err != nil {
		return fmt.Errorf("crediting compensation: %w", err)
	}

	entry := &models.ValorTransaction{
		ToUserID:  &reporterID,
		SwapID:    &swapID,
		Type:      enums.ValorTransactionTypeCompensation,
		Amount:    amount,
		NetAmount: amount,
	}
	return repo.CreateTransaction(ctx, entry)
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (*BalanceView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &BalanceView{
		UserID:     user.ID,
		Available:  user.ValorBalance,
		Locked:     user.LockedValor,
		TrustScore: user.TrustScore,
	}, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ValorTransaction, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	entries, err := s.repo.ListByUser(ctx, userID, pagination.Params{Limit: limit, Cursor: params.Cursor})
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}

func (s *service) SwapLedger(ctx context.Context, swapID uuid.UUID) ([]models.ValorTransaction, error) {
	if swapID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "swap id is required")
	}
	return s.repo.ListBySwapID(ctx, swapID)
}

// VerifyConservation checks that the escrow held for a swap equals what left
// it. A mismatch is a corrupted ledger and must abort the transaction; it is
// never patched in place.
func (s *service) VerifyConservation(ctx context.Context, tx *gorm.DB, swapID uuid.UUID, escrowed decimal.Decimal) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	entries, err := s.repo.WithTx(tx).ListBySwapID(ctx, swapID)
	if err != nil {
		return err
	}

	held := decimal.Zero
	released := decimal.Zero
	for _, entry := range entries {
		switch entry.Type {
		case enums.ValorTransactionTypeEscrowHold:
			held = held.Add(entry.Amount)
		case enums.ValorTransactionTypeEscrowRefund,
			enums.ValorTransactionTypeSwapCompleted,
			enums.ValorTransactionTypeAutoCompleteRelease,
			enums.ValorTransactionTypeSuspensionReturn:
			released = released.Add(entry.Amount)
		}
	}

	if !held.Equal(escrowed) {
		return pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("escrow conservation violated for swap %s: held %s, expected %s", swapID, held, escrowed))
	}
	if !released.Equal(escrowed) {
		return pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("escrow conservation violated for swap %s: released %s, held %s", swapID, released, held))
	}
	return nil
}

func requireTx(tx *gorm.DB) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	return nil
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}
