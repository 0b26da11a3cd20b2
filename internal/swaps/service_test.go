package swaps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	"github.com/gokselkaptan/takas-app-sub004/pkg/outbox"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, existing := range f.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	return f.Emit(ctx, tx, event)
}

func (f *fakeOutbox) byType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	var matched []outbox.DomainEvent
	for _, event := range f.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type fakeSwapRepo struct {
	swaps map[uuid.UUID]*models.SwapRequest
	logs  []models.SwapStatusLog
}

func newFakeSwapRepo() *fakeSwapRepo {
	return &fakeSwapRepo{swaps: map[uuid.UUID]*models.SwapRequest{}}
}

func (f *fakeSwapRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeSwapRepo) Create(ctx context.Context, swap *models.SwapRequest) error {
	stored := *swap
	f.swaps[swap.ID] = &stored
	return nil
}

func (f *fakeSwapRepo) GetByID(ctx context.Context, swapID uuid.UUID) (*models.SwapRequest, error) {
	stored, ok := f.swaps[swapID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copy := *stored
	return &copy, nil
}

func (f *fakeSwapRepo) UpdateStatus(ctx context.Context, swapID uuid.UUID, from, to enums.SwapStatus, updates map[string]any) (bool, error) {
	stored, ok := f.swaps[swapID]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	for column, value := range updates {
		switch column {
		case "deposit_valor":
			stored.DepositValor = value.(decimal.Decimal)
		case "risk_tier":
			stored.RiskTier = value.(enums.RiskTier)
		case "owner_received_product":
			stored.OwnerReceivedProduct = value.(bool)
		case "requester_received_product":
			stored.RequesterReceivedProduct = value.(bool)
		case "auto_complete_eligible":
			stored.AutoCompleteEligible = value.(bool)
		case "verification_code_hash":
			if value == nil {
				stored.VerificationCodeHash = nil
			} else {
				hash := value.(string)
				stored.VerificationCodeHash = &hash
			}
		case "delivered_at":
			at := value.(time.Time)
			stored.DeliveredAt = &at
		case "dispute_window_ends_at":
			at := value.(time.Time)
			stored.DisputeWindowEndsAt = &at
		case "status_before_cancel_request":
			if value == nil {
				stored.StatusBeforeCancelRequest = nil
			} else {
				status := value.(enums.SwapStatus)
				stored.StatusBeforeCancelRequest = &status
			}
		case "cancel_requested_by":
			if value == nil {
				stored.CancelRequestedBy = nil
			} else {
				id := value.(uuid.UUID)
				stored.CancelRequestedBy = &id
			}
		}
	}
	return true, nil
}

func (f *fakeSwapRepo) UpdateFields(ctx context.Context, swapID uuid.UUID, updates map[string]any) error {
	return nil
}

func (f *fakeSwapRepo) AppendStatusLog(ctx context.Context, entry *models.SwapStatusLog) error {
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeSwapRepo) ListStatusLog(ctx context.Context, swapID uuid.UUID) ([]models.SwapStatusLog, error) {
	var entries []models.SwapStatusLog
	for _, entry := range f.logs {
		if entry.SwapID == swapID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (f *fakeSwapRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	for _, stored := range f.swaps {
		if stored.OwnerID == userID || stored.RequesterID == userID {
			swaps = append(swaps, *stored)
		}
	}
	return swaps, nil
}

func (f *fakeSwapRepo) ListStale(ctx context.Context, statuses []enums.SwapStatus, cutoff time.Time, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	for _, stored := range f.swaps {
		for _, status := range statuses {
			if stored.Status == status && !stored.UpdatedAt.After(cutoff) {
				swaps = append(swaps, *stored)
			}
		}
	}
	return swaps, nil
}

func (f *fakeSwapRepo) ListNearExpiry(ctx context.Context, statuses []enums.SwapStatus, olderThan, newerThan time.Time, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	for _, stored := range f.swaps {
		for _, status := range statuses {
			if stored.Status == status && !stored.UpdatedAt.After(olderThan) && stored.UpdatedAt.After(newerThan) {
				swaps = append(swaps, *stored)
			}
		}
	}
	return swaps, nil
}

func (f *fakeSwapRepo) ListAutoCompletable(ctx context.Context, now time.Time, tiers []enums.RiskTier, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	for _, stored := range f.swaps {
		if stored.Status != enums.SwapStatusDelivered || !stored.AutoCompleteEligible {
			continue
		}
		if stored.DisputeWindowEndsAt == nil || stored.DisputeWindowEndsAt.After(now) {
			continue
		}
		for _, tier := range tiers {
			if stored.RiskTier == tier {
				swaps = append(swaps, *stored)
			}
		}
	}
	return swaps, nil
}

type fakeProducts struct {
	products map[uuid.UUID]*models.Product
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{products: map[uuid.UUID]*models.Product{}}
}

func (f *fakeProducts) add(ownerID uuid.UUID, price int64) uuid.UUID {
	product := &models.Product{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Title:      "listing",
		Category:   "misc",
		ValorPrice: decimal.NewFromInt(price),
		Status:     enums.ProductStatusActive,
	}
	f.products[product.ID] = product
	return product.ID
}

func (f *fakeProducts) WithTx(tx *gorm.DB) catalog.Repository { return f }

func (f *fakeProducts) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, ok := f.products[productID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copy := *product
	return &copy, nil
}

func (f *fakeProducts) flip(productID uuid.UUID, from, to enums.ProductStatus) (bool, error) {
	product, ok := f.products[productID]
	if !ok || product.Status != from {
		return false, nil
	}
	product.Status = to
	return true, nil
}

func (f *fakeProducts) Reserve(ctx context.Context, productID uuid.UUID) (bool, error) {
	return f.flip(productID, enums.ProductStatusActive, enums.ProductStatusReserved)
}

func (f *fakeProducts) Release(ctx context.Context, productID uuid.UUID) (bool, error) {
	return f.flip(productID, enums.ProductStatusReserved, enums.ProductStatusActive)
}

func (f *fakeProducts) TransferOwnership(ctx context.Context, productID, newOwnerID uuid.UUID) (bool, error) {
	product, ok := f.products[productID]
	if !ok || product.Status != enums.ProductStatusReserved {
		return false, nil
	}
	product.OwnerID = newOwnerID
	product.Status = enums.ProductStatusSwapped
	return true, nil
}

type ledgerCall struct {
	op     string
	userID uuid.UUID
	amount decimal.Decimal
	entry  enums.ValorTransactionType
}

type fakeLedger struct {
	calls     []ledgerCall
	settles   []valor.SettleEscrowInput
	trust     map[uuid.UUID]int
	holdErr   error
	verifyErr error
	verified  []uuid.UUID
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{trust: map[uuid.UUID]int{}}
}

func (f *fakeLedger) ops(op string) []ledgerCall {
	var matched []ledgerCall
	for _, call := range f.calls {
		if call.op == op {
			matched = append(matched, call)
		}
	}
	return matched
}

func (f *fakeLedger) HoldEscrow(ctx context.Context, tx *gorm.DB, swapID, requesterID uuid.UUID, amount decimal.Decimal) error {
	if f.holdErr != nil {
		return f.holdErr
	}
	f.calls = append(f.calls, ledgerCall{op: "hold", userID: requesterID, amount: amount})
	return nil
}

func (f *fakeLedger) RefundEscrow(ctx context.Context, tx *gorm.DB, swapID, requesterID uuid.UUID, amount decimal.Decimal, entryType enums.ValorTransactionType) error {
	f.calls = append(f.calls, ledgerCall{op: "refund", userID: requesterID, amount: amount, entry: entryType})
	return nil
}

func (f *fakeLedger) SettleEscrow(ctx context.Context, tx *gorm.DB, input valor.SettleEscrowInput) error {
	f.settles = append(f.settles, input)
	f.calls = append(f.calls, ledgerCall{op: "settle", userID: input.OwnerID, amount: input.Gross, entry: input.EntryType})
	return nil
}

func (f *fakeLedger) AdjustTrust(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int) (int, error) {
	f.trust[userID] += delta
	return trust.Clamp(50 + f.trust[userID]), nil
}

func (f *fakeLedger) LockDeposit(ctx context.Context, tx *gorm.DB, swapID, userID uuid.UUID, amount decimal.Decimal) error {
	f.calls = append(f.calls, ledgerCall{op: "lock_deposit", userID: userID, amount: amount})
	return nil
}

func (f *fakeLedger) ReleaseDeposit(ctx context.Context, tx *gorm.DB, swapID, userID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	f.calls = append(f.calls, ledgerCall{op: "release_deposit", userID: userID, amount: amount})
	return nil
}

func (f *fakeLedger) Compensate(ctx context.Context, tx *gorm.DB, swapID, reporterID uuid.UUID, amount decimal.Decimal) error {
	f.calls = append(f.calls, ledgerCall{op: "compensate", userID: reporterID, amount: amount})
	return nil
}

func (f *fakeLedger) Balance(ctx context.Context, userID uuid.UUID) (*valor.BalanceView, error) {
	return &valor.BalanceView{UserID: userID}, nil
}

func (f *fakeLedger) History(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ValorTransaction, string, error) {
	return nil, "", nil
}

func (f *fakeLedger) SwapLedger(ctx context.Context, swapID uuid.UUID) ([]models.ValorTransaction, error) {
	return nil, nil
}

func (f *fakeLedger) VerifyConservation(ctx context.Context, tx *gorm.DB, swapID uuid.UUID, escrowed decimal.Decimal) error {
	f.verified = append(f.verified, swapID)
	return f.verifyErr
}

type fakeCounters struct {
	completed int
	fees      []decimal.Decimal
}

func (f *fakeCounters) WithTx(tx *gorm.DB) stats.Repository { return f }

func (f *fakeCounters) RecordSettlement(ctx context.Context, fee decimal.Decimal) error {
	f.completed++
	f.fees = append(f.fees, fee)
	return nil
}

func (f *fakeCounters) Get(ctx context.Context) (*models.PlatformCounters, error) {
	return &models.PlatformCounters{}, nil
}

type fixture struct {
	svc      Service
	repo     *fakeSwapRepo
	products *fakeProducts
	ledger   *fakeLedger
	counters *fakeCounters
	outbox   *fakeOutbox
}

func testSwapsConfig() config.SwapsConfig {
	return config.SwapsConfig{
		OfferTTL:              24 * time.Hour,
		ReminderAfter:         18 * time.Hour,
		ReminderBefore:        20 * time.Hour,
		DisputeWindow:         48 * time.Hour,
		EvidenceDeadline:      48 * time.Hour,
		DeliveryConfirmWindow: 72 * time.Hour,
		DepositRate:           decimal.RequireFromString("0.10"),
		HighRiskThreshold:     decimal.NewFromInt(1000),
		MediumRiskThreshold:   decimal.NewFromInt(250),
		SweepBatchSize:        100,
	}
}

func defaultBrackets(t *testing.T) config.FeeBracketList {
	t.Helper()
	var brackets config.FeeBracketList
	if err := brackets.Decode("250:0.05,1000:0.08,inf:0.10"); err != nil {
		t.Fatalf("decoding brackets: %v", err)
	}
	return brackets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	engine, err := fees.NewEngine(defaultBrackets(t))
	if err != nil {
		t.Fatalf("building fee engine: %v", err)
	}
	updater := trust.NewUpdater(config.TrustConfig{
		CompletedDelta:        3,
		UnilateralCancelDelta: -5,
		MutualCancelDelta:     0,
		DisputeAgainstDelta:   -10,
	})

	f := &fixture{
		repo:     newFakeSwapRepo(),
		products: newFakeProducts(),
		ledger:   newFakeLedger(),
		counters: &fakeCounters{},
		outbox:   &fakeOutbox{},
	}
	svc, err := NewService(f.repo, f.products, f.ledger, f.counters, engine, updater, fakeTxRunner{}, f.outbox, nil, nil, testSwapsConfig())
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedValorSwap(t *testing.T, amount int64, status enums.SwapStatus) *models.SwapRequest {
	t.Helper()
	ownerID := uuid.New()
	productID := f.products.add(ownerID, amount)
	if status != enums.SwapStatusPending {
		if _, err := f.products.Reserve(context.Background(), productID); err != nil {
			t.Fatalf("reserving product: %v", err)
		}
	}
	pending := decimal.NewFromInt(amount)
	swap := &models.SwapRequest{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		RequesterID:  uuid.New(),
		ProductID:    productID,
		PendingValor: &pending,
		DepositValor: decimal.NewFromInt(amount / 10),
		Status:       status,
	}
	if status == enums.SwapStatusPending {
		if _, err := f.products.Reserve(context.Background(), productID); err != nil {
			t.Fatalf("reserving product: %v", err)
		}
		swap.DepositValor = decimal.Zero
	}
	if err := f.repo.Create(context.Background(), swap); err != nil {
		t.Fatalf("seeding swap: %v", err)
	}
	return swap
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	appErr, ok := err.(*pkgerrors.Error)
	if !ok {
		t.Fatalf("expected coded error, got %v", err)
	}
	if appErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, appErr.Code())
	}
}

func TestCreateOfferHoldsEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ownerID := uuid.New()
	requesterID := uuid.New()
	productID := f.products.add(ownerID, 300)
	amount := decimal.NewFromInt(200)

	swap, err := f.svc.CreateOffer(ctx, CreateOfferInput{
		RequesterID:  requesterID,
		ProductID:    productID,
		OfferedValor: &amount,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swap.Status != enums.SwapStatusPending {
		t.Fatalf("unexpected status %s", swap.Status)
	}

	holds := f.ledger.ops("hold")
	if len(holds) != 1 || !holds[0].amount.Equal(amount) || holds[0].userID != requesterID {
		t.Fatalf("escrow hold not recorded: %+v", holds)
	}
	product, _ := f.products.GetProduct(ctx, productID)
	if product.Status != enums.ProductStatusReserved {
		t.Fatalf("product not reserved, status %s", product.Status)
	}
	if len(f.outbox.byType(enums.EventSwapOffered)) != 1 {
		t.Fatal("swap_offered event missing")
	}
}

func TestCreateOfferValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ownerID := uuid.New()
	productID := f.products.add(ownerID, 300)
	amount := decimal.NewFromInt(50)
	otherProduct := f.products.add(uuid.New(), 100)

	_, err := f.svc.CreateOffer(ctx, CreateOfferInput{RequesterID: uuid.New(), ProductID: productID})
	expectCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CreateOffer(ctx, CreateOfferInput{
		RequesterID:      uuid.New(),
		ProductID:        productID,
		OfferedValor:     &amount,
		OfferedProductID: &otherProduct,
	})
	expectCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CreateOffer(ctx, CreateOfferInput{
		RequesterID:  ownerID,
		ProductID:    productID,
		OfferedValor: &amount,
	})
	expectCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateOfferRejectsReservedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.products.add(uuid.New(), 300)
	amount := decimal.NewFromInt(50)

	if _, err := f.products.Reserve(ctx, productID); err != nil {
		t.Fatalf("reserving: %v", err)
	}
	_, err := f.svc.CreateOffer(ctx, CreateOfferInput{
		RequesterID:  uuid.New(),
		ProductID:    productID,
		OfferedValor: &amount,
	})
	expectCode(t, err, pkgerrors.CodeConflict)
}

func TestAcceptOfferLocksDepositAndTiersRisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 300, enums.SwapStatusPending)

	accepted, err := f.svc.AcceptOffer(ctx, swap.ID, swap.OwnerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != enums.SwapStatusAccepted {
		t.Fatalf("unexpected status %s", accepted.Status)
	}
	// 10% of the 300 listing price
	if !accepted.DepositValor.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected deposit %s", accepted.DepositValor)
	}
	if accepted.RiskTier != enums.RiskTierMedium {
		t.Fatalf("unexpected risk tier %s", accepted.RiskTier)
	}
	locks := f.ledger.ops("lock_deposit")
	if len(locks) != 1 || locks[0].userID != swap.OwnerID {
		t.Fatalf("deposit lock not recorded: %+v", locks)
	}
}

func TestAcceptOfferOwnerOnly(t *testing.T) {
	f := newFixture(t)
	swap := f.seedValorSwap(t, 300, enums.SwapStatusPending)

	_, err := f.svc.AcceptOffer(context.Background(), swap.ID, swap.RequesterID)
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestDeliveryFlowSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)

	setup, err := f.svc.SetupDelivery(ctx, SetupDeliveryInput{
		SwapID:          swap.ID,
		ActorID:         swap.OwnerID,
		Method:          enums.DeliveryMethodHandover,
		PackagingPhotos: []string{"https://cdn.example/p1.jpg"},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if setup.VerificationCode == "" || setup.DeliveryCode == "" {
		t.Fatal("codes not returned")
	}

	delivered, err := f.svc.RedeemDelivery(ctx, swap.ID, swap.RequesterID, setup.VerificationCode, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if delivered.Status != enums.SwapStatusDelivered {
		t.Fatalf("unexpected status %s", delivered.Status)
	}
	if delivered.DisputeWindowEndsAt == nil || !delivered.AutoCompleteEligible {
		t.Fatal("dispute window not armed")
	}

	// wrong code is rejected and the right one is single use
	if _, err := f.svc.RedeemDelivery(ctx, swap.ID, swap.RequesterID, "WRONG9", nil); err == nil {
		t.Fatal("expected redeem with stale code to fail")
	}

	result, err := f.svc.ConfirmSettlement(ctx, swap.ID, swap.RequesterID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Outcome != ConfirmOutcomeSettled {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
	// fee on 200 at the 5% bracket
	if !result.Fee.Fee.Equal(decimal.NewFromInt(10)) || !result.Fee.Net.Equal(decimal.NewFromInt(190)) {
		t.Fatalf("unexpected breakdown %+v", result.Fee)
	}

	if len(f.ledger.settles) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(f.ledger.settles))
	}
	settle := f.ledger.settles[0]
	if !settle.Net.Equal(decimal.NewFromInt(190)) || settle.OwnerID != swap.OwnerID {
		t.Fatalf("settlement mismatch: %+v", settle)
	}
	if f.counters.completed != 1 || !f.counters.fees[0].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("counters not recorded: %+v", f.counters)
	}
	if f.ledger.trust[swap.OwnerID] != 3 {
		t.Fatalf("owner trust bonus missing: %+v", f.ledger.trust)
	}
	product, _ := f.products.GetProduct(ctx, swap.ProductID)
	if product.OwnerID != swap.RequesterID || product.Status != enums.ProductStatusSwapped {
		t.Fatalf("product not transferred: %+v", product)
	}
}

func TestConfirmSettlementIsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)

	setup, err := f.svc.SetupDelivery(ctx, SetupDeliveryInput{
		SwapID:          swap.ID,
		ActorID:         swap.OwnerID,
		Method:          enums.DeliveryMethodCourier,
		PackagingPhotos: []string{"https://cdn.example/p1.jpg"},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := f.svc.RedeemDelivery(ctx, swap.ID, swap.RequesterID, setup.VerificationCode, nil); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := f.svc.ConfirmSettlement(ctx, swap.ID, swap.RequesterID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err = f.svc.ConfirmSettlement(ctx, swap.ID, swap.RequesterID)
	expectCode(t, err, pkgerrors.CodeStateConflict)
	if len(f.ledger.settles) != 1 {
		t.Fatalf("settlement ran twice: %d entries", len(f.ledger.settles))
	}
}

func TestSettlementChecksEscrowConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusDelivered)

	if _, err := f.svc.ConfirmSettlement(ctx, swap.ID, swap.RequesterID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(f.ledger.verified) != 1 || f.ledger.verified[0] != swap.ID {
		t.Fatalf("expected conservation check on settle, got %v", f.ledger.verified)
	}
}

func TestSettlementAbortsOnConservationMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusDelivered)
	f.ledger.verifyErr = pkgerrors.New(pkgerrors.CodeInternal, "escrow conservation violated")

	_, err := f.svc.ConfirmSettlement(ctx, swap.ID, swap.RequesterID)
	expectCode(t, err, pkgerrors.CodeInternal)
	if f.counters.completed != 0 {
		t.Fatal("settlement side effects ran past a corrupted ledger")
	}
}

func TestRefundChecksEscrowConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)

	if err := f.svc.Cancel(ctx, CancelInput{
		SwapID:  swap.ID,
		ActorID: swap.RequesterID,
		Reason:  enums.CancelReasonChangedMind,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(f.ledger.verified) != 1 || f.ledger.verified[0] != swap.ID {
		t.Fatalf("expected conservation check on refund, got %v", f.ledger.verified)
	}
}

func TestItemForItemPartialConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ownerID := uuid.New()
	requesterID := uuid.New()
	productID := f.products.add(ownerID, 400)
	offeredID := f.products.add(requesterID, 350)
	if _, err := f.products.Reserve(ctx, productID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := f.products.Reserve(ctx, offeredID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	swap := &models.SwapRequest{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		RequesterID:      requesterID,
		ProductID:        productID,
		OfferedProductID: &offeredID,
		Status:           enums.SwapStatusDelivered,
	}
	if err := f.repo.Create(ctx, swap); err != nil {
		t.Fatalf("seed: %v", err)
	}

	result, err := f.svc.ConfirmSettlement(ctx, swap.ID, requesterID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if result.Outcome != ConfirmOutcomePartial {
		t.Fatalf("expected partial outcome, got %s", result.Outcome)
	}
	if len(f.ledger.settles) != 0 {
		t.Fatal("settled on a one-sided confirmation")
	}

	result, err = f.svc.ConfirmSettlement(ctx, swap.ID, ownerID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if result.Outcome != ConfirmOutcomeSettled {
		t.Fatalf("expected settled outcome, got %s", result.Outcome)
	}
	if result.Fee != nil {
		t.Fatal("item-for-item settlement must carry no fee")
	}
	if f.counters.completed != 1 || !f.counters.fees[0].IsZero() {
		t.Fatalf("counters mismatch: %+v", f.counters)
	}

	// items crossed over
	listed, _ := f.products.GetProduct(ctx, productID)
	offered, _ := f.products.GetProduct(ctx, offeredID)
	if listed.OwnerID != requesterID || offered.OwnerID != ownerID {
		t.Fatal("products did not change hands")
	}
}

func TestCancelRefundsAndPenalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)

	err := f.svc.Cancel(ctx, CancelInput{
		SwapID:  swap.ID,
		ActorID: swap.RequesterID,
		Reason:  enums.CancelReasonChangedMind,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	refunds := f.ledger.ops("refund")
	if len(refunds) != 1 || refunds[0].entry != enums.ValorTransactionTypeEscrowRefund {
		t.Fatalf("refund not recorded: %+v", refunds)
	}
	if !refunds[0].amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("refund amount %s", refunds[0].amount)
	}
	releases := f.ledger.ops("release_deposit")
	if len(releases) != 1 {
		t.Fatalf("deposit not released: %+v", releases)
	}
	if f.ledger.trust[swap.RequesterID] != -5 {
		t.Fatalf("cancel penalty missing: %+v", f.ledger.trust)
	}
	product, _ := f.products.GetProduct(ctx, swap.ProductID)
	if product.Status != enums.ProductStatusActive {
		t.Fatalf("product not back on market: %s", product.Status)
	}
}

func TestWithdrawPendingOfferHasNoPenalty(t *testing.T) {
	f := newFixture(t)
	swap := f.seedValorSwap(t, 200, enums.SwapStatusPending)

	err := f.svc.Cancel(context.Background(), CancelInput{
		SwapID:  swap.ID,
		ActorID: swap.RequesterID,
		Reason:  enums.CancelReasonChangedMind,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(f.ledger.trust) != 0 {
		t.Fatalf("pending withdrawal must not touch trust: %+v", f.ledger.trust)
	}
}

func TestMutualCancelIsTrustNeutral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)

	if err := f.svc.RequestMutualCancel(ctx, swap.ID, swap.RequesterID); err != nil {
		t.Fatalf("request: %v", err)
	}

	// the requesting party cannot decide its own request
	err := f.svc.RespondMutualCancel(ctx, swap.ID, swap.RequesterID, true)
	expectCode(t, err, pkgerrors.CodeForbidden)

	if err := f.svc.RespondMutualCancel(ctx, swap.ID, swap.OwnerID, true); err != nil {
		t.Fatalf("respond: %v", err)
	}

	stored, _ := f.repo.GetByID(ctx, swap.ID)
	if stored.Status != enums.SwapStatusCancelledMutual {
		t.Fatalf("unexpected status %s", stored.Status)
	}
	if len(f.ledger.ops("refund")) != 1 {
		t.Fatal("escrow not refunded")
	}
	if len(f.ledger.trust) != 0 {
		t.Fatalf("mutual cancel must not touch trust: %+v", f.ledger.trust)
	}
}

func TestRejectMutualCancelRestoresPriorStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	swap := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)

	if err := f.svc.RequestMutualCancel(ctx, swap.ID, swap.OwnerID); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := f.svc.RespondMutualCancel(ctx, swap.ID, swap.RequesterID, false); err != nil {
		t.Fatalf("respond: %v", err)
	}

	stored, _ := f.repo.GetByID(ctx, swap.ID)
	if stored.Status != enums.SwapStatusAccepted {
		t.Fatalf("prior status not restored, got %s", stored.Status)
	}
	if stored.CancelRequestedBy != nil || stored.StatusBeforeCancelRequest != nil {
		t.Fatal("cancel request markers not cleared")
	}
	if len(f.ledger.ops("refund")) != 0 {
		t.Fatal("rejected request must not move funds")
	}
}

func TestForceCancelSuspendedUsesSuspensionEntries(t *testing.T) {
	f := newFixture(t)
	swap := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)

	if err := f.svc.ForceCancelSuspended(context.Background(), swap.ID, uuid.New()); err != nil {
		t.Fatalf("force cancel: %v", err)
	}
	refunds := f.ledger.ops("refund")
	if len(refunds) != 1 || refunds[0].entry != enums.ValorTransactionTypeSuspensionReturn {
		t.Fatalf("suspension return entry missing: %+v", refunds)
	}
}

func TestAutoCancelExpiredSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	stale := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)
	f.repo.swaps[stale.ID].UpdatedAt = now.Add(-25 * time.Hour)

	fresh := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)
	f.repo.swaps[fresh.ID].UpdatedAt = now.Add(-1 * time.Hour)

	count, err := f.svc.AutoCancelExpired(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 cancellation, got %d", count)
	}

	stored, _ := f.repo.GetByID(ctx, stale.ID)
	if stored.Status != enums.SwapStatusCancelled {
		t.Fatalf("stale swap not cancelled: %s", stored.Status)
	}
	untouched, _ := f.repo.GetByID(ctx, fresh.ID)
	if untouched.Status != enums.SwapStatusAccepted {
		t.Fatalf("fresh swap touched: %s", untouched.Status)
	}
	if len(f.outbox.byType(enums.EventSwapAutoCancelled)) != 1 {
		t.Fatal("auto-cancel event missing")
	}
	if len(f.ledger.trust) != 0 {
		t.Fatalf("timeouts must not penalize trust: %+v", f.ledger.trust)
	}

	// a second sweep finds nothing new
	count, err = f.svc.AutoCancelExpired(ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep cancelled %d", count)
	}
}

func TestRemindExpiringDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	idle := f.seedValorSwap(t, 200, enums.SwapStatusAccepted)
	f.repo.swaps[idle.ID].UpdatedAt = now.Add(-19 * time.Hour)

	count, err := f.svc.RemindExpiring(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reminder, got %d", count)
	}

	// concurrent or repeated runs must not double-remind
	if _, err := f.svc.RemindExpiring(ctx, now); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(f.outbox.byType(enums.EventSwapExpiryReminder)) != 1 {
		t.Fatal("reminder emitted twice")
	}
}

func TestAutoCompleteDeliveredSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-1 * time.Hour)

	swap := f.seedValorSwap(t, 200, enums.SwapStatusDelivered)
	stored := f.repo.swaps[swap.ID]
	stored.AutoCompleteEligible = true
	stored.DisputeWindowEndsAt = &past
	stored.RiskTier = enums.RiskTierLow

	gated := f.seedValorSwap(t, 1500, enums.SwapStatusDelivered)
	gatedStored := f.repo.swaps[gated.ID]
	gatedStored.AutoCompleteEligible = true
	gatedStored.DisputeWindowEndsAt = &past
	gatedStored.RiskTier = enums.RiskTierHigh

	count, err := f.svc.AutoCompleteDelivered(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 completion, got %d", count)
	}

	completed, _ := f.repo.GetByID(ctx, swap.ID)
	if completed.Status != enums.SwapStatusCompleted {
		t.Fatalf("swap not completed: %s", completed.Status)
	}
	if len(f.ledger.settles) != 1 || f.ledger.settles[0].EntryType != enums.ValorTransactionTypeAutoCompleteRelease {
		t.Fatalf("auto-complete entry type mismatch: %+v", f.ledger.settles)
	}
	highRisk, _ := f.repo.GetByID(ctx, gated.ID)
	if highRisk.Status != enums.SwapStatusDelivered {
		t.Fatalf("high risk swap settled without the flag: %s", highRisk.Status)
	}

	// replay finds nothing
	count, err = f.svc.AutoCompleteDelivered(ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep completed %d", count)
	}
}
