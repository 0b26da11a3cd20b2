package swaps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

func setupSwapTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	swapRequests := `
CREATE TABLE IF NOT EXISTS swap_requests (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  requester_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  offered_product_id TEXT,
  pending_valor NUMERIC,
  deposit_valor NUMERIC NOT NULL DEFAULT 0,
  risk_tier TEXT NOT NULL DEFAULT 'low',
  delivery_method TEXT,
  delivery_point_id TEXT,
  delivery_location TEXT,
  delivery_code TEXT,
  verification_code_hash TEXT,
  packaging_photos TEXT,
  delivery_photos TEXT,
  receiving_photos TEXT,
  owner_received_product INTEGER NOT NULL DEFAULT 0,
  requester_received_product INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  status_before_cancel_request TEXT,
  cancel_requested_by TEXT,
  auto_complete_eligible INTEGER NOT NULL DEFAULT 0,
  delivered_at DATETIME,
  dispute_window_ends_at DATETIME,
  delivery_confirm_deadline DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	statusLogs := `
CREATE TABLE IF NOT EXISTS swap_status_logs (
  id TEXT PRIMARY KEY,
  swap_id TEXT NOT NULL,
  from_status TEXT NOT NULL,
  to_status TEXT NOT NULL,
  changed_by TEXT,
  reason TEXT,
  created_at DATETIME
);`
	disputes := `
CREATE TABLE IF NOT EXISTS dispute_reports (
  id TEXT PRIMARY KEY,
  swap_request_id TEXT NOT NULL,
  reporter_id TEXT NOT NULL,
  reported_user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  description TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  reporter_evidence TEXT,
  reported_evidence TEXT,
  evidence_deadline DATETIME NOT NULL,
  resolution_note TEXT,
  resolved_by TEXT,
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(swapRequests).Error)
	require.NoError(t, db.Exec(statusLogs).Error)
	require.NoError(t, db.Exec(disputes).Error)
	return db
}

func seedSwap(t *testing.T, db *gorm.DB, status enums.SwapStatus) *models.SwapRequest {
	t.Helper()
	amount := decimal.NewFromInt(200)
	swap := models.SwapRequest{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		RequesterID:  uuid.New(),
		ProductID:    uuid.New(),
		PendingValor: &amount,
		Status:       status,
	}
	require.NoError(t, db.Create(&swap).Error)
	return &swap
}

func backdateSwap(t *testing.T, db *gorm.DB, swapID uuid.UUID, updatedAt time.Time) {
	t.Helper()
	require.NoError(t, db.Exec(`UPDATE swap_requests SET updated_at = ? WHERE id = ?`, updatedAt, swapID).Error)
}

func TestUpdateStatusAppliesExactlyOnce(t *testing.T) {
	db := setupSwapTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	swap := seedSwap(t, db, enums.SwapStatusPending)

	ok, err := repo.UpdateStatus(ctx, swap.ID, enums.SwapStatusPending, enums.SwapStatusAccepted, map[string]any{
		"deposit_valor": decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// a second racer sees zero rows
	ok, err = repo.UpdateStatus(ctx, swap.ID, enums.SwapStatusPending, enums.SwapStatusAccepted, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SwapStatusAccepted, stored.Status)
	assert.True(t, stored.DepositValor.Equal(decimal.NewFromInt(20)))
}

func TestListStaleFiltersOnCutoff(t *testing.T) {
	db := setupSwapTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now()

	stale := seedSwap(t, db, enums.SwapStatusPending)
	backdateSwap(t, db, stale.ID, now.Add(-25*time.Hour))

	fresh := seedSwap(t, db, enums.SwapStatusPending)
	backdateSwap(t, db, fresh.ID, now.Add(-1*time.Hour))

	terminalStale := seedSwap(t, db, enums.SwapStatusCompleted)
	backdateSwap(t, db, terminalStale.ID, now.Add(-48*time.Hour))

	statuses := []enums.SwapStatus{enums.SwapStatusPending, enums.SwapStatusAccepted, enums.SwapStatusAwaitingDelivery}
	found, err := repo.ListStale(ctx, statuses, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)
}

func TestListNearExpiryBounds(t *testing.T) {
	db := setupSwapTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now()

	inWindow := seedSwap(t, db, enums.SwapStatusAccepted)
	backdateSwap(t, db, inWindow.ID, now.Add(-19*time.Hour))

	tooFresh := seedSwap(t, db, enums.SwapStatusAccepted)
	backdateSwap(t, db, tooFresh.ID, now.Add(-17*time.Hour))

	tooStale := seedSwap(t, db, enums.SwapStatusAccepted)
	backdateSwap(t, db, tooStale.ID, now.Add(-21*time.Hour))

	statuses := []enums.SwapStatus{enums.SwapStatusPending, enums.SwapStatusAccepted, enums.SwapStatusAwaitingDelivery}
	found, err := repo.ListNearExpiry(ctx, statuses, now.Add(-18*time.Hour), now.Add(-20*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, inWindow.ID, found[0].ID)
}

func seedDeliveredSwap(t *testing.T, db *gorm.DB, tier enums.RiskTier, windowEndsAt time.Time, eligible bool) *models.SwapRequest {
	t.Helper()
	amount := decimal.NewFromInt(200)
	swap := models.SwapRequest{
		ID:                   uuid.New(),
		OwnerID:              uuid.New(),
		RequesterID:          uuid.New(),
		ProductID:            uuid.New(),
		PendingValor:         &amount,
		RiskTier:             tier,
		Status:               enums.SwapStatusDelivered,
		AutoCompleteEligible: eligible,
		DisputeWindowEndsAt:  &windowEndsAt,
	}
	require.NoError(t, db.Create(&swap).Error)
	return &swap
}

func TestListAutoCompletable(t *testing.T) {
	db := setupSwapTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-1 * time.Hour)

	due := seedDeliveredSwap(t, db, enums.RiskTierLow, past, true)
	// window still open, risk gated, flag cleared
	seedDeliveredSwap(t, db, enums.RiskTierLow, now.Add(time.Hour), true)
	seedDeliveredSwap(t, db, enums.RiskTierHigh, past, true)
	seedDeliveredSwap(t, db, enums.RiskTierLow, past, false)

	disputed := seedDeliveredSwap(t, db, enums.RiskTierLow, past, true)
	dispute := models.DisputeReport{
		ID:               uuid.New(),
		SwapRequestID:    disputed.ID,
		ReporterID:       disputed.RequesterID,
		ReportedUserID:   disputed.OwnerID,
		Type:             enums.DisputeTypeItemNotAsDescribed,
		Description:      "damaged on arrival",
		Status:           enums.DisputeStatusOpen,
		EvidenceDeadline: now.Add(48 * time.Hour),
	}
	require.NoError(t, db.Create(&dispute).Error)

	resolvedDispute := seedDeliveredSwap(t, db, enums.RiskTierLow, past, true)
	closed := models.DisputeReport{
		ID:               uuid.New(),
		SwapRequestID:    resolvedDispute.ID,
		ReporterID:       resolvedDispute.RequesterID,
		ReportedUserID:   resolvedDispute.OwnerID,
		Type:             enums.DisputeTypeItemNotAsDescribed,
		Description:      "withdrawn",
		Status:           enums.DisputeStatusRejected,
		EvidenceDeadline: now.Add(48 * time.Hour),
	}
	require.NoError(t, db.Create(&closed).Error)

	found, err := repo.ListAutoCompletable(ctx, now, []enums.RiskTier{enums.RiskTierLow}, 10)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool, len(found))
	for _, swap := range found {
		ids[swap.ID] = true
	}
	assert.Len(t, found, 2)
	assert.True(t, ids[due.ID])
	assert.True(t, ids[resolvedDispute.ID], "rejected dispute must not block auto-complete")
	assert.False(t, ids[disputed.ID])
}

func TestListByParticipantPaginates(t *testing.T) {
	db := setupSwapTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		amount := decimal.NewFromInt(50)
		swap := models.SwapRequest{
			ID:           uuid.New(),
			OwnerID:      uuid.New(),
			RequesterID:  userID,
			ProductID:    uuid.New(),
			PendingValor: &amount,
			Status:       enums.SwapStatusPending,
		}
		require.NoError(t, db.Create(&swap).Error)
	}
	seedSwap(t, db, enums.SwapStatusPending) // unrelated parties

	found, err := repo.ListByParticipant(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	// limit plus look-ahead row
	assert.Len(t, found, 3)
	for _, swap := range found {
		assert.True(t, swap.OwnerID == userID || swap.RequesterID == userID)
	}
}

func TestStatusLogRoundTrip(t *testing.T) {
	db := setupSwapTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	swap := seedSwap(t, db, enums.SwapStatusPending)
	actor := swap.OwnerID
	require.NoError(t, repo.AppendStatusLog(ctx, &models.SwapStatusLog{
		ID:         uuid.New(),
		SwapID:     swap.ID,
		FromStatus: enums.SwapStatusPending,
		ToStatus:   enums.SwapStatusAccepted,
		ChangedBy:  &actor,
	}))

	entries, err := repo.ListStatusLog(ctx, swap.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.SwapStatusAccepted, entries[0].ToStatus)
}
