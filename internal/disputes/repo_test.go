package disputes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

func setupDisputeTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
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
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func seedDispute(t *testing.T, db *gorm.DB, swapID uuid.UUID, status enums.DisputeStatus) *models.DisputeReport {
	t.Helper()

	report := &models.DisputeReport{
		ID:               uuid.New(),
		SwapRequestID:    swapID,
		ReporterID:       uuid.New(),
		ReportedUserID:   uuid.New(),
		Type:             enums.DisputeTypeItemNotAsDescribed,
		Description:      "item arrived damaged",
		Status:           status,
		ReporterEvidence: []string{"https://cdn.example.com/photo-1.jpg"},
		EvidenceDeadline: time.Now().Add(48 * time.Hour),
	}
	require.NoError(t, NewRepository(db).Create(context.Background(), report))
	return report
}

func TestGetOpenBySwapIDMatchesOpenStatesOnly(t *testing.T) {
	db := setupDisputeTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	closedSwap := uuid.New()
	seeded := seedDispute(t, db, closedSwap, enums.DisputeStatusRejected)
	_, err := repo.GetOpenBySwapID(ctx, closedSwap)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	openSwap := uuid.New()
	open := seedDispute(t, db, openSwap, enums.DisputeStatusEvidenceSubmitted)
	found, err := repo.GetOpenBySwapID(ctx, openSwap)
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)
	assert.NotEqual(t, seeded.ID, found.ID)
}

func TestUpdateStatusGuardsOnCurrentState(t *testing.T) {
	db := setupDisputeTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	report := seedDispute(t, db, uuid.New(), enums.DisputeStatusOpen)

	ok, err := repo.UpdateStatus(ctx, report.ID, enums.DisputeStatusOpen, enums.DisputeStatusResolved, map[string]any{
		"resolution_note": "refund issued",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// stale actor still sees open and must lose
	ok, err = repo.UpdateStatus(ctx, report.ID, enums.DisputeStatusOpen, enums.DisputeStatusRejected, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DisputeStatusResolved, stored.Status)
	require.NotNil(t, stored.ResolutionNote)
	assert.Equal(t, "refund issued", *stored.ResolutionNote)
}

func TestListByStatusesPaginates(t *testing.T) {
	db := setupDisputeTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedDispute(t, db, uuid.New(), enums.DisputeStatusOpen)
	}
	seedDispute(t, db, uuid.New(), enums.DisputeStatusResolved)

	page, err := repo.ListByStatuses(ctx, openStatuses, pagination.Params{Limit: 2})
	require.NoError(t, err)
	// one extra row signals the next page
	assert.Len(t, page, 3)
	for _, report := range page {
		assert.Contains(t, openStatuses, report.Status)
	}
}
