package swaps

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

// Repository persists swap aggregates and their status audit trail. Status
// writes are conditional on the current status so concurrent actors and
// sweeper jobs cannot double-apply a transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, swap *models.SwapRequest) error
	GetByID(ctx context.Context, swapID uuid.UUID) (*models.SwapRequest, error)
	UpdateStatus(ctx context.Context, swapID uuid.UUID, from, to enums.SwapStatus, updates map[string]any) (bool, error)
	UpdateFields(ctx context.Context, swapID uuid.UUID, updates map[string]any) error
	AppendStatusLog(ctx context.Context, entry *models.SwapStatusLog) error
	ListStatusLog(ctx context.Context, swapID uuid.UUID) ([]models.SwapStatusLog, error)

	ListByParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.SwapRequest, error)
	ListStale(ctx context.Context, statuses []enums.SwapStatus, cutoff time.Time, limit int) ([]models.SwapRequest, error)
	ListNearExpiry(ctx context.Context, statuses []enums.SwapStatus, olderThan, newerThan time.Time, limit int) ([]models.SwapRequest, error)
	ListAutoCompletable(ctx context.Context, now time.Time, tiers []enums.RiskTier, limit int) ([]models.SwapRequest, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the swap repository on the shared gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, swap *models.SwapRequest) error {
	return r.db.WithContext(ctx).Create(swap).Error
}

func (r *repository) GetByID(ctx context.Context, swapID uuid.UUID) (*models.SwapRequest, error) {
	var swap models.SwapRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", swapID).
		First(&swap).Error
	if err != nil {
		return nil, err
	}
	return &swap, nil
}

// UpdateStatus flips the status and applies updates in one guarded statement.
// Zero rows affected means another transaction moved the swap first.
func (r *repository) UpdateStatus(ctx context.Context, swapID uuid.UUID, from, to enums.SwapStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.SwapRequest{}).
		Where("id = ? AND status = ?", swapID, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdateFields(ctx context.Context, swapID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.SwapRequest{}).
		Where("id = ?", swapID).
		Updates(updates).Error
}

func (r *repository) AppendStatusLog(ctx context.Context, entry *models.SwapStatusLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListStatusLog(ctx context.Context, swapID uuid.UUID) ([]models.SwapStatusLog, error) {
	var entries []models.SwapStatusLog
	err := r.db.WithContext(ctx).
		Where("swap_id = ?", swapID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListByParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.SwapRequest, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SwapRequest{}).
		Where("owner_id = ? OR requester_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if cursor, err := pagination.ParseCursor(params.Cursor); err == nil && cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var swaps []models.SwapRequest
	err := query.Find(&swaps).Error
	return swaps, err
}

// ListStale returns swaps stuck in the given statuses with no activity since
// cutoff, oldest first so repeated batches drain the backlog.
func (r *repository) ListStale(ctx context.Context, statuses []enums.SwapStatus, cutoff time.Time, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at <= ?", statuses, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&swaps).Error
	return swaps, err
}

func (r *repository) ListNearExpiry(ctx context.Context, statuses []enums.SwapStatus, olderThan, newerThan time.Time, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at <= ? AND updated_at > ?", statuses, olderThan, newerThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&swaps).Error
	return swaps, err
}

// ListAutoCompletable selects delivered swaps whose dispute window has closed,
// excluding any swap with an open dispute on file.
func (r *repository) ListAutoCompletable(ctx context.Context, now time.Time, tiers []enums.RiskTier, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.SwapStatusDelivered).
		Where("auto_complete_eligible = ?", true).
		Where("dispute_window_ends_at IS NOT NULL AND dispute_window_ends_at <= ?", now).
		Where("risk_tier IN ?", tiers).
		Where("NOT EXISTS (SELECT 1 FROM dispute_reports dr WHERE dr.swap_request_id = swap_requests.id AND dr.status IN ?)",
			[]enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusEvidenceSubmitted}).
		Order("dispute_window_ends_at ASC").
		Limit(limit).
		Find(&swaps).Error
	return swaps, err
}
