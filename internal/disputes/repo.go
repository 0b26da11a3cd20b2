package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

// openStatuses are the dispute states that block settlement of the parent swap.
var openStatuses = []enums.DisputeStatus{
	enums.DisputeStatusOpen,
	enums.DisputeStatusEvidenceSubmitted,
}

// Repository persists dispute reports. At most one open dispute may exist per
// swap; the partial unique index uq_dispute_reports_open_swap backs that up at
// the database level.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, report *models.DisputeReport) error
	GetByID(ctx context.Context, disputeID uuid.UUID) (*models.DisputeReport, error)
	GetOpenBySwapID(ctx context.Context, swapID uuid.UUID) (*models.DisputeReport, error)
	UpdateStatus(ctx context.Context, disputeID uuid.UUID, from, to enums.DisputeStatus, updates map[string]any) (bool, error)
	ListByStatuses(ctx context.Context, statuses []enums.DisputeStatus, params pagination.Params) ([]models.DisputeReport, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the dispute repository on the shared gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, report *models.DisputeReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) GetByID(ctx context.Context, disputeID uuid.UUID) (*models.DisputeReport, error) {
	var report models.DisputeReport
	err := r.db.WithContext(ctx).
		Where("id = ?", disputeID).
		First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) GetOpenBySwapID(ctx context.Context, swapID uuid.UUID) (*models.DisputeReport, error) {
	var report models.DisputeReport
	err := r.db.WithContext(ctx).
		Where("swap_request_id = ? AND status IN ?", swapID, openStatuses).
		First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateStatus flips the dispute state with updates in one guarded statement.
func (r *repository) UpdateStatus(ctx context.Context, disputeID uuid.UUID, from, to enums.DisputeStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.DisputeReport{}).
		Where("id = ? AND status = ?", disputeID, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListByStatuses(ctx context.Context, statuses []enums.DisputeStatus, params pagination.Params) ([]models.DisputeReport, error) {
	query := r.db.WithContext(ctx).
		Model(&models.DisputeReport{}).
		Where("status IN ?", statuses).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if cursor, err := pagination.ParseCursor(params.Cursor); err == nil && cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var reports []models.DisputeReport
	err := query.Find(&reports).Error
	return reports, err
}
