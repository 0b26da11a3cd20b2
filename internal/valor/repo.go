package valor

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/pagination"
)

// Repository manages persistence for balances and ledger entries. Balance
// mutations are conditional updates; zero rows affected means the guard
// failed, never that the mutation silently succeeded.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	DebitAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	CreditAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	LockAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	UnlockToAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	DebitLocked(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	SetTrustScore(ctx context.Context, userID uuid.UUID, score int) error

	CreateTransaction(ctx context.Context, entry *models.ValorTransaction) error
	ListBySwapID(ctx context.Context, swapID uuid.UUID) ([]models.ValorTransaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ValorTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a valor repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DebitAvailable decrements the available balance only when it covers the
// amount. Returns false when the balance guard rejects the decrement.
func (r *repository) DebitAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND valor_balance >= ?", userID, amount).
		Update("valor_balance", gorm.Expr("valor_balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreditAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("valor_balance", gorm.Expr("valor_balance + ?", amount)).Error
}

// LockAvailable moves amount from available to locked in one statement.
func (r *repository) LockAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND valor_balance >= ?", userID, amount).
		Updates(map[string]any{
			"valor_balance": gorm.Expr("valor_balance - ?", amount),
			"locked_valor":  gorm.Expr("locked_valor + ?", amount),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UnlockToAvailable moves amount from locked back to available.
func (r *repository) UnlockToAvailable(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND locked_valor >= ?", userID, amount).
		Updates(map[string]any{
			"valor_balance": gorm.Expr("valor_balance + ?", amount),
			"locked_valor":  gorm.Expr("locked_valor - ?", amount),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DebitLocked burns locked funds without returning them to available. Used
// when escrow leaves the holder at settlement.
func (r *repository) DebitLocked(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND locked_valor >= ?", userID, amount).
		Update("locked_valor", gorm.Expr("locked_valor - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetTrustScore writes the already-clamped score. Callers clamp via the
// trust updater; this is a plain set, not an increment.
func (r *repository) SetTrustScore(ctx context.Context, userID uuid.UUID, score int) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("trust_score", score).Error
}

func (r *repository) CreateTransaction(ctx context.Context, entry *models.ValorTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListBySwapID(ctx context.Context, swapID uuid.UUID) ([]models.ValorTransaction, error) {
	var entries []models.ValorTransaction
	if err := r.db.WithContext(ctx).
		Where("swap_id = ?", swapID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ValorTransaction, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit))

	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var entries []models.ValorTransaction
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
