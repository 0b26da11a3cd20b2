package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User carries the ledger-relevant identity fields. Profile, credentials and
// session data live in the identity service; this row only owns balances and
// reputation.
type User struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DisplayName  string          `gorm:"column:display_name;type:text;not null"`
	ValorBalance decimal.Decimal `gorm:"column:valor_balance;type:numeric(14,2);not null;default:0"`
	LockedValor  decimal.Decimal `gorm:"column:locked_valor;type:numeric(14,2);not null;default:0"`
	TrustScore   int             `gorm:"column:trust_score;not null;default:50"`
	IsSuspended  bool            `gorm:"column:is_suspended;not null;default:false"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
