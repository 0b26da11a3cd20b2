package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

// ValorTransaction records an immutable credit movement. Rows are append-only;
// the sum of entries touching a user reconstructs that user's balance exactly.
type ValorTransaction struct {
	ID         uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FromUserID *uuid.UUID                 `gorm:"column:from_user_id;type:uuid"`
	ToUserID   *uuid.UUID                 `gorm:"column:to_user_id;type:uuid"`
	SwapID     *uuid.UUID                 `gorm:"column:swap_id;type:uuid"`
	Type       enums.ValorTransactionType `gorm:"column:type;type:valor_transaction_type;not null"`
	Amount     decimal.Decimal            `gorm:"column:amount;type:numeric(14,2);not null"`
	Fee        decimal.Decimal            `gorm:"column:fee;type:numeric(14,2);not null;default:0"`
	NetAmount  decimal.Decimal            `gorm:"column:net_amount;type:numeric(14,2);not null"`
	Metadata   json.RawMessage            `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
