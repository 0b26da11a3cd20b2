package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

// Product is the listing a swap trades. Catalog CRUD is owned elsewhere; the
// settlement core only reads the valor price and flips the status column.
type Product struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID    uuid.UUID           `gorm:"column:owner_id;type:uuid;not null"`
	Title      string              `gorm:"column:title;type:text;not null"`
	Category   string              `gorm:"column:category;type:text;not null"`
	ValorPrice decimal.Decimal     `gorm:"column:valor_price;type:numeric(14,2);not null"`
	Status     enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:'active'"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
