package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gokselkaptan/takas-app-sub004/pkg/db/models"
	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  title TEXT NOT NULL,
  category TEXT NOT NULL,
  valor_price NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(products).Error)
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, status enums.ProductStatus) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Title:      "vintage camera",
		Category:   "electronics",
		ValorPrice: decimal.NewFromInt(200),
		Status:     status,
	}
	require.NoError(t, db.Create(&product).Error)
	return product.ID
}

func TestReserveOnlyActiveProducts(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := seedProduct(t, db, enums.ProductStatusActive)

	ok, err := repo.Reserve(ctx, productID)
	require.NoError(t, err)
	assert.True(t, ok)

	// second reservation races against the first and must lose
	ok, err = repo.Reserve(ctx, productID)
	require.NoError(t, err)
	assert.False(t, ok)

	product, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProductStatusReserved, product.Status)
}

func TestReserveRejectsInactive(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)

	productID := seedProduct(t, db, enums.ProductStatusInactive)

	ok, err := repo.Reserve(context.Background(), productID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseReturnsProductToMarket(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := seedProduct(t, db, enums.ProductStatusReserved)

	ok, err := repo.Release(ctx, productID)
	require.NoError(t, err)
	assert.True(t, ok)

	product, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProductStatusActive, product.Status)
}

func TestTransferOwnership(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := seedProduct(t, db, enums.ProductStatusReserved)
	newOwner := uuid.New()

	ok, err := repo.TransferOwnership(ctx, productID, newOwner)
	require.NoError(t, err)
	assert.True(t, ok)

	product, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, newOwner, product.OwnerID)
	assert.Equal(t, enums.ProductStatusSwapped, product.Status)

	// swapped items never transfer again
	ok, err = repo.TransferOwnership(ctx, productID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}
