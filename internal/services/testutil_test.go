package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/storefront/internal/database"
	"github.com/example/storefront/internal/models"
)

// newTestDB opens an isolated in-memory database named after the test, so
// every connection in the pool sees the same schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	return db
}

func createTestProduct(t *testing.T, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()

	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	product := models.Product{
		Name:          name,
		Slug:          slug,
		SKU:           "SKU-" + strings.ToUpper(slug),
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		ManageStock:   true,
		InStock:       true,
		Status:        models.ProductStatusActive,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()

	user := models.User{
		Name:         "Test Shopper",
		Email:        email,
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// fakeGateway stands in for the payment provider in checkout tests.
type fakeGateway struct {
	captureErr error
	captures   int
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount decimal.Decimal, currency string, _ map[string]string) (*PaymentIntent, error) {
	return &PaymentIntent{
		ID:           "pi_test_intent",
		ClientSecret: "pi_test_intent_secret",
		Status:       "requires_payment_method",
	}, nil
}

func (g *fakeGateway) Capture(_ context.Context, token string) (*CaptureResult, error) {
	g.captures++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &CaptureResult{PaymentID: "pi_" + token}, nil
}
