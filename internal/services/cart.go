package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/storefront/internal/models"
)

// CartService is the single source of truth for what an owner would purchase
// right now. Every operation is scoped to an explicit Owner.
type CartService struct {
	db *gorm.DB
}

// NewCartService constructs CartService.
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// CartSummary bundles the cart contents with recomputed totals. The total is
// always derived from the live rows, never cached.
type CartSummary struct {
	Items     []models.CartItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     decimal.Decimal   `json:"total"`
}

// lockForUpdate takes a row lock on dialects that support it. SQLite (used in
// tests) serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// AddItem adds quantity of a product to the owner's cart, merging into the
// existing line for the same product and options. The price snapshot is
// refreshed to the current effective price. Returns the resulting line and
// the cart-wide item count.
func (s *CartService) AddItem(ctx context.Context, owner Owner, productID uuid.UUID, quantity int, options map[string]string) (*models.CartItem, int, error) {
	if quantity < 1 {
		return nil, 0, ErrInvalidQuantity
	}

	var line models.CartItem
	var count int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := lockForUpdate(tx).First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product %w", ErrNotFound)
			}
			return err
		}

		if !product.Available() {
			return ErrUnavailable
		}

		fingerprint := OptionsFingerprint(options)

		var existingQty int
		var existing models.CartItem
		err := tx.Where("owner_key = ? AND product_id = ? AND options_fingerprint = ?",
			owner.Key(), productID, fingerprint).First(&existing).Error
		if err == nil {
			existingQty = existing.Quantity
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if product.ManageStock && existingQty+quantity > product.StockQuantity {
			return fmt.Errorf("%w: only %d available", ErrInsufficientStock, product.StockQuantity)
		}

		// The upsert rides on the (owner_key, product_id, options_fingerprint)
		// unique index, so a racing duplicate add increments the same line
		// instead of creating a second one.
		candidate := models.CartItem{
			OwnerKey:           owner.Key(),
			ProductID:          productID,
			OptionsFingerprint: fingerprint,
			ProductOptions:     fingerprint,
			Quantity:           quantity,
			Price:              product.EffectivePrice(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_key"}, {Name: "product_id"}, {Name: "options_fingerprint"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("quantity + excluded.quantity"),
				"price":      gorm.Expr("excluded.price"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).Create(&candidate).Error; err != nil {
			return err
		}

		if err := tx.Where("owner_key = ? AND product_id = ? AND options_fingerprint = ?",
			owner.Key(), productID, fingerprint).First(&line).Error; err != nil {
			return err
		}
		line.Product = &product

		var err2 error
		count, err2 = s.countLocked(tx, owner)
		return err2
	})
	if err != nil {
		return nil, 0, err
	}

	return &line, count, nil
}

// UpdateQuantity sets an absolute quantity on a line the owner holds,
// re-validating stock and refreshing the price snapshot.
func (s *CartService) UpdateQuantity(ctx context.Context, owner Owner, lineID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var line models.CartItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&line, "id = ?", lineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("cart item %w", ErrNotFound)
			}
			return err
		}

		if line.OwnerKey != owner.Key() {
			return ErrUnauthorized
		}

		var product models.Product
		if err := lockForUpdate(tx).First(&product, "id = ?", line.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product %w", ErrNotFound)
			}
			return err
		}

		if product.ManageStock && quantity > product.StockQuantity {
			return fmt.Errorf("%w: only %d available", ErrInsufficientStock, product.StockQuantity)
		}

		line.Quantity = quantity
		line.Price = product.EffectivePrice()
		if err := tx.Model(&models.CartItem{}).Where("id = ?", line.ID).
			Updates(map[string]interface{}{
				"quantity": line.Quantity,
				"price":    line.Price,
			}).Error; err != nil {
			return err
		}

		line.Product = &product
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &line, nil
}

// RemoveItem deletes a single line the owner holds.
func (s *CartService) RemoveItem(ctx context.Context, owner Owner, lineID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line models.CartItem
		if err := tx.First(&line, "id = ?", lineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("cart item %w", ErrNotFound)
			}
			return err
		}

		if line.OwnerKey != owner.Key() {
			return ErrUnauthorized
		}

		return tx.Delete(&models.CartItem{}, "id = ?", line.ID).Error
	})
}

// Clear removes every line the owner holds.
func (s *CartService) Clear(ctx context.Context, owner Owner) error {
	return s.db.WithContext(ctx).
		Delete(&models.CartItem{}, "owner_key = ?", owner.Key()).Error
}

// Summary loads the owner's cart with products and recomputes count and total.
func (s *CartService) Summary(ctx context.Context, owner Owner) (*CartSummary, error) {
	var items []models.CartItem
	if err := s.db.WithContext(ctx).Preload("Product").
		Where("owner_key = ?", owner.Key()).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}

	summary := &CartSummary{Items: items, Total: decimal.Zero}
	for _, item := range items {
		summary.ItemCount += item.Quantity
		summary.Total = summary.Total.Add(item.TotalPrice())
	}
	summary.Total = summary.Total.Round(2)

	return summary, nil
}

// Count returns the cart-wide item quantity for the owner.
func (s *CartService) Count(ctx context.Context, owner Owner) (int, error) {
	return s.countLocked(s.db.WithContext(ctx), owner)
}

func (s *CartService) countLocked(tx *gorm.DB, owner Owner) (int, error) {
	var count int64
	err := tx.Model(&models.CartItem{}).
		Where("owner_key = ?", owner.Key()).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&count).Error
	return int(count), err
}

// MergeGuestIntoUser folds a guest session's cart into the user's cart after
// login: colliding lines sum quantities, the rest are re-owned. Running it
// twice is a no-op the second time since the guest lines are gone.
func (s *CartService) MergeGuestIntoUser(ctx context.Context, userID uuid.UUID, sessionID string) error {
	guest := GuestOwner(sessionID)
	user := UserOwner(userID)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guestLines []models.CartItem
		if err := tx.Where("owner_key = ?", guest.Key()).Find(&guestLines).Error; err != nil {
			return err
		}

		for _, guestLine := range guestLines {
			var existing models.CartItem
			err := tx.Where("owner_key = ? AND product_id = ? AND options_fingerprint = ?",
				user.Key(), guestLine.ProductID, guestLine.OptionsFingerprint).
				First(&existing).Error
			if err == nil {
				if err := tx.Model(&models.CartItem{}).Where("id = ?", existing.ID).
					Update("quantity", gorm.Expr("quantity + ?", guestLine.Quantity)).Error; err != nil {
					return err
				}
				if err := tx.Delete(&models.CartItem{}, "id = ?", guestLine.ID).Error; err != nil {
					return err
				}
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			if err := tx.Model(&models.CartItem{}).Where("id = ?", guestLine.ID).
				Update("owner_key", user.Key()).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
