package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/storefront/internal/models"
)

// WishlistService mirrors the cart's owner scoping without any stock or
// payment implications.
type WishlistService struct {
	db   *gorm.DB
	cart *CartService
}

// NewWishlistService constructs WishlistService.
func NewWishlistService(db *gorm.DB, cart *CartService) *WishlistService {
	return &WishlistService{db: db, cart: cart}
}

// Add puts a product on the owner's wishlist. The second return value is
// false when the product was already listed, which is not an error.
func (s *WishlistService) Add(ctx context.Context, owner Owner, productID uuid.UUID) (*models.Product, bool, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("product %w", ErrNotFound)
		}
		return nil, false, err
	}

	item := models.WishlistItem{OwnerKey: owner.Key(), ProductID: productID}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_key"}, {Name: "product_id"}},
		DoNothing: true,
	}).Create(&item)
	if result.Error != nil {
		return nil, false, result.Error
	}

	return &product, result.RowsAffected > 0, nil
}

// Remove takes a product off the owner's wishlist.
func (s *WishlistService) Remove(ctx context.Context, owner Owner, productID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Delete(&models.WishlistItem{}, "owner_key = ? AND product_id = ?", owner.Key(), productID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("wishlist item %w", ErrNotFound)
	}
	return nil
}

// List returns the owner's wishlist with products preloaded.
func (s *WishlistService) List(ctx context.Context, owner Owner) ([]models.WishlistItem, error) {
	var items []models.WishlistItem
	err := s.db.WithContext(ctx).Preload("Product").Preload("Product.Category").
		Where("owner_key = ?", owner.Key()).
		Order("created_at desc").
		Find(&items).Error
	return items, err
}

// Count returns the number of wishlisted products for the owner.
func (s *WishlistService) Count(ctx context.Context, owner Owner) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("owner_key = ?", owner.Key()).
		Count(&count).Error
	return int(count), err
}

// Clear removes every wishlist row the owner holds.
func (s *WishlistService) Clear(ctx context.Context, owner Owner) error {
	return s.db.WithContext(ctx).
		Delete(&models.WishlistItem{}, "owner_key = ?", owner.Key()).Error
}

// MoveToCart adds the wishlisted product to the cart and, only when that
// succeeds, drops the wishlist row. Stock and availability failures leave the
// wishlist untouched.
func (s *WishlistService) MoveToCart(ctx context.Context, owner Owner, productID uuid.UUID, quantity int) (*models.CartItem, int, error) {
	line, count, err := s.cart.AddItem(ctx, owner, productID, quantity, nil)
	if err != nil {
		return nil, 0, err
	}

	if err := s.db.WithContext(ctx).
		Delete(&models.WishlistItem{}, "owner_key = ? AND product_id = ?", owner.Key(), productID).Error; err != nil {
		return nil, 0, err
	}

	return line, count, nil
}

// MergeGuestIntoUser re-owns guest wishlist rows after login, dropping the
// ones whose product the user already wishlisted. Idempotent for the same
// reason the cart merge is.
func (s *WishlistService) MergeGuestIntoUser(ctx context.Context, userID uuid.UUID, sessionID string) error {
	guest := GuestOwner(sessionID)
	user := UserOwner(userID)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guestItems []models.WishlistItem
		if err := tx.Where("owner_key = ?", guest.Key()).Find(&guestItems).Error; err != nil {
			return err
		}

		for _, guestItem := range guestItems {
			var existing models.WishlistItem
			err := tx.Where("owner_key = ? AND product_id = ?", user.Key(), guestItem.ProductID).
				First(&existing).Error
			if err == nil {
				if err := tx.Delete(&models.WishlistItem{}, "id = ?", guestItem.ID).Error; err != nil {
					return err
				}
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			if err := tx.Model(&models.WishlistItem{}).Where("id = ?", guestItem.ID).
				Update("owner_key", user.Key()).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
