package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/utils"
)

// ProductHandler serves the catalog: browsing, categories, reviews and the
// admin-side product CRUD.
type ProductHandler struct {
	db *gorm.DB
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// List returns active products with filtering, sorting and pagination.
// Supported query params: category (slug), search, min_price, max_price,
// featured, sort (price_asc|price_desc|name|newest|rating), page, limit.
func (h *ProductHandler) List(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)

	query := h.db.Model(&models.Product{}).
		Preload("Category").
		Where("status = ?", models.ProductStatusActive)

	if slug := c.Query("category"); slug != "" {
		var category models.Category
		if err := h.db.Where("slug = ? AND is_active = ?", slug, true).First(&category).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return respondError(c, fiber.StatusNotFound, "Category not found.")
			}
			return err
		}
		query = query.Where("category_id = ?", category.ID)
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(sku) LIKE ?", like, like, like)
	}

	if min := c.Query("min_price"); min != "" {
		if value, err := decimal.NewFromString(min); err == nil {
			query = query.Where("price >= ?", value)
		}
	}
	if max := c.Query("max_price"); max != "" {
		if value, err := decimal.NewFromString(max); err == nil {
			query = query.Where("price <= ?", value)
		}
	}

	if c.Query("featured") == "true" {
		query = query.Where("is_featured = ?", true)
	}

	switch c.Query("sort") {
	case "price_asc":
		query = query.Order("price asc")
	case "price_desc":
		query = query.Order("price desc")
	case "name":
		query = query.Order("name asc")
	case "rating":
		query = query.Order("average_rating desc")
	default:
		query = query.Order("created_at desc")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Offset(pagination.Offset).Limit(pagination.Limit).Find(&products).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"products": products,
		"total":    total,
		"page":     pagination.Page,
		"limit":    pagination.Limit,
	})
}

// Get returns one product by slug with its approved reviews and related
// products, and records the view.
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	slug := c.Params("slug")

	var product models.Product
	err := h.db.Preload("Category").
		Preload("Reviews", "is_approved = ?", true).
		Preload("Reviews.User").
		Where("slug = ? AND status = ?", slug, models.ProductStatusActive).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusNotFound, "Product not found.")
		}
		return err
	}

	// Best-effort view counter, never blocks the response.
	h.db.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("views_count", gorm.Expr("views_count + 1"))

	var related []models.Product
	relatedQuery := h.db.Where("status = ? AND id <> ?", models.ProductStatusActive, product.ID)
	if product.CategoryID != nil {
		relatedQuery = relatedQuery.Where("category_id = ?", *product.CategoryID)
	}
	if err := relatedQuery.Order("created_at desc").Limit(4).Find(&related).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"product":          product,
		"effective_price":  product.EffectivePrice(),
		"available":        product.Available(),
		"related_products": related,
	})
}

// Categories lists active categories in display order.
func (h *ProductHandler) Categories(c *fiber.Ctx) error {
	var categories []models.Category
	if err := h.db.Where("is_active = ?", true).
		Order("display_order asc, name asc").
		Find(&categories).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{"categories": categories})
}

// GetCategory returns one category by slug together with its active products.
func (h *ProductHandler) GetCategory(c *fiber.Ctx) error {
	var category models.Category
	err := h.db.Preload("Products", "status = ?", models.ProductStatusActive).
		Where("slug = ? AND is_active = ?", c.Params("slug"), true).
		First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusNotFound, "Category not found.")
		}
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{"category": category})
}

type productRequest struct {
	CategoryID       string   `json:"category_id"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description"`
	SKU              string   `json:"sku"`
	Price            string   `json:"price"`
	SalePrice        string   `json:"sale_price"`
	StockQuantity    *int     `json:"stock_quantity"`
	ManageStock      *bool    `json:"manage_stock"`
	InStock          *bool    `json:"in_stock"`
	Status           string   `json:"status"`
	FeaturedImage    string   `json:"featured_image"`
	GalleryImages    []string `json:"gallery_images"`
	IsFeatured       *bool    `json:"is_featured"`
	IsDigital        *bool    `json:"is_digital"`
	Attributes       string   `json:"attributes"`
}

// Create adds a product to the catalog.
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" || req.Slug == "" || req.SKU == "" || req.Price == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name, slug, sku and price are required")
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid price")
	}

	product := models.Product{
		Name:             req.Name,
		Slug:             req.Slug,
		Description:      req.Description,
		ShortDescription: req.ShortDescription,
		SKU:              req.SKU,
		Price:            price,
		Status:           models.ProductStatusActive,
		FeaturedImage:    req.FeaturedImage,
		GalleryImages:    req.GalleryImages,
		Attributes:       req.Attributes,
		ManageStock:      true,
		InStock:          true,
	}

	if req.CategoryID != "" {
		categoryID, err := uuid.Parse(req.CategoryID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid category_id")
		}
		product.CategoryID = &categoryID
	}
	if req.SalePrice != "" {
		salePrice, err := decimal.NewFromString(req.SalePrice)
		if err != nil || salePrice.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid sale_price")
		}
		product.SalePrice = decimal.NewNullDecimal(salePrice)
	}
	if req.StockQuantity != nil {
		product.StockQuantity = *req.StockQuantity
	}
	if req.ManageStock != nil {
		product.ManageStock = *req.ManageStock
	}
	if req.InStock != nil {
		product.InStock = *req.InStock
	}
	if req.Status != "" {
		product.Status = req.Status
	}
	if req.IsFeatured != nil {
		product.IsFeatured = *req.IsFeatured
	}
	if req.IsDigital != nil {
		product.IsDigital = *req.IsDigital
	}

	if err := h.db.Create(&product).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusCreated, "Product created successfully!", fiber.Map{"product": product})
}

// Update modifies an existing product.
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusNotFound, "Product not found.")
		}
		return err
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Slug != "" {
		updates["slug"] = req.Slug
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.ShortDescription != "" {
		updates["short_description"] = req.ShortDescription
	}
	if req.Price != "" {
		price, err := decimal.NewFromString(req.Price)
		if err != nil || price.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid price")
		}
		updates["price"] = price
	}
	if req.SalePrice != "" {
		salePrice, err := decimal.NewFromString(req.SalePrice)
		if err != nil || salePrice.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid sale_price")
		}
		updates["sale_price"] = salePrice
	}
	if req.StockQuantity != nil {
		updates["stock_quantity"] = *req.StockQuantity
	}
	if req.ManageStock != nil {
		updates["manage_stock"] = *req.ManageStock
	}
	if req.InStock != nil {
		updates["in_stock"] = *req.InStock
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if req.FeaturedImage != "" {
		updates["featured_image"] = req.FeaturedImage
	}
	if req.IsFeatured != nil {
		updates["is_featured"] = *req.IsFeatured
	}
	if req.IsDigital != nil {
		updates["is_digital"] = *req.IsDigital
	}
	if req.Attributes != "" {
		updates["attributes"] = req.Attributes
	}
	if req.CategoryID != "" {
		categoryID, err := uuid.Parse(req.CategoryID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid category_id")
		}
		updates["category_id"] = categoryID
	}

	if len(updates) > 0 {
		if err := h.db.Model(&product).Updates(updates).Error; err != nil {
			return err
		}
	}

	return respondSuccess(c, fiber.StatusOK, "Product updated successfully!", fiber.Map{"product": product})
}

// Delete removes a product. Order items keep their denormalized snapshot, so
// history survives the deletion.
func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	result := h.db.Delete(&models.Product{}, "id = ?", productID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return respondError(c, fiber.StatusNotFound, "Product not found.")
	}

	return respondSuccess(c, fiber.StatusOK, "Product deleted successfully!", nil)
}

// Reviews lists approved reviews for a product, filterable by rating and
// sortable by recency, rating or helpfulness ordering.
func (h *ProductHandler) Reviews(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	pagination := utils.ParsePagination(c)

	query := h.db.Model(&models.Review{}).
		Preload("User").
		Where("product_id = ? AND is_approved = ?", productID, true)

	if rating := c.QueryInt("rating"); rating >= 1 && rating <= 5 {
		query = query.Where("rating = ?", rating)
	}

	switch c.Query("sort") {
	case "rating_desc":
		query = query.Order("rating desc, created_at desc")
	case "rating_asc":
		query = query.Order("rating asc, created_at desc")
	default:
		query = query.Order("created_at desc")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var reviews []models.Review
	if err := query.Offset(pagination.Offset).Limit(pagination.Limit).Find(&reviews).Error; err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusOK, "", fiber.Map{
		"reviews": reviews,
		"total":   total,
		"page":    pagination.Page,
		"limit":   pagination.Limit,
	})
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

// CreateReview records a review, at most one per user per product. The
// verified-purchase flag is computed once, from paid orders containing the
// product.
func (h *ProductHandler) CreateReview(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req createReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return fiber.NewError(fiber.StatusBadRequest, "rating must be between 1 and 5")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusNotFound, "Product not found.")
		}
		return err
	}

	var existing models.Review
	err = h.db.Where("user_id = ? AND product_id = ?", userID, productID).First(&existing).Error
	if err == nil {
		return respondError(c, fiber.StatusUnprocessableEntity, "You have already reviewed this product.")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var paidOrders int64
	if err := h.db.Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.payment_status = ? AND order_items.product_id = ?",
			userID, models.PaymentStatusPaid, productID).
		Count(&paidOrders).Error; err != nil {
		return err
	}

	review := models.Review{
		UserID:             userID,
		ProductID:          productID,
		Rating:             req.Rating,
		Title:              req.Title,
		Comment:            req.Comment,
		IsVerifiedPurchase: paidOrders > 0,
		IsApproved:         true,
	}
	if err := h.db.Create(&review).Error; err != nil {
		return err
	}

	if err := h.refreshRatingStats(productID); err != nil {
		return err
	}

	return respondSuccess(c, fiber.StatusCreated, "Thank you for your review!", fiber.Map{"review": review})
}

// refreshRatingStats recomputes a product's average rating and review count
// from its approved reviews.
func (h *ProductHandler) refreshRatingStats(productID uuid.UUID) error {
	var stats struct {
		Average decimal.NullDecimal
		Count   int64
	}
	if err := h.db.Model(&models.Review{}).
		Select("AVG(rating) as average, COUNT(*) as count").
		Where("product_id = ? AND is_approved = ?", productID, true).
		Scan(&stats).Error; err != nil {
		return err
	}

	average := decimal.Zero
	if stats.Average.Valid {
		average = stats.Average.Decimal.Round(2)
	}

	return h.db.Model(&models.Product{}).Where("id = ?", productID).
		Updates(map[string]interface{}{
			"average_rating": average,
			"reviews_count":  stats.Count,
		}).Error
}
