package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/handlers"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	gateway := services.NewStripeGateway(cfg.StripeSecretKey, cfg.PaymentBaseURL)

	cartService := services.NewCartService(db)
	wishlistService := services.NewWishlistService(db, cartService)
	checkoutService := services.NewCheckoutService(db, cartService, gateway, cfg.PaymentTimeout, telegramService)

	authHandler := handlers.NewAuthHandler(db, cfg, cartService, wishlistService)
	productHandler := handlers.NewProductHandler(db)
	cartHandler := handlers.NewCartHandler(cartService)
	wishlistHandler := handlers.NewWishlistHandler(wishlistService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, cfg)
	accountHandler := handlers.NewAccountHandler(db, checkoutService)
	newsletterHandler := handlers.NewNewsletterHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth", middleware.OptionalAuthMiddleware(cfg))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Catalog routes
	products := api.Group("/products")
	products.Get("/", productHandler.List)
	products.Post("/", productHandler.Create)
	products.Get("/:slug", productHandler.Get)
	products.Put("/:id", productHandler.Update)
	products.Delete("/:id", productHandler.Delete)
	products.Get("/:id/reviews", productHandler.Reviews)
	products.Post("/:id/reviews", middleware.AuthMiddleware(cfg), productHandler.CreateReview)

	categories := api.Group("/categories")
	categories.Get("/", productHandler.Categories)
	categories.Get("/:slug", productHandler.GetCategory)

	// Cart and wishlist work for guests and users alike
	cart := api.Group("/cart", middleware.OptionalAuthMiddleware(cfg))
	cart.Get("/", cartHandler.Index)
	cart.Get("/count", cartHandler.Count)
	cart.Post("/items", cartHandler.Add)
	cart.Patch("/items/:id", cartHandler.Update)
	cart.Delete("/items/:id", cartHandler.Remove)
	cart.Delete("/", cartHandler.Clear)

	wishlist := api.Group("/wishlist", middleware.OptionalAuthMiddleware(cfg))
	wishlist.Get("/", wishlistHandler.Index)
	wishlist.Get("/count", wishlistHandler.Count)
	wishlist.Post("/items", wishlistHandler.Add)
	wishlist.Delete("/items/:productId", wishlistHandler.Remove)
	wishlist.Delete("/", wishlistHandler.Clear)
	wishlist.Post("/items/:productId/move-to-cart", wishlistHandler.MoveToCart)

	// Newsletter
	newsletter := api.Group("/newsletter")
	newsletter.Post("/subscribe", newsletterHandler.Subscribe)
	newsletter.Get("/unsubscribe/:token", newsletterHandler.Unsubscribe)

	// Gateway webhook, verified by signature instead of auth
	api.Post("/webhooks/payment", checkoutHandler.Webhook)

	// Checkout and account require a logged-in user
	checkout := api.Group("/checkout", middleware.AuthMiddleware(cfg))
	checkout.Get("/", checkoutHandler.Begin)
	checkout.Post("/payment-intent", checkoutHandler.CreatePaymentIntent)
	checkout.Post("/orders", checkoutHandler.PlaceOrder)

	account := api.Group("/account", middleware.AuthMiddleware(cfg))
	account.Get("/dashboard", accountHandler.Dashboard)
	account.Get("/profile", accountHandler.Profile)
	account.Put("/profile", accountHandler.UpdateProfile)
	account.Put("/password", accountHandler.ChangePassword)
	account.Get("/orders", accountHandler.Orders)
	account.Get("/orders/:id", accountHandler.GetOrder)
	account.Post("/orders/:id/cancel", accountHandler.CancelOrder)
	account.Get("/reviews", accountHandler.Reviews)

	// Fulfilment status management
	api.Patch("/orders/:id/status", accountHandler.UpdateOrderStatus)
}
