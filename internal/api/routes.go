package api

import (
	"brokerage_system/internal/domain"     // Roles
	"brokerage_system/internal/metrics"    // Prometheus metrics
	"brokerage_system/internal/middleware" // Auth and role middleware
	"brokerage_system/internal/payment"    // Payment gateway
	"brokerage_system/internal/trade"      // Trade state machine
	"time"                                 // Time durations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// Deps is everything the routes need. Redis and Metrics may be nil.
type Deps struct {
	DB              *gorm.DB
	Redis           *redis.Client
	Gateway         *payment.Gateway
	Trades          *trade.Service
	Metrics         *metrics.Metrics
	JWTSecret       string
	DefaultCurrency string
	ReconcileMinAge time.Duration
	ReconcileBatch  int
}

// RegisterRoutes mounts every route on r
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestMetricsMiddleware(d.Metrics)) // Count every request

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler())) // Prometheus scrape endpoint
	}

	// Auth routes
	r.POST("/user", RegisterHandler(d.DB))                 // Registration endpoint
	r.POST("/user/login", LoginHandler(d.DB, d.JWTSecret)) // Login endpoint

	// Processor webhook, authenticated by its signature
	r.POST("/webhooks/processor", ProcessorWebhookHandler(d.Gateway))

	authed := r.Group("") // Every route below needs a valid token and a known user
	authed.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.LoadActorMiddleware(d.DB))
	payer := middleware.RequireRole(domain.RoleCustomer, domain.RoleAdmin) // Customers and admins move money

	// Wallet routes
	walletGroup := authed.Group("/wallet")
	walletGroup.GET("", GetWalletHandler(d.DB, d.Redis))                          // Balance and available
	walletGroup.GET("/transactions", GetTransactionHistoryHandler(d.DB, d.Redis)) // Transaction history
	walletGroup.GET("/holdings", GetHoldingsHandler(d.DB, d.Redis))               // Share holdings
	walletGroup.POST("/fund", payer, FundHandler(d.Gateway, d.DefaultCurrency))   // Funding via processor charge
	walletGroup.POST("/withdraw", payer, WithdrawHandler(d.Gateway, d.DefaultCurrency))
	walletGroup.POST("/verify/:processor_ref", VerifyPaymentHandler(d.Gateway)) // Verification pull
	walletGroup.POST("/buy", payer, BuyHandler(d.Gateway, d.DefaultCurrency))   // Direct wallet buy

	// Trade routes
	tradeGroup := authed.Group("/trades")
	tradeGroup.POST("", payer, CreateTradeHandler(d.Trades, d.DefaultCurrency)) // Place an order
	tradeGroup.GET("", ListTradesHandler(d.Trades))                             // Orders the caller is party to
	tradeGroup.GET("/:id", GetTradeHandler(d.Trades))                           // One order
	tradeGroup.POST("/:id/status", AdvanceTradeHandler(d.Trades))               // State machine move
	tradeGroup.POST("/:id/payment-proof", payer, PaymentProofHandler(d.Trades)) // Confirm payment with proof
	tradeGroup.POST("/:id/pay", payer, PayTradeHandler(d.Trades))               // Pay from wallet

	// Market routes
	marketGroup := authed.Group("/market")
	marketGroup.GET("/companies", ListCompaniesHandler(d.DB))           // All companies
	marketGroup.GET("/companies/:id", GetCompanyHandler(d.DB, d.Redis)) // Latest price

	// Admin routes
	adminGroup := authed.Group("/admin", middleware.AdminOnlyMiddleware())
	adminGroup.GET("/users", ListUsersHandler(d.DB, d.Redis))                                                  // List users
	adminGroup.POST("/users", RegisterHandler(d.DB, domain.RoleCustomer, domain.RoleBroker, domain.RoleAdmin)) // Create staff accounts
	adminGroup.GET("/transactions", ListTransactionsHandler(d.DB, d.Redis))                                    // List transactions
	adminGroup.PUT("/companies", UpsertCompanyHandler(d.DB, d.Redis))                                          // Register or refresh a company
	adminGroup.POST("/reconcile", ReconcileHandler(d.Gateway, d.ReconcileMinAge, d.ReconcileBatch))            // On-demand sweep
}
