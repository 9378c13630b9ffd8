package api

import (
	"brokerage_system/internal/domain"  // Importing domain models
	"brokerage_system/internal/ledger"  // Wallet ledger
	"brokerage_system/internal/payment" // Payment gateway
	"brokerage_system/internal/shares"  // Share registry
	"brokerage_system/internal/utils"   // Utility functions
	"net/http"                          // HTTP status codes

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact decimal amounts
	"gorm.io/gorm"                  // GORM ORM library
)

// WalletResponse is the wallet summary returned to its owner
type WalletResponse struct {
	Balance   decimal.Decimal `json:"balance"`   // Settled balance
	Held      decimal.Decimal `json:"held"`      // Reserved for pending withdrawals
	Available decimal.Decimal `json:"available"` // Balance minus held
	Currency  string          `json:"currency"`  // ISO 4217 currency code
	Display   string          `json:"display"`   // Formatted available balance
}

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		ctx := c.Request.Context()                              // Request context
		cacheKey := utils.WalletKey(actor.UserID)               // Cache key for wallet
		var resp WalletResponse                                 // Response to fill
		found, err := utils.GetCache(ctx, rdb, cacheKey, &resp) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": resp, "cached": true})
			return
		}
		// If not in cache, fetch from DB
		w, err := ledger.NewStore(db).GetWallet(ctx, actor.UserID)
		if err != nil {
			writeError(c, err) // Wallet not found or database error
			return
		}
		resp = WalletResponse{
			Balance:   w.Balance,                                      // Settled balance
			Held:      w.HeldBalance,                                  // Held amount
			Available: w.Available(),                                  // Spendable amount
			Currency:  w.Currency,                                     // Wallet currency
			Display:   domain.FormatAmount(w.Available(), w.Currency), // Human readable
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, utils.WalletCacheTTL) // Cache the wallet summary
		c.JSON(http.StatusOK, gin.H{"wallet": resp, "cached": false})      // Return wallet info
	}
}

// GetTransactionHistoryHandler returns the paginated transaction history of the authenticated user
func GetTransactionHistoryHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		page, pageSize := pageParams(c)                              // Pagination parameters
		ctx := c.Request.Context()                                   // Request context
		cacheKey := utils.TxHistoryKey(actor.UserID, page, pageSize) // Cache key for this page
		var cached gin.H                                             // Cached page
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached page
			return
		}
		userID := actor.UserID // Scope to the caller
		txs, total, err := ledger.NewStore(db).ListTransactions(ctx, ledger.Filter{UserID: &userID}, page, pageSize)
		if err != nil {
			writeError(c, err) // Database error
			return
		}
		respData := gin.H{
			"transactions": txs,                         // List of transactions
			"page":         page,                        // Current page
			"page_size":    pageSize,                    // Page size
			"total":        total,                       // Total number of transactions
			"total_pages":  totalPages(total, pageSize), // Total pages
			"cached":       false,                       // Indicate response is not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, utils.WalletCacheTTL) // Cache the page
		c.JSON(http.StatusOK, respData)                                        // Return the response
	}
}

// GetHoldingsHandler returns the share holdings of the authenticated user
func GetHoldingsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		ctx := c.Request.Context()                  // Request context
		cacheKey := utils.HoldingsKey(actor.UserID) // Cache key for holdings
		var holdings []domain.ShareHolding          // Holdings to return
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &holdings); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"holdings": holdings, "cached": true}) // Return cached holdings
			return
		}
		holdings, err := shares.NewRegistry(db).ListHoldings(ctx, actor.UserID)
		if err != nil {
			writeError(c, err) // Database error
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, holdings, utils.WalletCacheTTL) // Cache the holdings
		c.JSON(http.StatusOK, gin.H{"holdings": holdings, "cached": false})    // Return holdings
	}
}

// FundRequest represents a wallet funding request
type FundRequest struct {
	Amount        decimal.Decimal `json:"amount"`         // Amount to charge
	Currency      string          `json:"currency"`       // Defaults to the service currency
	PaymentMethod string          `json:"payment_method"` // card, mobile_money or bank_transfer
	Phone         string          `json:"phone"`          // Mobile money payer
	Reference     string          `json:"reference"`      // Optional idempotency key
}

// FundHandler charges the payer through the processor and credits the wallet once the charge succeeds
func FundHandler(gw *payment.Gateway, defaultCurrency string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		var req FundRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // Malformed body
			return
		}
		out, err := gw.Fund(c.Request.Context(), actor, payment.FundRequest{
			Amount:        req.Amount,                               // Amount to charge
			Currency:      orDefault(req.Currency, defaultCurrency), // Currency
			PaymentMethod: req.PaymentMethod,                        // Payment method
			Phone:         req.Phone,                                // Payer phone
			Reference:     req.Reference,                            // Client reference
		})
		if err != nil {
			writeError(c, err) // Validation, processor or database error
			return
		}
		status := http.StatusCreated // New funding
		if out.Replayed {
			status = http.StatusOK // Same reference seen before
		}
		c.JSON(status, gin.H{
			"transaction": out.Transaction, // Funding transaction
			"next_action": out.NextAction,  // What the payer must do next
			"replayed":    out.Replayed,    // Whether this was a replay
		})
	}
}

// WithdrawRequest represents a withdrawal to a bank account
type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`                            // Amount to pay out
	Currency      string          `json:"currency"`                          // Defaults to the service currency
	AccountNumber string          `json:"account_number" binding:"required"` // Destination account
	BankCode      string          `json:"bank_code"`                         // Destination bank
	AccountName   string          `json:"account_name"`                      // Account holder
}

// WithdrawHandler holds the amount and starts a processor transfer
func WithdrawHandler(gw *payment.Gateway, defaultCurrency string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		var req WithdrawRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // Malformed body
			return
		}
		txn, err := gw.Withdraw(c.Request.Context(), actor, payment.WithdrawRequest{
			Amount:        req.Amount,                               // Amount to pay out
			Currency:      orDefault(req.Currency, defaultCurrency), // Currency
			AccountNumber: req.AccountNumber,                        // Destination account
			BankCode:      req.BankCode,                             // Destination bank
			AccountName:   req.AccountName,                          // Account holder
		})
		if err != nil {
			writeError(c, err) // Validation, funds, processor or database error
			return
		}
		c.JSON(http.StatusCreated, gin.H{"transaction": txn}) // Return the withdrawal
	}
}

// VerifyPaymentHandler asks the processor for the current state of a payment and reconciles it
func VerifyPaymentHandler(gw *payment.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		txn, err := gw.VerifyPayment(c.Request.Context(), actor, c.Param("processor_ref"))
		if err != nil {
			writeError(c, err) // Ownership, mismatch, processor or database error
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": txn}) // Return the reconciled transaction
	}
}

// BuyRequest represents a direct purchase of shares with wallet funds
type BuyRequest struct {
	CompanyID uint   `json:"company_id" binding:"required"` // Security to buy
	Shares    int64  `json:"shares"`                        // Number of shares
	Currency  string `json:"currency"`                      // Defaults to the service currency
}

// BuyHandler buys shares at the latest price with wallet funds
func BuyHandler(gw *payment.Gateway, defaultCurrency string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		var req BuyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // Malformed body
			return
		}
		out, err := gw.BuyWithBalance(c.Request.Context(), actor, payment.BuyRequest{
			CompanyID: req.CompanyID,                            // Security
			Shares:    req.Shares,                               // Share count
			Currency:  orDefault(req.Currency, defaultCurrency), // Currency
		})
		if err != nil {
			writeError(c, err) // Quantity, volume, funds or database error
			return
		}
		c.JSON(http.StatusCreated, out) // Return the purchase
	}
}

// orDefault returns v, or fallback when v is empty
func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
