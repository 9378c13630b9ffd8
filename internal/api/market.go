package api

import (
	"brokerage_system/internal/domain" // Importing domain models
	"brokerage_system/internal/market" // Company feed
	"brokerage_system/internal/utils"  // Utility functions
	"net/http"                         // HTTP status codes
	"strings"                          // String manipulation

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact decimal amounts
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

// ListCompaniesHandler returns every listed company
func ListCompaniesHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		companies, err := market.NewStore(db).List(c.Request.Context())
		if err != nil {
			writeError(c, err) // Database error
			return
		}
		c.JSON(http.StatusOK, gin.H{"companies": companies}) // Return companies
	}
}

// GetCompanyHandler returns the latest price and tradable volume of a company
func GetCompanyHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id") // Company ID
		if !ok {
			return
		}
		ctx := c.Request.Context()       // Request context
		cacheKey := utils.CompanyKey(id) // Cache key for the company
		var company domain.Company       // Company to return
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &company); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"company": company, "cached": true}) // Return cached company
			return
		}
		got, err := market.NewStore(db).Get(ctx, id)
		if err != nil {
			writeError(c, err) // Not found or database error
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, got, utils.MarketCacheTTL) // Short-lived price cache
		c.JSON(http.StatusOK, gin.H{"company": got, "cached": false})     // Return company
	}
}

// CompanyRequest registers or refreshes a company
type CompanyRequest struct {
	Symbol          string          `json:"symbol" binding:"required"` // Ticker
	Name            string          `json:"name"`                      // Display name
	ClosingPrice    decimal.Decimal `json:"closing_price"`             // Latest closing price
	AvailableVolume int64           `json:"available_volume"`          // Issued but unsold shares
}

// UpsertCompanyHandler creates or updates a company by symbol
func UpsertCompanyHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompanyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // Malformed body
			return
		}
		ctx := c.Request.Context() // Request context
		company := &domain.Company{
			Symbol:          strings.ToUpper(strings.TrimSpace(req.Symbol)), // Tickers are upper case
			Name:            req.Name,                                       // Display name
			ClosingPrice:    req.ClosingPrice,                               // Closing price
			AvailableVolume: req.AvailableVolume,                            // Tradable pool
		}
		store := market.NewStore(db)
		if err := store.Upsert(ctx, company); err != nil {
			writeError(c, err) // Validation or database error
			return
		}
		// Read back, the row ID is not returned on update
		saved, err := store.BySymbol(ctx, company.Symbol)
		if err != nil {
			writeError(c, err)
			return
		}
		_ = utils.DeleteCache(ctx, rdb, utils.CompanyKey(saved.ID)) // Drop the stale price
		logrus.WithFields(logrus.Fields{
			"symbol":           saved.Symbol,          // Ticker
			"closing_price":    saved.ClosingPrice,    // Price
			"available_volume": saved.AvailableVolume, // Pool
		}).Info("Company upserted")
		c.JSON(http.StatusOK, gin.H{"company": saved}) // Return the company
	}
}
