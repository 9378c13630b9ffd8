package api

import (
	"brokerage_system/internal/domain"  // Importing domain models
	"brokerage_system/internal/ledger"  // Wallet ledger
	"brokerage_system/internal/payment" // Payment gateway
	"brokerage_system/internal/utils"   // Utility functions
	"net/http"                          // HTTP status codes
	"strconv"                           // String conversion
	"strings"                           // String manipulation
	"time"                              // Time durations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

const adminCacheTTL = 60 * time.Second // Admin listings cache TTL

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID       uint           `json:"id"`               // User ID
	Username string         `json:"username"`         // Username
	Email    string         `json:"email"`            // Email
	Role     string         `json:"role"`             // User role
	Wallet   *domain.Wallet `json:"wallet,omitempty"` // Associated wallet, if any
}

// ListUsersHandler returns all users with their wallet info
func ListUsersHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()      // Request context
		page, pageSize := pageParams(c) // Pagination parameters
		// Create a cache key based on pagination parameters
		cacheKey := "admin:users:page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize) + ":role=" + c.Query("role")
		var cached gin.H // Cached page
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached page
			return
		}
		query := db.WithContext(ctx).Model(&domain.User{}) // Start building the query
		if role := c.Query("role"); role != "" {
			query = query.Where("role = ?", role) // Filter by role
		}
		var total int64 // Total user count
		if err := query.Count(&total).Error; err != nil {
			writeError(c, err) // Database error
			return
		}
		var users []domain.User // Slice to hold users
		// Preload Wallet relation, apply offset and limit for pagination
		if err := query.Preload("Wallet").Order("id").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
			writeError(c, err) // Database error
			return
		}
		// Map users to response format
		resp := make([]UserAdminResponse, len(users))
		for i, u := range users {
			resp[i] = UserAdminResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
			if u.Wallet.ID != 0 {
				w := u.Wallet       // Copy before taking the address
				resp[i].Wallet = &w // Only users who funded have a wallet
			}
		}
		respData := gin.H{
			"users":       resp,                        // List of users
			"page":        page,                        // Current page
			"page_size":   pageSize,                    // Page size
			"total":       total,                       // Total number of users
			"total_pages": totalPages(total, pageSize), // Total pages
			"cached":      false,                       // Indicate response is not from cache
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, adminCacheTTL) // Cache the response for future requests
		c.JSON(http.StatusOK, respData)                                 // Return the response
	}
}

// ListTransactionsHandler returns all wallet transactions, with optional filtering by user, kind, status or date
func ListTransactionsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()      // Request context
		page, pageSize := pageParams(c) // Pagination parameters
		filter := ledger.Filter{
			Kind:   domain.TxKind(c.Query("kind")),     // Optional kind filter
			Status: domain.TxStatus(c.Query("status")), // Optional status filter
		}
		if v := c.Query("user_id"); v != "" {
			id, err := strconv.ParseUint(v, 10, 64) // Parse user ID
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
				return
			}
			userID := uint(id)
			filter.UserID = &userID // Filter by user ID
		}
		for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
			v := c.Query(name)
			if v == "" {
				continue
			}
			t, err := parseTime(v) // RFC 3339 or plain date
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
				return
			}
			*dst = &t
		}
		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"user_id", "kind", "status", "from", "to"} {
			keyParts = append(keyParts, k+"="+c.Query(k)) // Append key-value pair
		}
		keyParts = append(keyParts, "page="+strconv.Itoa(page), "size="+strconv.Itoa(pageSize))
		cacheKey := "admin:txs:" + strings.Join(keyParts, ":")
		var cached gin.H // Cached page
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached["cached"] = true       // Indicate response is from cache
			c.JSON(http.StatusOK, cached) // Return cached page
			return
		}
		txs, total, err := ledger.NewStore(db).ListTransactions(ctx, filter, page, pageSize)
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
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, adminCacheTTL) // Cache the response for future requests
		c.JSON(http.StatusOK, respData)                                 // Return the response
	}
}

// ReconcileHandler runs one reconciliation sweep on demand
func ReconcileHandler(gw *payment.Gateway, minAge time.Duration, batch int) gin.HandlerFunc {
	return func(c *gin.Context) {
		age, limit := minAge, batch // Configured defaults
		if v := c.Query("min_age"); v != "" {
			d, err := time.ParseDuration(v) // Go duration, e.g. 30s
			if err != nil || d < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min_age"})
				return
			}
			age = d
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v) // Batch size
			if err != nil || n <= 0 || n > 500 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
				return
			}
			limit = n
		}
		summary, err := gw.ReconcilePending(c.Request.Context(), age, limit)
		// Log the sweep with its counts
		logrus.WithFields(logrus.Fields{
			"checked": summary.Checked, // Transactions polled
			"settled": summary.Settled, // Settled now
			"failed":  summary.Failed,  // Failed or reversed now
			"pending": summary.Pending, // Still pending
			"errors":  summary.Errors,  // Per-transaction errors
		}).Info("Manual reconciliation sweep")
		if err != nil {
			writeError(c, err) // Processor unavailable or database error
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary}) // Return the sweep summary
	}
}

// parseTime accepts RFC 3339 timestamps and plain dates
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
