package api

import (
	"brokerage_system/internal/domain"     // Importing domain models
	"brokerage_system/internal/middleware" // Actor lookup
	"net/http"                             // HTTP status codes
	"strconv"                              // String conversion

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// statusByKind maps business error kinds to HTTP status codes
var statusByKind = map[domain.ErrorKind]int{
	domain.KindInvalidInput:         http.StatusBadRequest,
	domain.KindInvalidQuantity:      http.StatusBadRequest,
	domain.KindInvalidSignature:     http.StatusUnauthorized,
	domain.KindInsufficientFunds:    http.StatusPaymentRequired,
	domain.KindForbidden:            http.StatusForbidden,
	domain.KindNotFound:             http.StatusNotFound,
	domain.KindInvalidTransition:    http.StatusConflict,
	domain.KindDuplicateReference:   http.StatusConflict,
	domain.KindInsufficientShares:   http.StatusUnprocessableEntity,
	domain.KindAmountMismatch:       http.StatusUnprocessableEntity,
	domain.KindProcessorUnavailable: http.StatusServiceUnavailable,
}

// writeError answers with the status of a classified error. Anything else is
// an internal failure: it is logged and its details are not exposed.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err) // Classify the error
	if status, ok := statusByKind[kind]; ok {
		c.JSON(status, gin.H{"error": err.Error(), "code": kind}) // Business error
		return
	}
	// Log the internal error with context
	logrus.WithFields(logrus.Fields{
		"method": c.Request.Method, // HTTP method
		"path":   c.FullPath(),     // Route template
		"error":  err.Error(),      // Error message
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

// actorOf returns the authenticated actor or answers 401
func actorOf(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c) // Get actor from context
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"}) // No actor, unauthorized
	}
	return actor, ok
}

// pageParams reads page and page_size with the usual defaults and bounds
func pageParams(c *gin.Context) (int, int) {
	page := 1      // Default page number
	pageSize := 20 // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// Check and set page size within limits
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v // Set page size
		}
	}
	return page, pageSize
}

// idParam parses a numeric path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64) // Parse path parameter
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name}) // Not a valid ID
		return 0, false
	}
	return uint(v), true
}

// totalPages computes the page count for a listing
func totalPages(total int64, pageSize int) int {
	return (int(total) + pageSize - 1) / pageSize
}
