package api

import (
	"brokerage_system/internal/domain" // Importing domain models
	"brokerage_system/internal/trade"  // Trade state machine
	"net/http"                         // HTTP status codes

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Exact decimal amounts
)

// CreateTradeRequest represents a new buy or sell order
type CreateTradeRequest struct {
	Type          string          `json:"type" binding:"required"`       // buy or sell
	CustomerID    uint            `json:"customer_id"`                   // Admins only: order on behalf of a customer
	BrokerID      uint            `json:"broker_id" binding:"required"`  // Broker that mediates the order
	CompanyID     uint            `json:"company_id" binding:"required"` // Security
	Shares        int64           `json:"shares"`                        // Share count
	PricePerShare decimal.Decimal `json:"price_per_share"`               // Zero means the closing price
	Currency      string          `json:"currency"`                      // Defaults to the service currency
	Notes         string          `json:"notes"`                         // Free text
}

// CreateTradeHandler places a new order awaiting broker approval
func CreateTradeHandler(svc *trade.Service, defaultCurrency string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		var req CreateTradeRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // Malformed body
			return
		}
		order, err := svc.Create(c.Request.Context(), actor, trade.CreateRequest{
			Type:          domain.OrderType(req.Type),               // Order type
			CustomerID:    req.CustomerID,                           // Customer
			BrokerID:      req.BrokerID,                             // Broker
			CompanyID:     req.CompanyID,                            // Security
			Shares:        req.Shares,                               // Share count
			PricePerShare: req.PricePerShare,                        // Agreed price
			Currency:      orDefault(req.Currency, defaultCurrency), // Currency
			Notes:         req.Notes,                                // Notes
		})
		if err != nil {
			writeError(c, err) // Validation or database error
			return
		}
		c.JSON(http.StatusCreated, gin.H{"order": order}) // Return the new order
	}
}

// ListTradesHandler returns the orders the caller is party to
func ListTradesHandler(svc *trade.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		page, pageSize := pageParams(c) // Pagination parameters
		filter := trade.ListFilter{
			Status: domain.OrderStatus(c.Query("status")), // Optional status filter
			Type:   domain.OrderType(c.Query("type")),     // Optional type filter
		}
		orders, total, err := svc.List(c.Request.Context(), actor, filter, page, pageSize)
		if err != nil {
			writeError(c, err) // Database error
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"orders":      orders,                      // List of orders
			"page":        page,                        // Current page
			"page_size":   pageSize,                    // Page size
			"total":       total,                       // Total number of orders
			"total_pages": totalPages(total, pageSize), // Total pages
		})
	}
}

// GetTradeHandler returns one order
func GetTradeHandler(svc *trade.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		id, ok := idParam(c, "id") // Order ID
		if !ok {
			return
		}
		order, err := svc.Get(c.Request.Context(), actor, id)
		if err != nil {
			writeError(c, err) // Not found or not a party
			return
		}
		next := trade.Next(actor, order) // Moves the caller may make
		c.JSON(http.StatusOK, gin.H{"order": order, "next": next})
	}
}

// AdvanceTradeRequest asks for one status change
type AdvanceTradeRequest struct {
	Status           string `json:"status" binding:"required"` // Target status
	PaymentReference string `json:"payment_reference"`         // Required when confirming payment
	Notes            string `json:"notes"`                     // Free text
}

// AdvanceTradeHandler moves an order along the state machine
func AdvanceTradeHandler(svc *trade.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		id, ok := idParam(c, "id") // Order ID
		if !ok {
			return
		}
		var req AdvanceTradeRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // Malformed body
			return
		}
		order, err := svc.Advance(c.Request.Context(), actor, id, trade.AdvanceRequest{
			To:               domain.OrderStatus(req.Status), // Target status
			PaymentReference: req.PaymentReference,           // Payment proof
			Notes:            req.Notes,                      // Notes
		})
		if err != nil {
			writeError(c, err) // Transition, role, settlement or database error
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order}) // Return the moved order
	}
}

// PaymentProofRequest carries the customer's payment reference
type PaymentProofRequest struct {
	Reference string `json:"reference" binding:"required"` // Bank or processor reference
}

// PaymentProofHandler records payment proof and confirms payment
func PaymentProofHandler(svc *trade.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		id, ok := idParam(c, "id") // Order ID
		if !ok {
			return
		}
		var req PaymentProofRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // Malformed body
			return
		}
		order, err := svc.AttachPaymentProof(c.Request.Context(), actor, id, req.Reference)
		if err != nil {
			writeError(c, err) // Transition, role or database error
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order}) // Return the confirmed order
	}
}

// PayTradeHandler pays a buy order from the customer's wallet
func PayTradeHandler(svc *trade.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c) // Get actor from context
		if !ok {
			return
		}
		id, ok := idParam(c, "id") // Order ID
		if !ok {
			return
		}
		order, err := svc.PayFromWallet(c.Request.Context(), actor, id)
		if err != nil {
			writeError(c, err) // Funds, transition, role or database error
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order}) // Return the paid order
	}
}
