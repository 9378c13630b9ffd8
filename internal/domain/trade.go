package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is buy or sell
type OrderType string

const (
	OrderBuy  OrderType = "buy"
	OrderSell OrderType = "sell"
)

// OrderStatus is a state of the trade state machine
type OrderStatus string

const (
	StatusPendingBrokerApproval OrderStatus = "pending_broker_approval"
	StatusPendingPayment        OrderStatus = "pending_payment"
	StatusPaymentConfirmed      OrderStatus = "payment_confirmed"
	StatusSharesReleased        OrderStatus = "shares_released"
	StatusPendingMarketListing  OrderStatus = "pending_market_listing"
	StatusListedOnMarket        OrderStatus = "listed_on_market"
	StatusCompleted             OrderStatus = "completed"
	StatusCancelled             OrderStatus = "cancelled"
	StatusRejected              OrderStatus = "rejected"
)

// Terminal reports whether the order can no longer move
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// TradeOrder Model
type TradeOrder struct {
	ID               uint            `gorm:"primaryKey" json:"id"`                               // Primary key
	Type             OrderType       `gorm:"size:4;not null" json:"type"`                        // buy or sell
	CustomerID       uint            `gorm:"index;not null" json:"customer_id"`                  // Ordering customer
	BrokerID         uint            `gorm:"index;not null" json:"broker_id"`                    // Assigned broker
	CompanyID        uint            `gorm:"index;not null" json:"company_id"`                   // Security
	Shares           int64           `gorm:"not null" json:"shares"`                             // Requested share count
	PricePerShare    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price_per_share"` // Agreed price
	TotalValue       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_value"`     // Shares x price
	Currency         string          `gorm:"size:3;not null" json:"currency"`                    // Settlement currency
	Status           OrderStatus     `gorm:"size:32;index;not null" json:"status"`               // State machine status
	PaymentReference *string         `gorm:"size:128" json:"payment_reference,omitempty"`        // Payment proof
	PaidFromWallet   bool            `gorm:"not null;default:false" json:"paid_from_wallet"`     // Paid with a wallet debit
	Notes            string          `gorm:"size:512" json:"notes"`                              // Free text
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`                             // Set when completed
	CreatedAt        time.Time       `json:"created_at"`                                         // Creation time
	UpdatedAt        time.Time       `json:"updated_at"`                                         // Last update time
}
