package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShareHolding Model, one row per (user, company)
type ShareHolding struct {
	ID           uint            `gorm:"primaryKey" json:"id"`                                            // Primary key
	UserID       uint            `gorm:"uniqueIndex:idx_holding_user_company;not null" json:"user_id"`    // Owner
	CompanyID    uint            `gorm:"uniqueIndex:idx_holding_user_company;not null" json:"company_id"` // Security
	Shares       int64           `gorm:"not null;default:0" json:"shares"`                                // Never negative
	AveragePrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"average_price"`      // Weighted average cost
	UpdatedAt    time.Time       `json:"updated_at"`                                                      // Last update time
}

// Company Model, the security reference fed by the market data ingestion
type Company struct {
	ID              uint            `gorm:"primaryKey" json:"id"`                                       // Primary key
	Symbol          string          `gorm:"size:16;uniqueIndex;not null" json:"symbol"`                 // Ticker
	Name            string          `gorm:"size:128" json:"name"`                                       // Display name
	ClosingPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"closing_price"` // Market price reference
	AvailableVolume int64           `gorm:"not null;default:0" json:"available_volume"`                 // Issued-but-unsold pool
	UpdatedAt       time.Time       `json:"updated_at"`                                                 // Last update time
}
