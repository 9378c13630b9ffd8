package domain

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Wallet Model
type Wallet struct {
	ID          uint            `gorm:"primaryKey" json:"id"`                                      // Primary key
	UserID      uint            `gorm:"uniqueIndex" json:"user_id"`                                // Foreign key to User
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`      // Settled balance
	HeldBalance decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"held_balance"` // Reserved for pending withdrawals
	Currency    string          `gorm:"size:3;not null" json:"currency"`                           // ISO 4217 currency code
	CreatedAt   time.Time       `json:"created_at"`                                                // Creation time
	UpdatedAt   time.Time       `json:"updated_at"`                                                // Last update time
}

// Available is the part of the balance that is not reserved
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.HeldBalance)
}

// Direction of a ledger entry
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// TxStatus is the lifecycle status of a WalletTransaction
type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxSuccessful TxStatus = "successful"
	TxFailed     TxStatus = "failed"
	TxReversed   TxStatus = "reversed"
)

// Terminal reports whether no further transition is allowed from s
func (s TxStatus) Terminal() bool {
	return s == TxSuccessful || s == TxFailed || s == TxReversed
}

// TxKind says why a wallet transaction exists
type TxKind string

const (
	KindFunding       TxKind = "funding"
	KindWithdrawal    TxKind = "withdrawal"
	KindSharePurchase TxKind = "share_purchase"
	KindTradePayment  TxKind = "trade_payment"
	KindTradeRefund   TxKind = "trade_refund"
	KindSaleProceeds  TxKind = "sale_proceeds"
)

// WalletTransaction Model
type WalletTransaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`                                // Primary key
	UserID       uint            `gorm:"index;not null" json:"user_id"`                       // Owning user
	WalletID     uint            `gorm:"index;not null" json:"wallet_id"`                     // Owning wallet
	Direction    Direction       `gorm:"size:6;not null" json:"direction"`                    // CREDIT or DEBIT
	Kind         TxKind          `gorm:"size:32;not null" json:"kind"`                        // Business purpose
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`           // Always positive
	Currency     string          `gorm:"size:3;not null" json:"currency"`                     // ISO 4217 currency code
	Status       TxStatus        `gorm:"size:16;index;not null" json:"status"`                // pending, successful, failed, reversed
	Reference    string          `gorm:"size:64;uniqueIndex;not null" json:"reference"`       // Internal idempotency reference
	ProcessorRef *string         `gorm:"size:128;uniqueIndex" json:"processor_ref,omitempty"` // External processor reference
	Reserved     bool            `gorm:"not null;default:false" json:"reserved"`              // Amount is held on the wallet while pending
	Notes        string          `gorm:"size:512" json:"notes"`                               // Free text
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`                              // Set on terminal status
	CreatedAt    time.Time       `json:"created_at"`                                          // Creation time
	UpdatedAt    time.Time       `json:"updated_at"`                                          // Last update time
}

// NotesLimit is the width of the notes columns, in characters
const NotesLimit = 512

// ClipNotes cuts s down to NotesLimit characters
func ClipNotes(s string) string {
	if utf8.RuneCountInString(s) <= NotesLimit {
		return s
	}
	return string([]rune(s)[:NotesLimit])
}
