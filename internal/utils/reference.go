package utils

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// Reference prefixes
const (
	RefFunding    = "FND"
	RefWithdrawal = "WDR"
	RefPurchase   = "BUY"
	RefTrade      = "TRD"
	RefRecovery   = "RCV"
	RefPayment    = "PAY"
	RefRefund     = "RFD"
	RefProceeds   = "SAL"
)

// NewReference returns a unique, time-sortable idempotency reference such as
// FND-01J9Z5M3R7Q8X2V4K6N1P0T5WB.
func NewReference(prefix string) string {
	return strings.ToUpper(prefix) + "-" + ulid.Make().String()
}
