package domain

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// NormalizeCurrency upper-cases code and checks it is a known ISO 4217 currency
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || money.GetCurrency(code) == nil {
		return "", Errorf(KindInvalidInput, "unknown currency %q", code)
	}
	return code, nil
}

// NormalizeAmount checks amount is positive and representable in the
// currency's minor unit (RWF has none, USD has cents).
func NormalizeAmount(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return decimal.Zero, Errorf(KindInvalidInput, "unknown currency %q", currency)
	}
	if !amount.IsPositive() {
		return decimal.Zero, Errorf(KindInvalidInput, "amount must be positive")
	}
	places := int32(cur.Fraction)
	if !amount.Equal(amount.Round(places)) {
		return decimal.Zero, Errorf(KindInvalidInput, "%s supports %d decimal places", currency, places)
	}
	return amount, nil
}

// FormatAmount renders an amount with the currency's symbol and grouping
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.String() + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).IntPart()
	return money.New(minor, currency).Display()
}
