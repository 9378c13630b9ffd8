package payment

import (
	"context"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/ledger"
	"brokerage_system/internal/market"
	"brokerage_system/internal/shares"
	"brokerage_system/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BuyRequest is a direct wallet-to-security purchase at the market price
type BuyRequest struct {
	CompanyID uint
	Shares    int64
	Currency  string
}

// BuyResult is the committed purchase
type BuyResult struct {
	Transaction *domain.WalletTransaction `json:"transaction"`
	Holding     *domain.ShareHolding      `json:"holding"`
	Price       decimal.Decimal           `json:"price"`
}

// BuyWithBalance buys shares straight from the company's unsold pool with
// wallet funds, without a broker. The latest price is read under the
// company row lock; the volume check comes before the funds check.
func (g *Gateway) BuyWithBalance(ctx context.Context, actor domain.Actor, req BuyRequest) (*BuyResult, error) {
	if req.Shares < 1 {
		return nil, domain.Errorf(domain.KindInvalidQuantity, "a purchase needs at least one share")
	}
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	out := &BuyResult{}
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		companies := market.NewStore(tx)
		company, price, err := companies.LatestPrice(ctx, req.CompanyID)
		if err != nil {
			return err
		}
		if company.AvailableVolume < req.Shares {
			return domain.Errorf(domain.KindInsufficientShares, "%s has %d shares available, %d requested", company.Symbol, company.AvailableVolume, req.Shares)
		}
		total, err := domain.NormalizeAmount(price.Mul(decimal.NewFromInt(req.Shares)), currency)
		if err != nil {
			return domain.Errorf(domain.KindInvalidInput, "%d %s at %s is not payable: %v", req.Shares, company.Symbol, price, err)
		}

		store := ledger.NewStore(tx)
		w, err := store.WalletFor(ctx, actor.UserID, currency)
		if err != nil {
			return err
		}
		out.Transaction, err = store.RecordSettled(ctx, &domain.WalletTransaction{
			UserID:    actor.UserID,
			WalletID:  w.ID,
			Direction: domain.Debit,
			Kind:      domain.KindSharePurchase,
			Amount:    total,
			Currency:  currency,
			Notes:     "purchase of " + company.Symbol,
		})
		if err != nil {
			return err
		}
		if _, err := companies.DecrementVolume(ctx, company.ID, req.Shares); err != nil {
			return err
		}
		out.Holding, err = shares.NewRegistry(tx).CreditShares(ctx, actor.UserID, company.ID, req.Shares, price)
		out.Price = price
		return err
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    actor.UserID,
		"reference":  out.Transaction.Reference,
		"company_id": req.CompanyID,
		"shares":     req.Shares,
		"price":      out.Price.String(),
		"amount":     out.Transaction.Amount.String(),
		"status":     out.Transaction.Status,
	}).Info("Shares bought with wallet balance")
	g.changed(ctx, out.Transaction)
	_ = utils.DeleteCache(ctx, g.rdb, utils.CompanyKey(req.CompanyID))
	return out, nil
}
