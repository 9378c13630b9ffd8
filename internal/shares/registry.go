// Package shares keeps per-user share holdings.
package shares

import (
	"context"
	"errors"

	"brokerage_system/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry is the holdings repository
type Registry struct {
	db *gorm.DB
}

// NewRegistry binds the registry to a database handle
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// WithTx returns a copy of the registry bound to an open transaction
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx}
}

// GetHolding returns the user's holding in a company. A missing row reads as
// a zero holding.
func (r *Registry) GetHolding(ctx context.Context, userID, companyID uint) (*domain.ShareHolding, error) {
	var h domain.ShareHolding
	err := r.db.WithContext(ctx).Where("user_id = ? AND company_id = ?", userID, companyID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.ShareHolding{UserID: userID, CompanyID: companyID, AveragePrice: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHoldings returns the user's non-empty holdings
func (r *Registry) ListHoldings(ctx context.Context, userID uint) ([]domain.ShareHolding, error) {
	var hs []domain.ShareHolding
	err := r.db.WithContext(ctx).Where("user_id = ? AND shares > 0", userID).Order("company_id").Find(&hs).Error
	return hs, err
}

func (r *Registry) lock(ctx context.Context, userID, companyID uint) (*domain.ShareHolding, error) {
	h := domain.ShareHolding{UserID: userID, CompanyID: companyID, AveragePrice: decimal.Zero}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "company_id"}}, DoNothing: true}).
		Create(&h).Error
	if err != nil {
		return nil, err
	}
	var locked domain.ShareHolding
	err = r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND company_id = ?", userID, companyID).First(&locked).Error
	if err != nil {
		return nil, err
	}
	return &locked, nil
}

// CreditShares adds shares bought at price and recomputes the weighted
// average cost.
func (r *Registry) CreditShares(ctx context.Context, userID, companyID uint, shares int64, price decimal.Decimal) (*domain.ShareHolding, error) {
	if shares <= 0 {
		return nil, domain.Errorf(domain.KindInvalidQuantity, "share quantity must be positive, got %d", shares)
	}
	if price.IsNegative() {
		return nil, domain.Errorf(domain.KindInvalidInput, "price must not be negative")
	}
	h, err := r.lock(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	total := h.Shares + shares
	cost := h.AveragePrice.Mul(decimal.NewFromInt(h.Shares)).Add(price.Mul(decimal.NewFromInt(shares)))
	h.AveragePrice = cost.DivRound(decimal.NewFromInt(total), 4)
	h.Shares = total
	err = r.db.WithContext(ctx).Model(&domain.ShareHolding{}).Where("id = ?", h.ID).
		Updates(map[string]any{"shares": h.Shares, "average_price": h.AveragePrice}).Error
	if err != nil {
		return nil, err
	}
	return h, nil
}

// DebitShares removes shares from a holding. The average cost is kept so a
// partial sale does not change the cost basis of what remains.
func (r *Registry) DebitShares(ctx context.Context, userID, companyID uint, shares int64) (*domain.ShareHolding, error) {
	if shares <= 0 {
		return nil, domain.Errorf(domain.KindInvalidQuantity, "share quantity must be positive, got %d", shares)
	}
	h, err := r.lock(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	if h.Shares < shares {
		return nil, domain.Errorf(domain.KindInsufficientShares, "holding %d below %d", h.Shares, shares)
	}
	h.Shares -= shares
	updates := map[string]any{"shares": h.Shares}
	if h.Shares == 0 {
		h.AveragePrice = decimal.Zero
		updates["average_price"] = h.AveragePrice
	}
	if err := r.db.WithContext(ctx).Model(&domain.ShareHolding{}).Where("id = ?", h.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return h, nil
}
