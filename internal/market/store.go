// Package market reads company prices and maintains the unsold share pool.
package market

import (
	"context"
	"errors"

	"brokerage_system/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the company repository
type Store struct {
	db *gorm.DB
}

// NewStore binds the repository to a database handle
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a copy of the store bound to an open transaction
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Get reads a company without locking
func (s *Store) Get(ctx context.Context, companyID uint) (*domain.Company, error) {
	var c domain.Company
	if err := s.db.WithContext(ctx).First(&c, companyID).Error; err != nil {
		return nil, notFound(err, companyID)
	}
	return &c, nil
}

// BySymbol reads a company by ticker
func (s *Store) BySymbol(ctx context.Context, symbol string) (*domain.Company, error) {
	var c domain.Company
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, "company %s not found", symbol)
		}
		return nil, err
	}
	return &c, nil
}

// List returns every company ordered by symbol
func (s *Store) List(ctx context.Context) ([]domain.Company, error) {
	var cs []domain.Company
	err := s.db.WithContext(ctx).Order("symbol").Find(&cs).Error
	return cs, err
}

// Lock reads a company with a row lock
func (s *Store) Lock(ctx context.Context, companyID uint) (*domain.Company, error) {
	var c domain.Company
	if err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, companyID).Error; err != nil {
		return nil, notFound(err, companyID)
	}
	return &c, nil
}

// LatestPrice returns the locked company and its current closing price. A
// zero price means the company cannot be traded.
func (s *Store) LatestPrice(ctx context.Context, companyID uint) (*domain.Company, decimal.Decimal, error) {
	c, err := s.Lock(ctx, companyID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if !c.ClosingPrice.IsPositive() {
		return nil, decimal.Zero, domain.Errorf(domain.KindInvalidInput, "%s has no price", c.Symbol)
	}
	return c, c.ClosingPrice, nil
}

// DecrementVolume takes shares out of the unsold pool
func (s *Store) DecrementVolume(ctx context.Context, companyID uint, shares int64) (*domain.Company, error) {
	if shares <= 0 {
		return nil, domain.Errorf(domain.KindInvalidQuantity, "share quantity must be positive, got %d", shares)
	}
	c, err := s.Lock(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if c.AvailableVolume < shares {
		return nil, domain.Errorf(domain.KindInsufficientShares, "%s has %d shares available, %d requested", c.Symbol, c.AvailableVolume, shares)
	}
	c.AvailableVolume -= shares
	if err := s.db.WithContext(ctx).Model(&domain.Company{}).Where("id = ?", c.ID).Update("available_volume", c.AvailableVolume).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// IncrementVolume returns shares to the unsold pool
func (s *Store) IncrementVolume(ctx context.Context, companyID uint, shares int64) (*domain.Company, error) {
	if shares <= 0 {
		return nil, domain.Errorf(domain.KindInvalidQuantity, "share quantity must be positive, got %d", shares)
	}
	c, err := s.Lock(ctx, companyID)
	if err != nil {
		return nil, err
	}
	c.AvailableVolume += shares
	if err := s.db.WithContext(ctx).Model(&domain.Company{}).Where("id = ?", c.ID).Update("available_volume", c.AvailableVolume).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// Upsert creates or updates a company by symbol, as the market data feed
// does after each trading session.
func (s *Store) Upsert(ctx context.Context, c *domain.Company) error {
	if c.Symbol == "" {
		return domain.Errorf(domain.KindInvalidInput, "symbol is required")
	}
	if c.ClosingPrice.IsNegative() || c.AvailableVolume < 0 {
		return domain.Errorf(domain.KindInvalidInput, "price and volume must not be negative")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "closing_price", "available_volume", "updated_at"}),
	}).Create(c).Error
}

func notFound(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Errorf(domain.KindNotFound, "company %d not found", id)
	}
	return err
}
