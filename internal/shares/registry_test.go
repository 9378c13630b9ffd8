package shares_test

import (
	"context"
	"errors"
	"testing"

	"brokerage_system/internal/db/dbtest"
	"brokerage_system/internal/domain"
	"brokerage_system/internal/shares"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreditSharesWeightedAverage(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()

	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		reg := shares.NewRegistry(tx)
		if _, err := reg.CreditShares(ctx, 1, 2, 10, decimal.NewFromInt(100)); err != nil {
			return err
		}
		_, err := reg.CreditShares(ctx, 1, 2, 30, decimal.NewFromInt(200))
		return err
	}))

	h, err := shares.NewRegistry(gdb).GetHolding(ctx, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 40, h.Shares)
	assert.True(t, decimal.NewFromInt(175).Equal(h.AveragePrice), h.AveragePrice.String())
}

func TestDebitSharesChecksHolding(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	reg := shares.NewRegistry(gdb)

	_, err := reg.DebitShares(ctx, 5, 1, 1)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))

	_, err = reg.CreditShares(ctx, 5, 1, 15, decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = reg.DebitShares(ctx, 5, 1, 20)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))

	h, err := reg.DebitShares(ctx, 5, 1, 15)
	require.NoError(t, err)
	assert.Zero(t, h.Shares)
	assert.True(t, h.AveragePrice.IsZero())

	held, err := reg.ListHoldings(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestNonPositiveQuantity(t *testing.T) {
	reg := shares.NewRegistry(dbtest.Open(t))
	for _, n := range []int64{0, -3} {
		_, err := reg.CreditShares(context.Background(), 1, 1, n, decimal.NewFromInt(1))
		assert.Equal(t, domain.KindInvalidQuantity, domain.KindOf(err))
		_, err = reg.DebitShares(context.Background(), 1, 1, n)
		assert.Equal(t, domain.KindInvalidQuantity, domain.KindOf(err))
	}
}

func TestMissingHoldingReadsAsZero(t *testing.T) {
	h, err := shares.NewRegistry(dbtest.Open(t)).GetHolding(context.Background(), 8, 9)
	require.NoError(t, err)
	assert.Zero(t, h.Shares)
	assert.Zero(t, h.ID)
}
