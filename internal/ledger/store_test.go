package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"brokerage_system/internal/db/dbtest"
	"brokerage_system/internal/domain"
	"brokerage_system/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newWallet(t *testing.T, gdb *gorm.DB, userID uint) *domain.Wallet {
	t.Helper()
	var w *domain.Wallet
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		w, err = ledger.NewStore(tx).GetOrCreateWallet(context.Background(), userID, "RWF")
		return err
	})
	require.NoError(t, err)
	return w
}

func fund(t *testing.T, gdb *gorm.DB, w *domain.Wallet, amount string) *domain.WalletTransaction {
	t.Helper()
	var out *domain.WalletTransaction
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = ledger.NewStore(tx).RecordSettled(context.Background(), &domain.WalletTransaction{
			UserID: w.UserID, WalletID: w.ID, Direction: domain.Credit, Kind: domain.KindFunding,
			Amount: dec(amount), Currency: w.Currency,
		})
		return err
	})
	require.NoError(t, err)
	return out
}

func TestGetOrCreateWalletIsIdempotent(t *testing.T) {
	gdb := dbtest.Open(t)
	a := newWallet(t, gdb, 1)
	b := newWallet(t, gdb, 1)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, b.Balance.IsZero())

	var n int64
	require.NoError(t, gdb.Model(&domain.Wallet{}).Where("user_id = ?", 1).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestRecordSettledCreditsWallet(t *testing.T) {
	gdb := dbtest.Open(t)
	w := newWallet(t, gdb, 7)
	txn := fund(t, gdb, w, "1000")

	assert.Equal(t, domain.TxSuccessful, txn.Status)
	assert.NotNil(t, txn.CompletedAt)
	assert.Contains(t, txn.Reference, "FND-")

	got, err := ledger.NewStore(gdb).GetWallet(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(got.Balance), got.Balance.String())
}

func TestDebitBeyondAvailableFails(t *testing.T) {
	gdb := dbtest.Open(t)
	w := newWallet(t, gdb, 3)
	fund(t, gdb, w, "50")

	err := gdb.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.NewStore(tx).RecordSettled(context.Background(), &domain.WalletTransaction{
			UserID: 3, WalletID: w.ID, Direction: domain.Debit, Kind: domain.KindSharePurchase,
			Amount: dec("80"), Currency: "RWF",
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

	// the failed unit of work left nothing behind
	got, _ := ledger.NewStore(gdb).GetWallet(context.Background(), 3)
	assert.True(t, dec("50").Equal(got.Balance))
	var n int64
	gdb.Model(&domain.WalletTransaction{}).Where("kind = ?", domain.KindSharePurchase).Count(&n)
	assert.Zero(t, n)
}

func TestSettleIsAppliedOnce(t *testing.T) {
	gdb := dbtest.Open(t)
	w := newWallet(t, gdb, 4)
	ctx := context.Background()
	txn := &domain.WalletTransaction{
		UserID: 4, WalletID: w.ID, Direction: domain.Credit, Kind: domain.KindFunding,
		Amount: dec("250"), Currency: "RWF",
	}
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return ledger.NewStore(tx).CreatePending(ctx, txn)
	}))

	for i, want := range []bool{true, false, false} {
		var applied bool
		require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
			var err error
			_, applied, err = ledger.NewStore(tx).Settle(ctx, txn.ID)
			return err
		}))
		assert.Equal(t, want, applied, "settle call %d", i)
	}
	got, _ := ledger.NewStore(gdb).GetWallet(ctx, 4)
	assert.True(t, dec("250").Equal(got.Balance))
}

func TestDuplicateReferenceRejected(t *testing.T) {
	gdb := dbtest.Open(t)
	w := newWallet(t, gdb, 5)
	ctx := context.Background()
	mk := func() error {
		return gdb.Transaction(func(tx *gorm.DB) error {
			return ledger.NewStore(tx).CreatePending(ctx, &domain.WalletTransaction{
				UserID: 5, WalletID: w.ID, Direction: domain.Credit, Kind: domain.KindFunding,
				Amount: dec("10"), Currency: "RWF", Reference: "FND-FIXED",
			})
		})
	}
	require.NoError(t, mk())
	err := mk()
	require.Error(t, err)
	assert.Equal(t, domain.KindDuplicateReference, domain.KindOf(err))
}

func TestReservationLifecycle(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	w := newWallet(t, gdb, 9)
	fund(t, gdb, w, "100")

	withdraw := func(amount string) *domain.WalletTransaction {
		txn := &domain.WalletTransaction{
			UserID: 9, WalletID: w.ID, Direction: domain.Debit, Kind: domain.KindWithdrawal,
			Amount: dec(amount), Currency: "RWF", Reserved: true,
		}
		require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
			s := ledger.NewStore(tx)
			if err := s.Reserve(ctx, w.ID, txn.Amount); err != nil {
				return err
			}
			return s.CreatePending(ctx, txn)
		}))
		return txn
	}

	first := withdraw("60")
	got, _ := ledger.NewStore(gdb).GetWallet(ctx, 9)
	assert.True(t, dec("100").Equal(got.Balance))
	assert.True(t, dec("40").Equal(got.Available()))

	// the held amount cannot be spent twice
	err := gdb.Transaction(func(tx *gorm.DB) error {
		return ledger.NewStore(tx).Reserve(ctx, w.ID, dec("60"))
	})
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

	// late failure releases the hold without moving the balance
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		_, _, err := ledger.NewStore(tx).Close(ctx, first.ID, domain.TxReversed, "processor reversed")
		return err
	}))
	got, _ = ledger.NewStore(gdb).GetWallet(ctx, 9)
	assert.True(t, dec("100").Equal(got.Available()))

	second := withdraw("70")
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		_, _, err := ledger.NewStore(tx).Settle(ctx, second.ID)
		return err
	}))
	got, _ = ledger.NewStore(gdb).GetWallet(ctx, 9)
	assert.True(t, dec("30").Equal(got.Balance), got.Balance.String())
	assert.True(t, got.HeldBalance.IsZero())

	// closing a settled transaction changes nothing
	var changed bool
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		_, changed, err = ledger.NewStore(tx).Close(ctx, second.ID, domain.TxFailed, "")
		return err
	}))
	assert.False(t, changed)
}

func TestCloseKeepsNotesWithinColumn(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	w := newWallet(t, gdb, 11)
	txn := &domain.WalletTransaction{
		UserID: 11, WalletID: w.ID, Direction: domain.Credit, Kind: domain.KindFunding,
		Amount: dec("10"), Currency: "RWF", Notes: strings.Repeat("n", domain.NotesLimit+1),
	}
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return ledger.NewStore(tx).CreatePending(ctx, txn)
	}))
	assert.Len(t, txn.Notes, domain.NotesLimit)

	var closed *domain.WalletTransaction
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		closed, _, err = ledger.NewStore(tx).Close(ctx, txn.ID, domain.TxFailed, "processor reported failure: "+strings.Repeat("x", 2000))
		return err
	}))
	assert.Len(t, closed.Notes, domain.NotesLimit)
	stored, err := ledger.NewStore(gdb).GetByReference(ctx, txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, stored.Status)
	assert.Len(t, stored.Notes, domain.NotesLimit)
}

func TestAttachProcessorRef(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	w := newWallet(t, gdb, 11)
	txn := &domain.WalletTransaction{
		UserID: 11, WalletID: w.ID, Direction: domain.Credit, Kind: domain.KindFunding,
		Amount: dec("5"), Currency: "RWF",
	}
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		s := ledger.NewStore(tx)
		if err := s.CreatePending(ctx, txn); err != nil {
			return err
		}
		return s.AttachProcessorRef(ctx, txn.ID, "ch_1")
	}))
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return ledger.NewStore(tx).AttachProcessorRef(ctx, txn.ID, "ch_1")
	}))
	err := gdb.Transaction(func(tx *gorm.DB) error {
		return ledger.NewStore(tx).AttachProcessorRef(ctx, txn.ID, "ch_2")
	})
	assert.Equal(t, domain.KindDuplicateReference, domain.KindOf(err))

	found, err := ledger.NewStore(gdb).GetByProcessorRef(ctx, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, txn.Reference, found.Reference)
}

func TestListAndPending(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	w := newWallet(t, gdb, 12)
	for i := 0; i < 3; i++ {
		fund(t, gdb, w, "1")
	}
	pending := &domain.WalletTransaction{
		UserID: 12, WalletID: w.ID, Direction: domain.Credit, Kind: domain.KindFunding,
		Amount: dec("2"), Currency: "RWF",
	}
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		s := ledger.NewStore(tx)
		if err := s.CreatePending(ctx, pending); err != nil {
			return err
		}
		return s.AttachProcessorRef(ctx, pending.ID, "ch_pending")
	}))

	uid := uint(12)
	txs, total, err := ledger.NewStore(gdb).ListTransactions(ctx, ledger.Filter{UserID: &uid}, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, txs, 2)

	_, total, err = ledger.NewStore(gdb).ListTransactions(ctx, ledger.Filter{UserID: &uid, Status: domain.TxPending}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	due, err := ledger.NewStore(gdb).PendingForReconciliation(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, pending.Reference, due[0].Reference)

	notYet, err := ledger.NewStore(gdb).PendingForReconciliation(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, notYet)
}

func TestNonPositiveAmountRejected(t *testing.T) {
	gdb := dbtest.Open(t)
	w := newWallet(t, gdb, 13)
	err := gdb.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.NewStore(tx).ApplyLedgerEntry(context.Background(), w.ID, domain.Credit, dec("0"))
		return err
	})
	assert.Equal(t, domain.KindInvalidQuantity, domain.KindOf(err))
}
