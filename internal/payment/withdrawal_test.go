package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/payment"
	"brokerage_system/internal/processor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) funded(t *testing.T, name, amount string) domain.Actor {
	t.Helper()
	a := e.user(t, name)
	e.proc.answer(processor.StatusSucceeded)
	_, err := e.gw.Fund(context.Background(), a, payment.FundRequest{Amount: dec(amount), Currency: "RWF"})
	require.NoError(t, err)
	e.proc.next = nil
	return a
}

func withdrawal(amount string) payment.WithdrawRequest {
	return payment.WithdrawRequest{Amount: dec(amount), Currency: "RWF", AccountNumber: "0001234567", BankCode: "BK"}
}

func TestWithdrawalHoldAndLateReversal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.funded(t, "alice", "1000")

	txn, err := e.gw.Withdraw(ctx, alice, withdrawal("600"))
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, txn.Status)
	assert.Contains(t, txn.Notes, "******4567")
	w := e.wallet(t, alice)
	assert.True(t, dec("1000").Equal(w.Balance), "balance only drops on success")
	assert.True(t, dec("400").Equal(w.Available()))

	_, err = e.gw.Withdraw(ctx, alice, withdrawal("600"))
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	assert.Equal(t, 1, e.proc.transfers)

	body, sig := webhook(t, processor.EventTransferFailed, processor.Result{ID: *txn.ProcessorRef, Reference: txn.Reference})
	got, err := e.gw.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, domain.TxReversed, got.Status)
	w = e.wallet(t, alice)
	assert.True(t, dec("1000").Equal(w.Balance))
	assert.True(t, dec("1000").Equal(w.Available()))
}

func TestWithdrawalSettledByWebhook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.funded(t, "alice", "1000")

	txn, err := e.gw.Withdraw(ctx, alice, withdrawal("250"))
	require.NoError(t, err)
	body, sig := webhook(t, processor.EventTransferCompleted, processor.Result{
		ID: *txn.ProcessorRef, Reference: txn.Reference, Amount: dec("250"), Currency: "RWF",
	})
	for i := 0; i < 2; i++ {
		_, err = e.gw.HandleWebhook(ctx, body, sig)
		require.NoError(t, err)
	}
	w := e.wallet(t, alice)
	assert.True(t, dec("750").Equal(w.Balance))
	assert.True(t, w.HeldBalance.IsZero())
}

func TestWithdrawalImmediateOutcomes(t *testing.T) {
	cases := []struct {
		name      string
		script    func(f *fakeProcessor)
		status    domain.TxStatus
		balance   string
		available string
		errKind   domain.ErrorKind
	}{
		{"succeeded debits now", func(f *fakeProcessor) { f.answer(processor.StatusSucceeded) }, domain.TxSuccessful, "300", "300", ""},
		{"succeeded without an echoed amount debits", func(f *fakeProcessor) {
			f.next = func(ref string, _ decimalT, _ string) (*processor.Result, error) {
				return &processor.Result{Reference: ref, Status: processor.StatusSucceeded}, nil
			}
		}, domain.TxSuccessful, "300", "300", ""},
		{"failed releases the hold", func(f *fakeProcessor) { f.answer(processor.StatusFailed) }, domain.TxFailed, "1000", "1000", domain.KindInvalidInput},
		{"unavailable releases the hold", func(f *fakeProcessor) { f.fail(processor.ErrUnavailable) }, domain.TxFailed, "1000", "1000", domain.KindProcessorUnavailable},
		{"timeout keeps the hold", func(f *fakeProcessor) { f.fail(processor.ErrOutcomeUnknown) }, domain.TxPending, "1000", "300", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			alice := e.funded(t, "alice", "1000")
			tc.script(e.proc)

			txn, err := e.gw.Withdraw(context.Background(), alice, withdrawal("700"))
			if tc.errKind == "" {
				require.NoError(t, err)
			} else {
				assert.Equal(t, tc.errKind, domain.KindOf(err))
			}
			require.NotNil(t, txn)
			assert.Equal(t, tc.status, e.txn(t, txn.Reference).Status)
			w := e.wallet(t, alice)
			assert.True(t, dec(tc.balance).Equal(w.Balance), w.Balance.String())
			assert.True(t, dec(tc.available).Equal(w.Available()), w.Available().String())
		})
	}
}

func TestWithdrawalValidation(t *testing.T) {
	e := newEnv(t)
	alice := e.funded(t, "alice", "100")
	_, err := e.gw.Withdraw(context.Background(), alice, payment.WithdrawRequest{Amount: dec("10"), Currency: "RWF"})
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	_, err = e.gw.Withdraw(context.Background(), alice, withdrawal("100.01"))
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	_, err = e.gw.Withdraw(context.Background(), alice, payment.WithdrawRequest{Amount: dec("10"), Currency: "USD", AccountNumber: "1"})
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err), "wallet is held in RWF")
}

func TestReconcilePendingSweep(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.funded(t, "alice", "1000")

	charge, err := e.gw.Fund(ctx, alice, payment.FundRequest{Amount: dec("200"), Currency: "RWF"})
	require.NoError(t, err)
	payout, err := e.gw.Withdraw(ctx, alice, withdrawal("300"))
	require.NoError(t, err)
	stuck, err := e.gw.Withdraw(ctx, alice, withdrawal("100"))
	require.NoError(t, err)
	e.proc.fail(processor.ErrOutcomeUnknown)
	unknown, err := e.gw.Fund(ctx, alice, payment.FundRequest{Amount: dec("50"), Currency: "RWF"})
	require.NoError(t, err)
	require.Nil(t, unknown.Transaction.ProcessorRef)

	e.proc.settle(*charge.Transaction.ProcessorRef, processor.StatusSucceeded)
	e.proc.settle(*payout.ProcessorRef, processor.StatusFailed)

	// nothing is old enough yet
	sum, err := e.gw.ReconcilePending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Zero(t, sum.Checked)

	sum, err = e.gw.ReconcilePending(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, payment.SweepSummary{Checked: 3, Settled: 1, Failed: 1, Pending: 1}, sum)

	assert.Equal(t, domain.TxSuccessful, e.txn(t, charge.Transaction.Reference).Status)
	assert.Equal(t, domain.TxReversed, e.txn(t, payout.Reference).Status)
	assert.Equal(t, domain.TxPending, e.txn(t, stuck.Reference).Status)
	assert.Equal(t, domain.TxPending, e.txn(t, unknown.Transaction.Reference).Status)
	w := e.wallet(t, alice)
	assert.True(t, dec("1200").Equal(w.Balance), w.Balance.String())
	assert.True(t, dec("1100").Equal(w.Available()), w.Available().String())

	e.proc.getErr = processor.ErrUnavailable
	sum, err = e.gw.ReconcilePending(ctx, 0, 10)
	assert.Equal(t, domain.KindProcessorUnavailable, domain.KindOf(err))
	assert.Equal(t, 1, sum.Checked)
}

func TestBuyWithBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.funded(t, "alice", "1000")
	company := &domain.Company{Symbol: "BOK", ClosingPrice: decimal.NewFromInt(20), AvailableVolume: 30}
	require.NoError(t, e.db.Create(company).Error)

	_, err := e.gw.BuyWithBalance(ctx, alice, payment.BuyRequest{CompanyID: company.ID, Shares: 50, Currency: "RWF"})
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))
	assert.True(t, dec("1000").Equal(e.wallet(t, alice).Balance))

	out, err := e.gw.BuyWithBalance(ctx, alice, payment.BuyRequest{CompanyID: company.ID, Shares: 30, Currency: "RWF"})
	require.NoError(t, err)
	assert.Equal(t, domain.TxSuccessful, out.Transaction.Status)
	assert.Equal(t, domain.KindSharePurchase, out.Transaction.Kind)
	assert.True(t, dec("600").Equal(out.Transaction.Amount))
	assert.EqualValues(t, 30, out.Holding.Shares)
	assert.True(t, dec("400").Equal(e.wallet(t, alice).Balance))

	var c domain.Company
	require.NoError(t, e.db.First(&c, company.ID).Error)
	assert.Zero(t, c.AvailableVolume)

	require.NoError(t, e.db.Model(&c).Update("available_volume", 100).Error)
	_, err = e.gw.BuyWithBalance(ctx, alice, payment.BuyRequest{CompanyID: company.ID, Shares: 21, Currency: "RWF"})
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	require.NoError(t, e.db.First(&c, company.ID).Error)
	assert.EqualValues(t, 100, c.AvailableVolume)

	_, err = e.gw.BuyWithBalance(ctx, alice, payment.BuyRequest{CompanyID: company.ID, Shares: 0, Currency: "RWF"})
	assert.Equal(t, domain.KindInvalidQuantity, domain.KindOf(err))
}

func TestBuyWithBalanceRejectsFractionalTotal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.funded(t, "alice", "1000")
	company := &domain.Company{Symbol: "HALF", ClosingPrice: dec("20.5"), AvailableVolume: 10}
	require.NoError(t, e.db.Create(company).Error)

	_, err := e.gw.BuyWithBalance(ctx, alice, payment.BuyRequest{CompanyID: company.ID, Shares: 3, Currency: "RWF"})
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	assert.True(t, dec("1000").Equal(e.wallet(t, alice).Balance))
	var c domain.Company
	require.NoError(t, e.db.First(&c, company.ID).Error)
	assert.EqualValues(t, 10, c.AvailableVolume)

	out, err := e.gw.BuyWithBalance(ctx, alice, payment.BuyRequest{CompanyID: company.ID, Shares: 2, Currency: "RWF"})
	require.NoError(t, err)
	assert.True(t, dec("41").Equal(out.Transaction.Amount))
	assert.True(t, dec("959").Equal(e.wallet(t, alice).Balance))
}
