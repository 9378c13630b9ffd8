package payment_test

import (
	"context"
	"fmt"
	"testing"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/payment"
	"brokerage_system/internal/processor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// checkLedger asserts the wallet equals the sum of its successful
// transactions and the hold equals its pending reservations.
func checkLedger(t require.TestingT, e *env, userID uint) {
	var w domain.Wallet
	require.NoError(t, e.db.Where("user_id = ?", userID).First(&w).Error)
	var txs []domain.WalletTransaction
	require.NoError(t, e.db.Where("user_id = ?", userID).Find(&txs).Error)

	sum, held := decimal.Zero, decimal.Zero
	for _, txn := range txs {
		switch {
		case txn.Status == domain.TxSuccessful && txn.Direction == domain.Credit:
			sum = sum.Add(txn.Amount)
		case txn.Status == domain.TxSuccessful && txn.Direction == domain.Debit:
			sum = sum.Sub(txn.Amount)
		case txn.Status == domain.TxPending && txn.Reserved:
			held = held.Add(txn.Amount)
		}
	}
	require.True(t, sum.Equal(w.Balance), "balance %s, successful sum %s", w.Balance, sum)
	require.True(t, held.Equal(w.HeldBalance), "held %s, pending reservations %s", w.HeldBalance, held)
	require.False(t, w.Balance.IsNegative())
	require.False(t, w.Available().IsNegative())
}

func TestLedgerConservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	company := &domain.Company{Symbol: "PROP", ClosingPrice: decimal.NewFromInt(7), AvailableVolume: 1_000_000}
	require.NoError(t, e.db.Create(company).Error)
	statuses := []string{processor.StatusSucceeded, processor.StatusPending, processor.StatusFailed}
	run := 0

	rapid.Check(t, func(rt *rapid.T) {
		run++
		name := fmt.Sprintf("prop%d", run)
		u := &domain.User{Username: name, Email: name + "@example.com", Password: "x", Role: domain.RoleCustomer}
		require.NoError(rt, e.db.Create(u).Error)
		actor := domain.Actor{UserID: u.ID, Role: u.Role}
		// every user starts with a settled deposit so a wallet exists
		e.proc.answer(processor.StatusSucceeded)
		_, err := e.gw.Fund(ctx, actor, payment.FundRequest{Amount: decimal.NewFromInt(100), Currency: "RWF"})
		require.NoError(rt, err)

		var pending []*domain.WalletTransaction
		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			amount := decimal.NewFromInt(rapid.Int64Range(1, 400).Draw(rt, "amount"))
			status := rapid.SampledFrom(statuses).Draw(rt, "status")
			e.proc.answer(status)

			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0:
				out, err := e.gw.Fund(ctx, actor, payment.FundRequest{Amount: amount, Currency: "RWF"})
				if status == processor.StatusFailed {
					require.Equal(rt, domain.KindInvalidInput, domain.KindOf(err))
				} else {
					require.NoError(rt, err)
				}
				if out.Transaction.Status == domain.TxPending {
					pending = append(pending, out.Transaction)
				}
			case 1:
				txn, err := e.gw.Withdraw(ctx, actor, payment.WithdrawRequest{Amount: amount, Currency: "RWF", AccountNumber: "12345"})
				if domain.KindOf(err) == domain.KindInsufficientFunds {
					break
				}
				if status == processor.StatusFailed {
					require.Equal(rt, domain.KindInvalidInput, domain.KindOf(err))
				} else {
					require.NoError(rt, err)
				}
				if txn.Status == domain.TxPending {
					pending = append(pending, txn)
				}
			case 2:
				if len(pending) == 0 {
					break
				}
				idx := rapid.IntRange(0, len(pending)-1).Draw(rt, "pending")
				txn := pending[idx]
				event := processor.EventChargeCompleted
				if txn.Kind == domain.KindWithdrawal {
					event = processor.EventTransferCompleted
				}
				data := processor.Result{ID: *txn.ProcessorRef, Reference: txn.Reference, Status: status, Amount: txn.Amount, Currency: "RWF"}
				if rapid.Bool().Draw(rt, "wrong_amount") {
					data.Amount = data.Amount.Add(decimal.NewFromInt(1))
				}
				body, sig := webhook(rt, event, data)
				// replays and mismatches are part of the sequence
				_, _ = e.gw.HandleWebhook(ctx, body, sig)
			case 3:
				shares := rapid.Int64Range(1, 60).Draw(rt, "shares")
				_, err := e.gw.BuyWithBalance(ctx, actor, payment.BuyRequest{CompanyID: company.ID, Shares: shares, Currency: "RWF"})
				if err != nil {
					require.Equal(rt, domain.KindInsufficientFunds, domain.KindOf(err))
				}
			case 4:
				if _, err := e.gw.ReconcilePending(ctx, 0, 50); err != nil {
					rt.Fatalf("sweep: %v", err)
				}
			}
			checkLedger(rt, e, actor.UserID)
		}
	})
}
