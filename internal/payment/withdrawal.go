package payment

import (
	"context"
	"strings"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/ledger"
	"brokerage_system/internal/processor"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawRequest asks to pay wallet funds out to a bank or mobile account
type WithdrawRequest struct {
	Amount        decimal.Decimal
	Currency      string
	AccountNumber string
	BankCode      string
	AccountName   string
}

// Withdraw reserves the amount, asks the processor for a payout and applies
// its immediate answer. The balance only drops when the payout succeeds; a
// pending payout keeps the amount reserved so it cannot be spent twice.
func (g *Gateway) Withdraw(ctx context.Context, actor domain.Actor, req WithdrawRequest) (*domain.WalletTransaction, error) {
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := domain.NormalizeAmount(req.Amount, currency)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.AccountNumber) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "destination account is required")
	}

	txn := &domain.WalletTransaction{
		UserID:    actor.UserID,
		Direction: domain.Debit,
		Kind:      domain.KindWithdrawal,
		Amount:    amount,
		Currency:  currency,
		Reserved:  true,
		Notes:     "withdrawal to " + maskAccount(req.AccountNumber),
	}
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := ledger.NewStore(tx)
		w, err := store.WalletFor(ctx, actor.UserID, currency)
		if err != nil {
			return err
		}
		if err := store.Reserve(ctx, w.ID, amount); err != nil {
			return err
		}
		txn.WalletID = w.ID
		return store.CreatePending(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	g.changed(ctx, txn)

	res, err := g.proc.InitiateTransfer(ctx, processor.TransferRequest{
		Amount:    amount,
		Currency:  currency,
		Reference: txn.Reference,
		Destination: processor.Destination{
			AccountNumber: req.AccountNumber,
			BankCode:      req.BankCode,
			Name:          req.AccountName,
		},
		Narration: "Wallet withdrawal " + txn.Reference,
	})
	if err != nil {
		out, err := g.initiationFailed(ctx, "withdraw", txn, err)
		if out == nil {
			return nil, err
		}
		return out.Transaction, err
	}

	var o Outcome
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := ledger.NewStore(tx)
		locked, err := store.LockByReference(ctx, txn.Reference)
		if err != nil {
			return err
		}
		echoRequested(res, locked)
		txn, o, err = reconcile(ctx, store, locked, res, domain.TxFailed)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.committed(ctx, "withdraw", txn, o)
	return txn, initiationError(txn, o)
}

func maskAccount(account string) string {
	account = strings.TrimSpace(account)
	if len(account) <= 4 {
		return account
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}
