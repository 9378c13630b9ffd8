// Package ledger is the durable record of wallet balances and wallet
// transactions.
//
// Balances change only through Settle, which moves a pending transaction to
// successful exactly once. Every mutating method must run inside a unit of
// work (see WithTx) so the row locks it takes are held until commit.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the wallet repository
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

func (s *Store) forUpdate(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetOrCreateWallet returns the user's wallet, creating an empty one on first
// use, locked for the rest of the unit of work.
func (s *Store) GetOrCreateWallet(ctx context.Context, userID uint, currency string) (*domain.Wallet, error) {
	w := domain.Wallet{
		UserID:      userID,
		Balance:     decimal.Zero,
		HeldBalance: decimal.Zero,
		Currency:    currency,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&w).Error
	if err != nil {
		return nil, err
	}
	var locked domain.Wallet
	if err := s.forUpdate(ctx).Where("user_id = ?", userID).First(&locked).Error; err != nil {
		return nil, err
	}
	return &locked, nil
}

// WalletFor is GetOrCreateWallet for a movement in currency; a wallet held in
// another currency cannot take it.
func (s *Store) WalletFor(ctx context.Context, userID uint, currency string) (*domain.Wallet, error) {
	w, err := s.GetOrCreateWallet(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	if w.Currency != currency {
		return nil, domain.Errorf(domain.KindInvalidInput, "wallet is held in %s, not %s", w.Currency, currency)
	}
	return w, nil
}

// LockWallet loads a wallet by ID with a row lock
func (s *Store) LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := s.forUpdate(ctx).First(&w, walletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, "wallet %d not found", walletID)
		}
		return nil, err
	}
	return &w, nil
}

// GetWallet reads a user's wallet without locking
func (s *Store) GetWallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, "wallet for user %d not found", userID)
		}
		return nil, err
	}
	return &w, nil
}

// ApplyLedgerEntry moves the wallet balance and returns the new balance.
// Debits are checked against the available (unreserved) balance. Callers
// outside this package go through Settle, which ties the mutation to the
// status change that justifies it.
func (s *Store) ApplyLedgerEntry(ctx context.Context, walletID uint, dir domain.Direction, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.apply(ctx, walletID, dir, amount, false)
}

func (s *Store) apply(ctx context.Context, walletID uint, dir domain.Direction, amount decimal.Decimal, releaseHold bool) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.Errorf(domain.KindInvalidQuantity, "ledger amount must be positive, got %s", amount)
	}
	w, err := s.LockWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	switch dir {
	case domain.Credit:
		w.Balance = w.Balance.Add(amount)
	case domain.Debit:
		if releaseHold {
			// Funds were reserved at initiation; the reservation is consumed.
			if w.HeldBalance.LessThan(amount) || w.Balance.LessThan(amount) {
				return decimal.Zero, domain.Errorf(domain.KindInsufficientFunds, "reserved %s below %s", w.HeldBalance, amount)
			}
			w.HeldBalance = w.HeldBalance.Sub(amount)
		} else if w.Available().LessThan(amount) {
			return decimal.Zero, domain.Errorf(domain.KindInsufficientFunds, "available %s below %s", w.Available(), amount)
		}
		w.Balance = w.Balance.Sub(amount)
	default:
		return decimal.Zero, domain.Errorf(domain.KindInvalidInput, "unknown direction %q", dir)
	}
	err = s.db.WithContext(ctx).Model(&domain.Wallet{}).Where("id = ?", w.ID).
		Updates(map[string]any{"balance": w.Balance, "held_balance": w.HeldBalance}).Error
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// Reserve holds amount on the wallet so it cannot be spent while a
// withdrawal is pending.
func (s *Store) Reserve(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	w, err := s.LockWallet(ctx, walletID)
	if err != nil {
		return err
	}
	if w.Available().LessThan(amount) {
		return domain.Errorf(domain.KindInsufficientFunds, "available %s below %s", w.Available(), amount)
	}
	return s.db.WithContext(ctx).Model(&domain.Wallet{}).Where("id = ?", w.ID).
		Update("held_balance", w.HeldBalance.Add(amount)).Error
}

func (s *Store) release(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	w, err := s.LockWallet(ctx, walletID)
	if err != nil {
		return err
	}
	held := w.HeldBalance.Sub(amount)
	if held.IsNegative() {
		held = decimal.Zero
	}
	return s.db.WithContext(ctx).Model(&domain.Wallet{}).Where("id = ?", w.ID).
		Update("held_balance", held).Error
}

// CreatePending appends a pending transaction. A reference is generated when
// the caller did not supply one.
func (s *Store) CreatePending(ctx context.Context, txn *domain.WalletTransaction) error {
	if !txn.Amount.IsPositive() {
		return domain.Errorf(domain.KindInvalidQuantity, "transaction amount must be positive")
	}
	if txn.Reference == "" {
		txn.Reference = utils.NewReference(prefixFor(txn.Kind))
	}
	txn.Status = domain.TxPending
	txn.CompletedAt = nil
	txn.Notes = domain.ClipNotes(txn.Notes)
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Wrap(domain.KindDuplicateReference, err, "reference "+txn.Reference)
		}
		return err
	}
	return nil
}

// Settle moves a pending transaction to successful and applies it to the
// wallet. It reports false without touching anything when the transaction
// is already terminal, which makes replays harmless.
func (s *Store) Settle(ctx context.Context, txnID uint) (*domain.WalletTransaction, bool, error) {
	txn, err := s.lockTransaction(ctx, "id = ?", txnID)
	if err != nil {
		return nil, false, err
	}
	if txn.Status.Terminal() {
		return txn, false, nil
	}
	if _, err := s.apply(ctx, txn.WalletID, txn.Direction, txn.Amount, txn.Reserved); err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	txn.Status = domain.TxSuccessful
	txn.CompletedAt = &now
	err = s.db.WithContext(ctx).Model(&domain.WalletTransaction{}).Where("id = ?", txn.ID).
		Updates(map[string]any{"status": txn.Status, "completed_at": now}).Error
	if err != nil {
		return nil, false, err
	}
	return txn, true, nil
}

// RecordSettled appends a transaction and settles it in the same unit of
// work, for movements that need no external confirmation.
func (s *Store) RecordSettled(ctx context.Context, txn *domain.WalletTransaction) (*domain.WalletTransaction, error) {
	if err := s.CreatePending(ctx, txn); err != nil {
		return nil, err
	}
	settled, _, err := s.Settle(ctx, txn.ID)
	return settled, err
}

// Close ends a pending transaction without moving the balance, as failed or
// reversed, releasing any reservation. Terminal transactions are left as is
// and reported with false.
func (s *Store) Close(ctx context.Context, txnID uint, status domain.TxStatus, note string) (*domain.WalletTransaction, bool, error) {
	if status != domain.TxFailed && status != domain.TxReversed {
		return nil, false, domain.Errorf(domain.KindInvalidTransition, "cannot close a transaction as %s", status)
	}
	txn, err := s.lockTransaction(ctx, "id = ?", txnID)
	if err != nil {
		return nil, false, err
	}
	if txn.Status.Terminal() {
		return txn, false, nil
	}
	if txn.Reserved {
		if err := s.release(ctx, txn.WalletID, txn.Amount); err != nil {
			return nil, false, err
		}
	}
	now := time.Now().UTC()
	txn.Status = status
	txn.CompletedAt = &now
	updates := map[string]any{"status": status, "completed_at": now}
	if note != "" {
		txn.Notes = appendNote(txn.Notes, note)
		updates["notes"] = txn.Notes
	}
	if err := s.db.WithContext(ctx).Model(&domain.WalletTransaction{}).Where("id = ?", txn.ID).Updates(updates).Error; err != nil {
		return nil, false, err
	}
	return txn, true, nil
}

// LockByReference loads a transaction by internal reference with a row lock
func (s *Store) LockByReference(ctx context.Context, reference string) (*domain.WalletTransaction, error) {
	return s.lockTransaction(ctx, "reference = ?", reference)
}

// LockByProcessorRef loads a transaction by processor reference with a row lock
func (s *Store) LockByProcessorRef(ctx context.Context, processorRef string) (*domain.WalletTransaction, error) {
	return s.lockTransaction(ctx, "processor_ref = ?", processorRef)
}

func (s *Store) lockTransaction(ctx context.Context, query string, arg any) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	if err := s.forUpdate(ctx).Where(query, arg).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, "wallet transaction %v not found", arg)
		}
		return nil, err
	}
	return &txn, nil
}

// AttachProcessorRef records the processor's reference once. Attaching the
// same reference again is a no-op; a different one is rejected.
func (s *Store) AttachProcessorRef(ctx context.Context, txnID uint, processorRef string) error {
	if processorRef == "" {
		return nil
	}
	txn, err := s.lockTransaction(ctx, "id = ?", txnID)
	if err != nil {
		return err
	}
	if txn.ProcessorRef != nil {
		if *txn.ProcessorRef == processorRef {
			return nil
		}
		return domain.Errorf(domain.KindDuplicateReference, "transaction %s already bound to %s", txn.Reference, *txn.ProcessorRef)
	}
	err = s.db.WithContext(ctx).Model(&domain.WalletTransaction{}).Where("id = ?", txnID).
		Update("processor_ref", processorRef).Error
	if err != nil && isUniqueViolation(err) {
		return domain.Wrap(domain.KindDuplicateReference, err, "processor reference "+processorRef)
	}
	return err
}

// GetByReference reads a transaction without locking
func (s *Store) GetByReference(ctx context.Context, reference string) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, "wallet transaction %s not found", reference)
		}
		return nil, err
	}
	return &txn, nil
}

// GetByProcessorRef reads a transaction by processor reference without locking
func (s *Store) GetByProcessorRef(ctx context.Context, processorRef string) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	if err := s.db.WithContext(ctx).Where("processor_ref = ?", processorRef).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, "wallet transaction for %s not found", processorRef)
		}
		return nil, err
	}
	return &txn, nil
}

// Filter narrows transaction listings
type Filter struct {
	UserID *uint
	Kind   domain.TxKind
	Status domain.TxStatus
	From   *time.Time
	To     *time.Time
}

// ListTransactions returns one page of transactions, newest first, and the
// total matching count.
func (s *Store) ListTransactions(ctx context.Context, f Filter, page, size int) ([]domain.WalletTransaction, int64, error) {
	q := s.db.WithContext(ctx).Model(&domain.WalletTransaction{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []domain.WalletTransaction
	err := q.Order("created_at desc").Order("id desc").Offset((page - 1) * size).Limit(size).Find(&txs).Error
	return txs, total, err
}

// PendingForReconciliation lists pending transactions that carry a processor
// reference and are older than the cutoff, oldest first.
func (s *Store) PendingForReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]domain.WalletTransaction, error) {
	var txs []domain.WalletTransaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND processor_ref IS NOT NULL AND created_at <= ?", domain.TxPending, olderThan).
		Order("created_at asc").Limit(limit).Find(&txs).Error
	return txs, err
}

func prefixFor(kind domain.TxKind) string {
	switch kind {
	case domain.KindFunding:
		return utils.RefFunding
	case domain.KindWithdrawal:
		return utils.RefWithdrawal
	case domain.KindSharePurchase:
		return utils.RefPurchase
	case domain.KindTradePayment:
		return utils.RefPayment
	case domain.KindTradeRefund:
		return utils.RefRefund
	case domain.KindSaleProceeds:
		return utils.RefProceeds
	}
	return "TXN"
}

func appendNote(notes, note string) string {
	if notes == "" {
		return domain.ClipNotes(note)
	}
	return domain.ClipNotes(notes + "; " + note)
}

// isUniqueViolation recognises duplicate-key errors from MySQL and SQLite
// without importing either driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
