package payment

import (
	"context"
	"errors"
	"strings"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/ledger"
	"brokerage_system/internal/processor"
	"brokerage_system/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FundRequest asks to credit the wallet through a processor charge
type FundRequest struct {
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string // card, mobile_money, bank_transfer
	Phone         string // mobile money payer
	Reference     string // optional client idempotency key
}

// FundResult is the state of a funding after the processor's first answer
type FundResult struct {
	Transaction *domain.WalletTransaction
	NextAction  *processor.NextAction // what the payer must do to complete a pending charge
	Replayed    bool                  // the reference was already used; nothing new was charged
}

// Fund creates a pending credit, charges the payer and applies the
// processor's immediate answer. A timeout leaves the credit pending for
// verification, webhook or sweep to settle.
func (g *Gateway) Fund(ctx context.Context, actor domain.Actor, req FundRequest) (*FundResult, error) {
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := domain.NormalizeAmount(req.Amount, currency)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(req.Reference)
	if len(reference) > 64 {
		return nil, domain.Errorf(domain.KindInvalidInput, "reference is longer than 64 characters")
	}
	var user domain.User
	if err := g.db.WithContext(ctx).First(&user, actor.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Errorf(domain.KindNotFound, "user %d not found", actor.UserID)
		}
		return nil, err
	}

	txn := &domain.WalletTransaction{
		UserID:    user.ID,
		Direction: domain.Credit,
		Kind:      domain.KindFunding,
		Amount:    amount,
		Currency:  currency,
		Reference: reference,
		Notes:     "wallet funding via " + methodOrDefault(req.PaymentMethod),
	}
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := ledger.NewStore(tx)
		w, err := store.WalletFor(ctx, user.ID, currency)
		if err != nil {
			return err
		}
		txn.WalletID = w.ID
		return store.CreatePending(ctx, txn)
	})
	if errors.Is(err, domain.ErrDuplicateReference) && reference != "" {
		return g.replayFunding(ctx, actor, reference)
	}
	if err != nil {
		return nil, err
	}

	res, err := g.proc.InitiateCharge(ctx, processor.ChargeRequest{
		Amount:        amount,
		Currency:      currency,
		Reference:     txn.Reference,
		PaymentMethod: methodOrDefault(req.PaymentMethod),
		Customer:      processor.Customer{Email: user.Email, Phone: req.Phone, Name: user.Username},
	})
	if err != nil {
		return g.initiationFailed(ctx, "fund", txn, err)
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
	g.committed(ctx, "fund", txn, o)
	return &FundResult{Transaction: txn, NextAction: res.NextAction}, initiationError(txn, o)
}

func (g *Gateway) replayFunding(ctx context.Context, actor domain.Actor, reference string) (*FundResult, error) {
	existing, err := ledger.NewStore(g.db).GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if existing.UserID != actor.UserID || existing.Kind != domain.KindFunding {
		return nil, domain.Errorf(domain.KindInvalidInput, "reference %s is already in use", reference)
	}
	g.metrics.Reconciled("fund", string(OutcomeReplayed))
	return &FundResult{Transaction: existing, Replayed: true}, nil
}

// initiationFailed handles an error from the initiating processor call. A
// call that certainly did nothing closes the transaction as failed; an
// unknown outcome leaves it pending.
func (g *Gateway) initiationFailed(ctx context.Context, source string, txn *domain.WalletTransaction, callErr error) (*FundResult, error) {
	var rejected *processor.RejectedError
	if !errors.Is(callErr, processor.ErrUnavailable) && !errors.As(callErr, &rejected) {
		logrus.WithFields(logrus.Fields{
			"user_id":   txn.UserID,
			"reference": txn.Reference,
			"error":     callErr.Error(),
		}).Warn("Processor outcome unknown, transaction left pending")
		g.metrics.Reconciled(source, string(OutcomePending))
		return &FundResult{Transaction: txn}, nil
	}
	var closed *domain.WalletTransaction
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		closed, _, err = ledger.NewStore(tx).Close(ctx, txn.ID, domain.TxFailed, callErr.Error())
		return err
	})
	if err != nil {
		return nil, err
	}
	g.committed(ctx, source, closed, OutcomeFailed)
	return &FundResult{Transaction: closed}, processorError(callErr)
}

// VerifyPayment pulls the processor's view of a charge or transfer and
// reconciles it. Only the owner of the transaction or an admin may verify.
func (g *Gateway) VerifyPayment(ctx context.Context, actor domain.Actor, processorRef string) (*domain.WalletTransaction, error) {
	processorRef = strings.TrimSpace(processorRef)
	if processorRef == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "processor reference is required")
	}

	known, err := ledger.NewStore(g.db).GetByProcessorRef(ctx, processorRef)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if known != nil {
		if err := ownedBy(actor, known); err != nil {
			return nil, err
		}
	}

	var res *processor.Result
	if known != nil && known.Kind == domain.KindWithdrawal {
		res, err = g.proc.GetTransfer(ctx, processorRef)
	} else {
		res, err = g.proc.GetCharge(ctx, processorRef)
	}
	if err != nil {
		var rejected *processor.RejectedError
		if errors.As(err, &rejected) && rejected.StatusCode == 404 {
			return nil, domain.Errorf(domain.KindNotFound, "processor has no payment %s", processorRef)
		}
		return nil, processorError(err)
	}
	if res.ID == "" {
		res.ID = processorRef
	}

	var (
		txn *domain.WalletTransaction
		o   Outcome
	)
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := ledger.NewStore(tx)
		locked, err := lockForResult(ctx, store, res)
		if err != nil {
			return err
		}
		if err := ownedBy(actor, locked); err != nil {
			return err
		}
		txn, o, err = reconcile(ctx, store, locked, res, lateFailure(locked))
		return err
	})
	if err != nil {
		return nil, err
	}
	g.committed(ctx, "verify", txn, o)
	return txn, outcomeError(txn, o)
}

// lockForResult finds the transaction a processor result is about, by our
// reference first and by the processor's reference second.
func lockForResult(ctx context.Context, store *ledger.Store, res *processor.Result) (*domain.WalletTransaction, error) {
	if res.Reference != "" {
		txn, err := store.LockByReference(ctx, res.Reference)
		if !errors.Is(err, domain.ErrNotFound) {
			return txn, err
		}
	}
	if res.ID != "" {
		return store.LockByProcessorRef(ctx, res.ID)
	}
	return nil, domain.Errorf(domain.KindNotFound, "payment carries no reference")
}

// HandleWebhook verifies and applies a processor webhook. The caller
// acknowledges the delivery whatever this returns; a signature failure
// changes nothing.
func (g *Gateway) HandleWebhook(ctx context.Context, body []byte, signature string) (*domain.WalletTransaction, error) {
	if !processor.VerifySignature(body, signature, g.webhookSecret) {
		g.metrics.Reconciled("webhook", "bad_signature")
		logrus.WithField("body_bytes", len(body)).Warn("Webhook signature verification failed")
		return nil, domain.ErrInvalidSignature
	}
	ev, err := processor.ParseWebhook(body)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidInput, err, "malformed webhook payload")
	}

	var (
		txn *domain.WalletTransaction
		o   Outcome
	)
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := ledger.NewStore(tx)
		locked, err := lockForResult(ctx, store, &ev.Data)
		if errors.Is(err, domain.ErrNotFound) && !ev.IsTransfer() {
			txn, o, err = recoverCredit(ctx, tx, &ev.Data)
			return err
		}
		if err != nil {
			return err
		}
		txn, o, err = reconcile(ctx, store, locked, &ev.Data, lateFailure(locked))
		return err
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"event":         ev.Event,
			"reference":     ev.Data.Reference,
			"processor_ref": ev.Data.ID,
			"error":         err.Error(),
		}).Warn("Webhook not applied")
		return nil, err
	}
	g.committed(ctx, "webhook", txn, o)
	return txn, outcomeError(txn, o)
}

// recoverCredit books a successful charge we hold no intent for, when the
// payload names a known user by email. The processor reference is unique,
// so a second delivery finds this transaction instead of recovering again.
func recoverCredit(ctx context.Context, tx *gorm.DB, res *processor.Result) (*domain.WalletTransaction, Outcome, error) {
	if res.Status != processor.StatusSucceeded || res.Customer == nil || res.Customer.Email == "" || res.ID == "" {
		return nil, "", domain.Errorf(domain.KindNotFound, "no transaction for payment %s %s", res.Reference, res.ID)
	}
	var user domain.User
	if err := tx.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(res.Customer.Email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", domain.Errorf(domain.KindNotFound, "no user for %s", res.Customer.Email)
		}
		return nil, "", err
	}
	currency, err := domain.NormalizeCurrency(res.Currency)
	if err != nil {
		return nil, "", err
	}
	amount, err := domain.NormalizeAmount(res.Amount, currency)
	if err != nil {
		return nil, "", err
	}
	store := ledger.NewStore(tx)
	w, err := store.WalletFor(ctx, user.ID, currency)
	if err != nil {
		return nil, "", err
	}
	processorRef := res.ID
	txn, err := store.RecordSettled(ctx, &domain.WalletTransaction{
		UserID:       user.ID,
		WalletID:     w.ID,
		Direction:    domain.Credit,
		Kind:         domain.KindFunding,
		Amount:       amount,
		Currency:     currency,
		Reference:    utils.NewReference(utils.RefRecovery),
		ProcessorRef: &processorRef,
		Notes:        "recovered from webhook without a matching funding request",
	})
	if err != nil {
		return nil, "", err
	}
	return txn, OutcomeRecovered, nil
}

func methodOrDefault(m string) string {
	if m == "" {
		return "card"
	}
	return m
}
