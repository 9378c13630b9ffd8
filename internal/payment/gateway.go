// Package payment moves money between wallets and the outside world through
// the payment processor, and reconciles the processor's asynchronous
// outcomes against pending wallet transactions exactly once.
//
// Every reconciliation path (synchronous answer, verification pull, webhook
// push, background sweep) goes through reconcile while holding the row lock
// of the wallet transaction, so racing paths serialize and only the first
// one to see the transaction pending can finish it.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/events"
	"brokerage_system/internal/ledger"
	"brokerage_system/internal/metrics"
	"brokerage_system/internal/processor"
	"brokerage_system/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Processor is what the gateway needs from the payment processor.
// *processor.Client implements it.
type Processor interface {
	InitiateCharge(ctx context.Context, req processor.ChargeRequest) (*processor.Result, error)
	GetCharge(ctx context.Context, id string) (*processor.Result, error)
	InitiateTransfer(ctx context.Context, req processor.TransferRequest) (*processor.Result, error)
	GetTransfer(ctx context.Context, id string) (*processor.Result, error)
}

// Gateway is the payment reconciliation gateway
type Gateway struct {
	db            *gorm.DB
	proc          Processor
	webhookSecret string
	rdb           *redis.Client
	events        events.Publisher
	metrics       *metrics.Metrics
}

// Config carries the gateway's collaborators. Redis, Events and Metrics
// are optional.
type Config struct {
	DB            *gorm.DB
	Processor     Processor
	WebhookSecret string
	Redis         *redis.Client
	Events        events.Publisher
	Metrics       *metrics.Metrics
}

// NewGateway builds a gateway
func NewGateway(cfg Config) *Gateway {
	pub := cfg.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Gateway{
		db:            cfg.DB,
		proc:          cfg.Processor,
		webhookSecret: cfg.WebhookSecret,
		rdb:           cfg.Redis,
		events:        pub,
		metrics:       cfg.Metrics,
	}
}

// Outcome is what a reconciliation attempt did
type Outcome string

const (
	OutcomeSettled   Outcome = "settled"   // pending -> successful, wallet moved
	OutcomeRecovered Outcome = "recovered" // no matching intent, credit created from the webhook
	OutcomeReplayed  Outcome = "replayed"  // already successful, nothing to do
	OutcomeFailed    Outcome = "failed"    // processor reported failure
	OutcomeMismatch  Outcome = "mismatch"  // amount or currency differs, closed as failed
	OutcomePending   Outcome = "pending"   // processor has no final answer yet
	OutcomeIgnored   Outcome = "ignored"   // already failed or reversed
)

// reconcile applies a processor result to a locked pending transaction.
// failAs is the status a failure lands on: failed for a synchronous answer,
// reversed for a withdrawal that fails after it was accepted.
func reconcile(ctx context.Context, store *ledger.Store, txn *domain.WalletTransaction, res *processor.Result, failAs domain.TxStatus) (*domain.WalletTransaction, Outcome, error) {
	switch txn.Status {
	case domain.TxSuccessful:
		return txn, OutcomeReplayed, nil
	case domain.TxFailed, domain.TxReversed:
		return txn, OutcomeIgnored, nil
	}
	if res.ID != "" {
		if err := store.AttachProcessorRef(ctx, txn.ID, res.ID); err != nil {
			return nil, "", err
		}
		id := res.ID
		txn.ProcessorRef = &id
	}

	switch res.Status {
	case processor.StatusPending:
		return txn, OutcomePending, nil
	case processor.StatusFailed:
		note := "processor reported failure"
		if res.Message != "" {
			note += ": " + res.Message
		}
		closed, _, err := store.Close(ctx, txn.ID, failAs, note)
		return closed, OutcomeFailed, err
	}

	if !res.Amount.Equal(txn.Amount) || !strings.EqualFold(res.Currency, txn.Currency) {
		note := fmt.Sprintf("amount mismatch: expected %s %s, processor reported %s %s", txn.Amount, txn.Currency, res.Amount, res.Currency)
		closed, _, err := store.Close(ctx, txn.ID, domain.TxFailed, note)
		return closed, OutcomeMismatch, err
	}
	settled, _, err := store.Settle(ctx, txn.ID)
	return settled, OutcomeSettled, err
}

// lateFailure is the status for a failure reported after initiation
func lateFailure(txn *domain.WalletTransaction) domain.TxStatus {
	if txn.Kind == domain.KindWithdrawal {
		return domain.TxReversed
	}
	return domain.TxFailed
}

// outcomeError turns a committed mismatch into the error the caller sees
func outcomeError(txn *domain.WalletTransaction, o Outcome) error {
	if o == OutcomeMismatch {
		return domain.Errorf(domain.KindAmountMismatch, "transaction %s closed as failed: %s", txn.Reference, txn.Notes)
	}
	return nil
}

// initiationError is outcomeError for the processor's first answer, where an
// immediate failure is also reported to the payer.
func initiationError(txn *domain.WalletTransaction, o Outcome) error {
	if o == OutcomeFailed {
		return domain.Errorf(domain.KindInvalidInput, "payment declined by processor: transaction %s failed", txn.Reference)
	}
	return outcomeError(txn, o)
}

// echoRequested fills the amount and currency an initiation answer left out
// with what was requested. Values the processor did report are kept, so a
// reported difference is still a mismatch.
func echoRequested(res *processor.Result, txn *domain.WalletTransaction) {
	if res.Amount.IsZero() {
		res.Amount = txn.Amount
	}
	if res.Currency == "" {
		res.Currency = txn.Currency
	}
}

// processorError classifies a failed processor call for the caller
func processorError(err error) error {
	var rejected *processor.RejectedError
	switch {
	case errors.As(err, &rejected):
		return domain.Wrap(domain.KindInvalidInput, err, "payment declined by processor")
	case errors.Is(err, processor.ErrUnavailable):
		return domain.Wrap(domain.KindProcessorUnavailable, err, "payment processor unavailable, try again later")
	default:
		return domain.Wrap(domain.KindProcessorUnavailable, err, "payment processor did not answer, try again later")
	}
}

// committed runs the after-commit side effects of a reconciliation: log,
// metrics, event and cache invalidation.
func (g *Gateway) committed(ctx context.Context, source string, txn *domain.WalletTransaction, o Outcome) {
	g.metrics.Reconciled(source, string(o))
	fields := logrus.Fields{
		"source":    source,
		"outcome":   o,
		"user_id":   txn.UserID,
		"reference": txn.Reference,
		"kind":      txn.Kind,
		"amount":    txn.Amount.String(),
		"currency":  txn.Currency,
		"status":    txn.Status,
	}
	if txn.ProcessorRef != nil {
		fields["processor_ref"] = *txn.ProcessorRef
	}
	switch o {
	case OutcomeReplayed, OutcomeIgnored, OutcomePending:
		logrus.WithFields(fields).Debug("Wallet transaction unchanged")
		return
	case OutcomeMismatch:
		logrus.WithFields(fields).Error("Processor amount mismatch, transaction failed")
	default:
		logrus.WithFields(fields).Info("Wallet transaction updated")
	}
	g.changed(ctx, txn)
}

// changed publishes and invalidates after a transaction changed state
func (g *Gateway) changed(ctx context.Context, txn *domain.WalletTransaction) {
	if txn.Status == domain.TxSuccessful {
		g.metrics.LedgerEntry(string(txn.Direction), string(txn.Kind))
	}
	g.events.Publish(ctx, events.Event{
		Type:      events.WalletTransactionUpdated,
		UserID:    txn.UserID,
		Reference: txn.Reference,
		Status:    string(txn.Status),
		Amount:    txn.Amount.String(),
		Currency:  txn.Currency,
	})
	if err := utils.InvalidateUser(ctx, g.rdb, txn.UserID); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate user cache")
	}
}

// ownedBy rejects access to another user's transaction
func ownedBy(actor domain.Actor, txn *domain.WalletTransaction) error {
	if actor.IsAdmin() || actor.UserID == txn.UserID {
		return nil
	}
	return domain.Errorf(domain.KindForbidden, "transaction %s is not yours", txn.Reference)
}
