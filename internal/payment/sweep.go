package payment

import (
	"context"
	"errors"
	"time"

	"brokerage_system/internal/domain"
	"brokerage_system/internal/ledger"
	"brokerage_system/internal/processor"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SweepSummary counts what one reconciliation sweep did
type SweepSummary struct {
	Checked int `json:"checked"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
	Errors  int `json:"errors"`
}

// ReconcilePending polls the processor for pending transactions older than
// minAge that carry a processor reference, and reconciles each one the same
// way a verification pull would. Transactions without a processor reference
// never reached the processor in a known state and are left for an operator.
// The sweep stops early when the processor is unavailable.
func (g *Gateway) ReconcilePending(ctx context.Context, minAge time.Duration, limit int) (SweepSummary, error) {
	var sum SweepSummary
	due, err := ledger.NewStore(g.db).PendingForReconciliation(ctx, time.Now().Add(-minAge), limit)
	if err != nil {
		return sum, err
	}
	for i := range due {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		pending := &due[i]
		sum.Checked++

		var res *processor.Result
		if pending.Kind == domain.KindWithdrawal {
			res, err = g.proc.GetTransfer(ctx, *pending.ProcessorRef)
		} else {
			res, err = g.proc.GetCharge(ctx, *pending.ProcessorRef)
		}
		if err != nil {
			sum.Errors++
			if errors.Is(err, processor.ErrUnavailable) {
				logrus.WithField("checked", sum.Checked).Warn("Processor unavailable, reconciliation sweep stopped")
				return sum, processorError(err)
			}
			continue
		}
		if res.ID == "" {
			res.ID = *pending.ProcessorRef
		}

		var (
			txn *domain.WalletTransaction
			o   Outcome
		)
		err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			store := ledger.NewStore(tx)
			locked, err := store.LockByReference(ctx, pending.Reference)
			if err != nil {
				return err
			}
			txn, o, err = reconcile(ctx, store, locked, res, lateFailure(locked))
			return err
		})
		if err != nil {
			sum.Errors++
			logrus.WithFields(logrus.Fields{
				"reference": pending.Reference,
				"error":     err.Error(),
			}).Error("Reconciliation failed")
			continue
		}
		g.committed(ctx, "sweep", txn, o)
		switch o {
		case OutcomeSettled:
			sum.Settled++
		case OutcomeFailed, OutcomeMismatch:
			sum.Failed++
		case OutcomePending:
			sum.Pending++
		}
	}
	logrus.WithFields(logrus.Fields{
		"checked": sum.Checked,
		"settled": sum.Settled,
		"failed":  sum.Failed,
		"pending": sum.Pending,
		"errors":  sum.Errors,
	}).Info("Reconciliation sweep finished")
	return sum, nil
}
