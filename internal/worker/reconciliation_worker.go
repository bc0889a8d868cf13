// Package worker hosts the background loops that run alongside the HTTP
// server.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
	"github.com/maltlabs/malt-bridge/internal/observability"
)

// SettlementStore is the slice of the settlement repository the worker
// consumes.
type SettlementStore interface {
	ListByStatus(ctx context.Context, status string, limit int) ([]domain.Settlement, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	Resolve(ctx context.Context, ref domain.PaymentReference, status string) error
}

// ReconciliationWorker resolves UNCERTAIN settlements: outbound transfers
// that were broadcast but whose confirmation was never observed. Each run it
// re-checks the outbound signature on chain and moves the row to SETTLED or
// FAILED once the cluster has an answer.
type ReconciliationWorker struct {
	repo      SettlementStore
	ledger    ledger.Client
	interval  time.Duration
	batchSize int
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewReconciliationWorker(repo SettlementStore, lc ledger.Client) *ReconciliationWorker {
	return &ReconciliationWorker{
		repo:      repo,
		ledger:    lc,
		interval:  time.Minute,
		batchSize: 50,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	if err := w.ReconcileOnce(ctx); err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
}

// ReconcileOnce processes one batch of UNCERTAIN settlements.
func (w *ReconciliationWorker) ReconcileOnce(ctx context.Context) error {
	pending, err := w.repo.ListByStatus(ctx, domain.SettlementUncertain, w.batchSize)
	if err != nil {
		return err
	}

	for _, rec := range pending {
		w.reconcile(ctx, rec)
	}

	backlog, err := w.repo.CountByStatus(ctx, domain.SettlementUncertain)
	if err != nil {
		return err
	}
	observability.SetUncertainBacklog(backlog)
	return nil
}

func (w *ReconciliationWorker) reconcile(ctx context.Context, rec domain.Settlement) {
	log := zap.L().With(
		zap.String("reference", rec.Reference.String()),
		zap.String("outbound", rec.Outbound))

	sig, err := solana.SignatureFromBase58(rec.Outbound)
	if err != nil {
		log.Error("uncertain settlement carries unparseable outbound signature", zap.Error(err))
		return
	}

	status, err := w.ledger.GetStatus(ctx, sig)
	if err != nil {
		log.Warn("reconciliation status check failed", zap.Error(err))
		return
	}
	if status.AtLeastConfirmed() {
		// the transfer could still have executed and failed; the
		// transaction object is authoritative
		view, err := w.ledger.GetTransaction(ctx, sig)
		if err != nil {
			log.Warn("reconciliation transaction fetch failed", zap.Error(err))
			return
		}
		outcome := domain.SettlementSettled
		if view.Failed {
			outcome = domain.SettlementFailed
		}
		if err := w.repo.Resolve(ctx, rec.Reference, outcome); err != nil {
			log.Error("reconciliation resolve failed", zap.Error(err))
			return
		}
		log.Info("uncertain settlement resolved", zap.String("outcome", outcome))
		return
	}

	view, err := w.ledger.GetTransaction(ctx, sig)
	if err != nil {
		if domain.IsKind(err, domain.KindReferenceNotFound) {
			// never landed; after the blockhash window this is permanent
			if rec.UpdatedAt.Before(time.Now().Add(-10 * time.Minute)) {
				if err := w.repo.Resolve(ctx, rec.Reference, domain.SettlementFailed); err != nil {
					log.Error("reconciliation resolve failed", zap.Error(err))
					return
				}
				log.Info("uncertain settlement resolved", zap.String("outcome", domain.SettlementFailed))
			}
			return
		}
		log.Warn("reconciliation transaction fetch failed", zap.Error(err))
		return
	}
	if view.Failed {
		if err := w.repo.Resolve(ctx, rec.Reference, domain.SettlementFailed); err != nil {
			log.Error("reconciliation resolve failed", zap.Error(err))
		}
	}
}
