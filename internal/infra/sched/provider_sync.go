package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain/ports/repository"
	portsuc "ideaforge-billing/internal/domain/ports/usecase"
	"ideaforge-billing/internal/infra/logging"
	"ideaforge-billing/internal/infra/metrics"
	"ideaforge-billing/internal/infra/worker"
)

// SyncReport summarises one provider sync run.
type SyncReport struct {
	Checked int
	Changed int
	Failed  int
}

// ProviderSync pages paid accounts and reconciles each against the payment
// provider on the worker pool. Per-account failures are counted, not fatal.
type ProviderSync struct {
	accounts   repository.AccountRepository
	reconciler portsuc.SubscriptionReconciler
	pool       *worker.Pool
	batchSize  int
	log        *zerolog.Logger
}

func NewProviderSync(
	accounts repository.AccountRepository,
	reconciler portsuc.SubscriptionReconciler,
	pool *worker.Pool,
	batchSize int,
	logger *zerolog.Logger,
) *ProviderSync {
	if batchSize <= 0 {
		batchSize = 100
	}
	l := logger.With().Str("component", "provider_sync").Logger()
	return &ProviderSync{accounts: accounts, reconciler: reconciler, pool: pool, batchSize: batchSize, log: &l}
}

// Run performs one full pass. The pool must already be started.
func (s *ProviderSync) Run(ctx context.Context) (SyncReport, error) {
	done := logging.TraceDuration(s.log, "provider_sync")
	defer done()

	var (
		wg      sync.WaitGroup
		checked atomic.Int64
		changed atomic.Int64
		failed  atomic.Int64
		runErr  error
	)

	afterID := ""
	for {
		page, err := s.accounts.ListPaid(ctx, repository.NoTX, afterID, s.batchSize)
		if err != nil {
			runErr = err
			break
		}
		for _, acc := range page {
			id := acc.ID
			wg.Add(1)
			err := s.pool.Submit(ctx, func(ctx context.Context) error {
				defer wg.Done()
				checked.Add(1)
				ok, err := s.reconciler.ReconcileAccount(logging.WithAccountID(ctx, id), id)
				switch {
				case err != nil:
					failed.Add(1)
					metrics.IncSyncAccount("error")
					return err
				case ok:
					changed.Add(1)
					metrics.IncSyncAccount("changed")
				default:
					metrics.IncSyncAccount("unchanged")
				}
				return nil
			})
			if err != nil {
				wg.Done()
				runErr = err
				break
			}
		}
		if runErr != nil || len(page) < s.batchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	// Queued tasks are abandoned when the pool shuts down, so stop waiting
	// once the run is cancelled.
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	report := SyncReport{Checked: int(checked.Load()), Changed: int(changed.Load()), Failed: int(failed.Load())}
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	metrics.IncSyncRun(runErr)

	var ev *zerolog.Event
	if runErr != nil {
		ev = s.log.Warn().Err(runErr)
	} else {
		ev = s.log.Info()
	}
	ev.Int("checked", report.Checked).Int("changed", report.Changed).Int("failed", report.Failed).Msg("provider sync finished")
	return report, runErr
}

// Job adapts Run for the scheduler.
func (s *ProviderSync) Job() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.Run(ctx)
		if errors.Is(err, worker.ErrPoolStopped) {
			return nil
		}
		return err
	}
}
