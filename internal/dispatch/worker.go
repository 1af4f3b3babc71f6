package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"casework/internal/config"
	"casework/internal/logging"
	"casework/internal/notifyqueue"
	"casework/internal/services"
)

// WorkerPool runs the delivery workers. Each worker leases a batch of due
// entries, sends them through the provider under a bounded timeout, and
// records the outcome; expired leases are reclaimed on a timer so a crashed
// worker's entries return to the pool.
type WorkerPool struct {
	queue    *notifyqueue.Store
	provider Provider
	logger   *slog.Logger

	workerCount     int
	batchSize       int
	leaseDuration   time.Duration
	sendTimeout     time.Duration
	retryBase       time.Duration
	retryMax        time.Duration
	idleDelay       time.Duration
	reclaimInterval time.Duration
}

// NewWorkerPool wires the delivery pool from configuration. A nil logger
// disables logging.
func NewWorkerPool(queue *notifyqueue.Store, provider Provider, cfg *config.Config, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = logging.NewNop()
	}
	delivery := cfg.Delivery
	return &WorkerPool{
		queue:           queue,
		provider:        provider,
		logger:          logger,
		workerCount:     delivery.WorkerCount,
		batchSize:       delivery.BatchSize,
		leaseDuration:   time.Duration(delivery.LeaseSeconds) * time.Second,
		sendTimeout:     time.Duration(delivery.SendTimeoutSeconds) * time.Second,
		retryBase:       time.Duration(delivery.RetryBaseSeconds) * time.Second,
		retryMax:        time.Duration(delivery.RetryMaxSeconds) * time.Second,
		idleDelay:       time.Second,
		reclaimInterval: time.Duration(delivery.ReclaimInterval) * time.Second,
	}
}

// Run starts the workers and the lease reclaimer and blocks until the
// context ends and every worker has drained.
func (p *WorkerPool) Run(ctx context.Context) {
	instance := uuid.NewString()[:8]

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", instance, i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runReclaimer(ctx)
	}()

	wg.Wait()
}

func (p *WorkerPool) runWorker(ctx context.Context, workerID string) {
	logger := p.logger.With(logging.String(logging.FieldWorkerID, workerID))
	for {
		if ctx.Err() != nil {
			return
		}

		delivered, err := p.DeliverBatch(ctx, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorContext(ctx, "leasing entries failed", logging.Error(err))
		}
		if delivered == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.idleDelay):
			}
		}
	}
}

// DeliverBatch leases one batch for the worker and attempts every entry in
// it, returning how many entries were attempted.
func (p *WorkerPool) DeliverBatch(ctx context.Context, workerID string) (int, error) {
	logger := p.logger.With(logging.String(logging.FieldWorkerID, workerID))
	entries, err := p.queue.Lease(ctx, workerID, p.batchSize, p.leaseDuration)
	if err != nil {
		return 0, err
	}
	for i, entry := range entries {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		p.deliver(ctx, logger, workerID, entry)
	}
	return len(entries), nil
}

// deliver runs one provider call and records the outcome on the entry.
func (p *WorkerPool) deliver(ctx context.Context, logger *slog.Logger, workerID string, entry *notifyqueue.Entry) {
	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	err := p.provider.Send(sendCtx, entry)
	cancel()

	if err == nil {
		if err := p.queue.Complete(ctx, entry.ID, workerID); err != nil {
			logger.WarnContext(ctx, "completion lost",
				logging.Int64(logging.FieldEntryID, entry.ID), logging.Error(err))
			return
		}
		logger.InfoContext(ctx, "notification sent",
			logging.Int64(logging.FieldEntryID, entry.ID),
			logging.String(logging.FieldSignalID, entry.SignalEventID),
			logging.String(logging.FieldHookID, entry.HookID),
			logging.Int("attempt", entry.Attempt+1))
		return
	}

	retryable := services.Retryable(err)
	delay := BackoffDelay(p.retryBase, p.retryMax, entry.Attempt)
	status, failErr := p.queue.Fail(ctx, entry.ID, workerID, err.Error(), delay, retryable)
	if failErr != nil {
		logger.WarnContext(ctx, "recording failure lost",
			logging.Int64(logging.FieldEntryID, entry.ID), logging.Error(failErr))
		return
	}

	logger.WarnContext(ctx, "delivery attempt failed",
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldSignalID, entry.SignalEventID),
		logging.Int("attempt", entry.Attempt+1),
		logging.Bool("retryable", retryable),
		logging.String("outcome", string(status)),
		logging.Error(err))
}

func (p *WorkerPool) runReclaimer(ctx context.Context) {
	interval := p.reclaimInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := p.queue.ReclaimExpired(ctx)
			if err != nil && ctx.Err() == nil {
				p.logger.ErrorContext(ctx, "lease reclaim failed", logging.Error(err))
				continue
			}
			if reclaimed > 0 {
				p.logger.InfoContext(ctx, "reclaimed expired leases", logging.Int64("reclaimed", reclaimed))
			}
		}
	}
}

// BackoffDelay computes the retry delay for the given completed attempt
// count: base doubled per attempt, capped at max.
func BackoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
