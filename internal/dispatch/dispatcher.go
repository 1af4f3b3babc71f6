package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"casework/internal/config"
	"casework/internal/hooks"
	"casework/internal/logging"
	"casework/internal/notifyqueue"
	"casework/internal/recipients"
	"casework/internal/services"
	"casework/internal/signal"
)

const signalBatchSize = 50

// Dispatcher drains unprocessed signal events into the notification queue.
// An event is marked processed only once every matching enabled hook has an
// entry (or was confirmed skippable), so a crash mid-signal is retried on
// the next poll and the queue's unique pairing absorbs the replay.
type Dispatcher struct {
	signals      *signal.Store
	registry     *hooks.Registry
	resolver     *recipients.Resolver
	queue        *notifyqueue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	retryBackoff time.Duration
	defaultRetry int
}

// NewDispatcher wires the dispatch loop. A nil logger disables logging.
func NewDispatcher(
	signals *signal.Store,
	registry *hooks.Registry,
	resolver *recipients.Resolver,
	queue *notifyqueue.Store,
	cfg *config.Config,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		signals:      signals,
		registry:     registry,
		resolver:     resolver,
		queue:        queue,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.SignalPollInterval) * time.Second,
		retryBackoff: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		defaultRetry: cfg.Delivery.DefaultMaxRetries,
	}
}

// ProcessOnce drains the current batch of unprocessed signals and returns
// how many were fully processed.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (int, error) {
	events, err := d.signals.ListUnprocessed(ctx, signalBatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := d.processSignal(ctx, event); err != nil {
			d.logger.WarnContext(ctx, "signal processing failed; will retry",
				logging.String(logging.FieldSignalID, event.ID),
				logging.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// processSignal matches, resolves, and enqueues for one event, then marks
// it processed. Configuration problems skip only the offending hook;
// transient failures leave the event unprocessed for the next poll.
func (d *Dispatcher) processSignal(ctx context.Context, event *signal.Event) error {
	snap := d.registry.Snapshot()
	matched, issues := hooks.Match(snap, event)
	for _, issue := range issues {
		d.logger.WarnContext(ctx, "hook skipped during matching",
			logging.String(logging.FieldSignalID, event.ID),
			logging.String(logging.FieldHookID, issue.HookID),
			logging.Error(issue.Err))
	}

	for _, hook := range matched {
		resolution, err := d.resolver.Resolve(ctx, hook)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) {
				d.logger.WarnContext(ctx, "hook skipped: unusable recipient configuration",
					logging.String(logging.FieldSignalID, event.ID),
					logging.String(logging.FieldHookID, hook.ID),
					logging.Error(err))
				continue
			}
			return err
		}

		maxRetries := hook.MaxRetries
		if maxRetries <= 0 {
			maxRetries = d.defaultRetry
		}
		entry := notifyqueue.Entry{
			SignalEventID:     event.ID,
			HookID:            hook.ID,
			Channel:           string(hook.Channel),
			ToRecipients:      resolution.To,
			CCRecipients:      resolution.CC,
			PartialResolution: resolution.Partial,
			UnresolvedRoles:   resolution.UnresolvedRoles,
			MaxRetries:        maxRetries,
		}
		if hook.DeliveryDelay > 0 {
			due := time.Now().UTC().Add(hook.DeliveryDelay)
			entry.NextAttemptAt = &due
		}

		stored, created, err := d.queue.Enqueue(ctx, entry)
		if err != nil {
			return err
		}
		if created {
			d.logger.InfoContext(ctx, "notification enqueued",
				logging.String(logging.FieldSignalID, event.ID),
				logging.String(logging.FieldHookID, hook.ID),
				logging.Int64(logging.FieldEntryID, stored.ID),
				logging.Bool("partial_resolution", stored.PartialResolution))
		}
	}

	return d.signals.MarkProcessed(ctx, event.ID)
}

// Run polls for unprocessed signals until the context ends. Poll errors
// back off on the error retry interval instead of the regular cadence.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := interval
		if _, err := d.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.ErrorContext(ctx, "dispatch poll failed", logging.Error(err))
			if d.retryBackoff > 0 {
				next = d.retryBackoff
			}
		}
		timer.Reset(next)
	}
}
