package casework

import (
	"context"
	"log/slog"
	"time"

	"casework/internal/logging"
	"casework/internal/signal"
)

const reconcileBatchSize = 100

// Reconciler replays transition signals that were never durably appended:
// the status and history committed but the process died (or the append
// failed) before the signal landed. Deterministic signal ids make the
// replay idempotent, so re-running over an already-appended event is a
// no-op plus a flag flip.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewReconciler builds a reconciler over the engine's stores.
func NewReconciler(engine *Engine, interval time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{engine: engine, interval: interval, logger: logger}
}

// Reconcile runs one replay pass and returns the number of history entries
// whose signals were re-emitted. Failures on individual entries are logged
// and left for the next pass.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	entries, err := r.engine.store.UnemittedHistory(ctx, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return replayed, ctx.Err()
		}
		if err := r.replay(ctx, entry); err != nil {
			r.logger.WarnContext(ctx, "signal replay failed",
				logging.Int64(logging.FieldCaseID, entry.CaseID),
				logging.Int64(logging.FieldEntryID, entry.ID),
				logging.Error(err))
			continue
		}
		replayed++
	}
	if replayed > 0 {
		r.logger.InfoContext(ctx, "reconciled transition signals", logging.Int("replayed", replayed))
	}
	return replayed, nil
}

func (r *Reconciler) replay(ctx context.Context, entry *StatusHistoryEntry) error {
	payload, err := signal.EncodePayload(map[string]any{
		"caseId":     entry.CaseID,
		"fromStatus": string(entry.FromStatus),
		"toStatus":   string(entry.ToStatus),
		"reason":     entry.Reason,
	})
	if err != nil {
		return err
	}
	event := &signal.Event{
		ID:        TransitionSignalID(entry.CaseID, entry.ID),
		Type:      signalTypeFor(entry.ToStatus),
		CaseID:    entry.CaseID,
		Payload:   payload,
		EmittedAt: entry.ChangedAt,
		EmittedBy: entry.ChangedBy,
		Source:    "reconciler",
	}
	if err := r.engine.signals.Append(ctx, event); err != nil {
		return err
	}
	return r.engine.store.MarkSignalEmitted(ctx, entry.ID)
}

// Run executes reconcile passes on the configured interval until the
// context ends.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "reconcile pass failed", logging.Error(err))
			}
		}
	}
}
