package casework

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"casework/internal/config"
	"casework/internal/logging"
	"casework/internal/notifyqueue"
	"casework/internal/services"
	"casework/internal/signal"
	"casework/internal/storage"
)

// Engine runs case transitions: graph validation, guards, the atomic
// status+history commit, and post-commit signal emission.
type Engine struct {
	store   *Store
	signals *signal.Store
	queue   *notifyqueue.Store
	cfg     config.Readiness
	logger  *slog.Logger
	locks   *lockTable
	now     func() time.Time
}

// NewEngine wires the workflow engine over the shared database. A nil
// logger disables engine logging.
func NewEngine(db *storage.DB, cfg config.Readiness, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:   NewStore(db),
		signals: signal.NewStore(db),
		queue:   notifyqueue.NewStore(db),
		cfg:     cfg,
		logger:  logger,
		locks:   newLockTable(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying case store for checklist and query access.
func (e *Engine) Store() *Store {
	return e.store
}

// AttemptTransition moves the case to target after validating the edge and
// its guard. On success the new status and history entry are committed in
// one transaction; the transition signal is emitted afterwards, and a failed
// emission is left for the reconciler rather than rolling back the status.
func (e *Engine) AttemptTransition(ctx context.Context, caseID int64, target Status, actor, reason string) (*Case, error) {
	if _, ok := statusSet[target]; !ok {
		return nil, services.Wrap(services.ErrValidation, "casework", "transition",
			fmt.Sprintf("unknown status %q", target), nil)
	}

	lock := e.locks.lock(caseID)
	defer lock.Unlock()

	kase, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if kase == nil {
		return nil, services.Wrap(services.ErrNotFound, "casework", "transition", fmt.Sprintf("case %d", caseID), nil)
	}

	if !allowedEdge(kase.Status, target, kase.HeldStatus) {
		return nil, services.Wrap(services.ErrValidation, "casework", "transition",
			fmt.Sprintf("transition %s -> %s is not allowed", kase.Status, target), nil)
	}
	if err := e.checkGuard(ctx, kase, target); err != nil {
		return nil, err
	}

	historyID, err := e.store.applyTransition(ctx, kase, target, actor, reason)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "case transitioned",
		logging.Int64(logging.FieldCaseID, caseID),
		logging.String("from", string(kase.Status)),
		logging.String("to", string(target)),
		logging.String("actor", actor))

	if err := e.emitTransitionSignal(ctx, caseID, historyID, kase.Status, target, actor, reason); err != nil {
		// Status is committed; emission is replayed by the reconciler.
		e.logger.ErrorContext(ctx, "transition signal emission failed",
			logging.Int64(logging.FieldCaseID, caseID),
			logging.Int64(logging.FieldEntryID, historyID),
			logging.Error(err))
	}

	if target == StatusCancelled {
		e.cancelPendingNotifications(ctx, caseID)
	}

	return e.store.GetCase(ctx, caseID)
}

// checkGuard enforces the per-target business rules on top of the graph.
func (e *Engine) checkGuard(ctx context.Context, kase *Case, target Status) error {
	switch target {
	case StatusScopeDefinition:
		info, _, err := e.store.checklistCounts(ctx, kase.ID)
		if err != nil {
			return err
		}
		if info.Ratio() < e.cfg.MinInfoRatioForScope {
			return services.Wrap(services.ErrValidation, "casework", "transition",
				fmt.Sprintf("information gathering at %.0f%%, need %.0f%% before scope definition",
					info.Ratio()*100, e.cfg.MinInfoRatioForScope*100), nil)
		}
	case StatusQuoteReady:
		if kase.ScopeDefinitionStatus != ChecklistCompleted {
			return services.Wrap(services.ErrValidation, "casework", "transition",
				"scope definition must be completed before quote ready", nil)
		}
		if kase.ReadinessScore < e.cfg.QuoteReadyThreshold {
			return services.Wrap(services.ErrValidation, "casework", "transition",
				fmt.Sprintf("readiness score %d below quote-ready threshold %d",
					kase.ReadinessScore, e.cfg.QuoteReadyThreshold), nil)
		}
	}
	return nil
}

// TransitionSignalID derives the deterministic signal id for a history
// entry, so a replayed emission collides with the original instead of
// duplicating it.
func TransitionSignalID(caseID, historyID int64) string {
	return fmt.Sprintf("case-%d-history-%d", caseID, historyID)
}

func (e *Engine) emitTransitionSignal(ctx context.Context, caseID, historyID int64, from, to Status, actor, reason string) error {
	payload, err := signal.EncodePayload(map[string]any{
		"caseId":     caseID,
		"fromStatus": string(from),
		"toStatus":   string(to),
		"reason":     reason,
	})
	if err != nil {
		return err
	}
	event := &signal.Event{
		ID:        TransitionSignalID(caseID, historyID),
		Type:      signalTypeFor(to),
		CaseID:    caseID,
		Payload:   payload,
		EmittedAt: e.now(),
		EmittedBy: actor,
		Source:    "workflow",
	}
	if err := e.signals.Append(ctx, event); err != nil {
		return services.Wrap(services.ErrIntegrity, "casework", "emit signal",
			fmt.Sprintf("history entry %d", historyID), err)
	}
	return e.store.MarkSignalEmitted(ctx, historyID)
}

// cancelPendingNotifications best-effort cancels queue entries still pending
// for the case's signals. Leased or delivered entries are left alone.
func (e *Engine) cancelPendingNotifications(ctx context.Context, caseID int64) {
	ids, err := e.signals.IDsForCase(ctx, caseID)
	if err != nil {
		e.logger.WarnContext(ctx, "listing case signals for cancellation failed",
			logging.Int64(logging.FieldCaseID, caseID), logging.Error(err))
		return
	}
	cancelled, err := e.queue.CancelPendingForSignals(ctx, ids...)
	if err != nil {
		e.logger.WarnContext(ctx, "cancelling pending notifications failed",
			logging.Int64(logging.FieldCaseID, caseID), logging.Error(err))
		return
	}
	if cancelled > 0 {
		e.logger.InfoContext(ctx, "cancelled pending notifications",
			logging.Int64(logging.FieldCaseID, caseID),
			logging.Int64("cancelled", cancelled))
	}
}

// RefreshReadiness recomputes the readiness score and derived checklist
// statuses from the case's items and contact recency, persists them, and
// returns the updated case.
func (e *Engine) RefreshReadiness(ctx context.Context, caseID int64) (*Case, error) {
	lock := e.locks.lock(caseID)
	defer lock.Unlock()
	return e.refreshReadinessLocked(ctx, caseID)
}

func (e *Engine) refreshReadinessLocked(ctx context.Context, caseID int64) (*Case, error) {
	kase, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if kase == nil {
		return nil, services.Wrap(services.ErrNotFound, "casework", "refresh readiness", fmt.Sprintf("case %d", caseID), nil)
	}

	info, scope, err := e.store.checklistCounts(ctx, caseID)
	if err != nil {
		return nil, err
	}
	missing, err := e.store.missingInformation(ctx, caseID)
	if err != nil {
		return nil, err
	}

	score := ComputeScore(info, scope, kase.LastContactAt, e.now(), e.cfg)
	if err := e.store.updateReadiness(ctx, caseID, score, info.DerivedStatus(), scope.DerivedStatus(), missing); err != nil {
		return nil, err
	}
	return e.store.GetCase(ctx, caseID)
}

// RecordContact stamps client contact and refreshes the score, since the
// recency term depends on it.
func (e *Engine) RecordContact(ctx context.Context, caseID int64, at time.Time) (*Case, error) {
	lock := e.locks.lock(caseID)
	defer lock.Unlock()
	if err := e.store.RecordContact(ctx, caseID, at); err != nil {
		return nil, err
	}
	return e.refreshReadinessLocked(ctx, caseID)
}
