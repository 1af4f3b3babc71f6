package casework_test

import (
	"context"
	"testing"
	"time"

	"casework/internal/casework"
	"casework/internal/signal"
	"casework/internal/testsupport"
)

func TestReconcileReplaysMissedSignals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	engine := casework.NewEngine(db, cfg.Readiness, nil)
	signals := signal.NewStore(db)
	ctx := context.Background()

	kase, err := engine.Store().CreateCase(ctx, "reconciled")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.AttemptTransition(ctx, kase.ID, casework.StatusInReview, "tester", ""); err != nil {
		t.Fatal(err)
	}

	history, err := engine.Store().History(ctx, kase.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %v %v", history, err)
	}
	entry := history[0]
	signalID := casework.TransitionSignalID(kase.ID, entry.ID)

	// Simulate a crash between the status commit and the signal append:
	// drop the emitted flag and the event itself.
	if _, err := db.ExecRetry(ctx, `DELETE FROM notification_queue WHERE signal_event_id = ?`, signalID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecRetry(ctx, `DELETE FROM signal_events WHERE id = ?`, signalID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecRetry(ctx, `UPDATE status_history SET signal_emitted = 0 WHERE id = ?`, entry.ID); err != nil {
		t.Fatal(err)
	}

	reconciler := casework.NewReconciler(engine, time.Minute, nil)
	replayed, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if replayed != 1 {
		t.Fatalf("replayed = %d, want 1", replayed)
	}

	event, err := signals.Get(ctx, signalID)
	if err != nil || event == nil {
		t.Fatalf("replayed signal missing: %v %v", event, err)
	}
	if event.Source != "reconciler" {
		t.Fatalf("source = %s", event.Source)
	}

	history, err = engine.Store().History(ctx, kase.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !history[0].SignalEmitted {
		t.Fatal("emitted flag not restored")
	}

	// A second pass finds nothing to do.
	replayed, err = reconciler.Reconcile(ctx)
	if err != nil || replayed != 0 {
		t.Fatalf("second pass: replayed=%d err=%v", replayed, err)
	}
}

func TestReconcileIsIdempotentAgainstExistingSignal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	engine := casework.NewEngine(db, cfg.Readiness, nil)
	signals := signal.NewStore(db)
	ctx := context.Background()

	kase, err := engine.Store().CreateCase(ctx, "idempotent")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.AttemptTransition(ctx, kase.ID, casework.StatusInReview, "tester", ""); err != nil {
		t.Fatal(err)
	}

	history, err := engine.Store().History(ctx, kase.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %v %v", history, err)
	}
	// The append landed but the flag flip was lost.
	if _, err := db.ExecRetry(ctx, `UPDATE status_history SET signal_emitted = 0 WHERE id = ?`, history[0].ID); err != nil {
		t.Fatal(err)
	}

	reconciler := casework.NewReconciler(engine, time.Minute, nil)
	if _, err := reconciler.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := signals.List(ctx, signal.Filter{CaseID: kase.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("replay duplicated the signal: %d events", len(events))
	}
}
