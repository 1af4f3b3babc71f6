package projections_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"casework/internal/casework"
	"casework/internal/notifyqueue"
	"casework/internal/projections"
	"casework/internal/services"
	"casework/internal/signal"
	"casework/internal/storage"
	"casework/internal/testsupport"
)

func seed(t *testing.T) (*projections.Service, *storage.DB, int64) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	ctx := context.Background()

	engine := casework.NewEngine(db, cfg.Readiness, nil)
	kase, err := engine.Store().CreateCase(ctx, "projection case")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.AttemptTransition(ctx, kase.ID, casework.StatusInReview, "tester", "kickoff"); err != nil {
		t.Fatal(err)
	}

	signals := signal.NewStore(db)
	if err := signals.Append(ctx, &signal.Event{
		ID:        "sig-form-1",
		Type:      signal.TypeContactUsForm,
		EmittedAt: time.Now().UTC(),
		Source:    "intake",
	}); err != nil {
		t.Fatal(err)
	}

	queue := notifyqueue.NewStore(db)
	if _, _, err := queue.Enqueue(ctx, notifyqueue.Entry{
		SignalEventID: "sig-form-1",
		HookID:        "hook-1",
		Channel:       "email",
		ToRecipients:  []string{"a@x.com"},
		MaxRetries:    3,
	}); err != nil {
		t.Fatal(err)
	}

	return projections.NewService(db), db, kase.ID
}

func TestSignalsFilterByType(t *testing.T) {
	service, _, _ := seed(t)
	ctx := context.Background()

	views, err := service.Signals(ctx, projections.SignalQuery{Type: "CONTACT_US_FORM_SUBMITTED"})
	if err != nil {
		t.Fatalf("Signals failed: %v", err)
	}
	if len(views) != 1 || views[0].ID != "sig-form-1" {
		t.Fatalf("views = %#v", views)
	}

	_, err = service.Signals(ctx, projections.SignalQuery{Type: "NOT_A_TYPE"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown type should be rejected, got %v", err)
	}
}

func TestSignalsPagination(t *testing.T) {
	service, db, _ := seed(t)
	ctx := context.Background()
	signals := signal.NewStore(db)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := signals.Append(ctx, &signal.Event{
			ID:        "sig-page-" + string(rune('a'+i)),
			Type:      signal.TypeGetEstimateForm,
			EmittedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := service.Signals(ctx, projections.SignalQuery{
		Type: "GET_ESTIMATE_FORM_SUBMITTED",
		Page: projections.Page{Number: 1, Size: 2},
	})
	if err != nil || len(first) != 2 {
		t.Fatalf("first page: %v %v", first, err)
	}
	second, err := service.Signals(ctx, projections.SignalQuery{
		Type: "GET_ESTIMATE_FORM_SUBMITTED",
		Page: projections.Page{Number: 2, Size: 2},
	})
	if err != nil || len(second) != 2 {
		t.Fatalf("second page: %v %v", second, err)
	}
	if first[0].ID == second[0].ID {
		t.Fatal("pages overlap")
	}
}

func TestQueueEntriesFilterByStatus(t *testing.T) {
	service, _, _ := seed(t)
	ctx := context.Background()

	views, err := service.QueueEntries(ctx, projections.QueueQuery{Status: "pending"})
	if err != nil || len(views) != 1 {
		t.Fatalf("pending entries: %v %v", views, err)
	}
	if views[0].HookID != "hook-1" || views[0].To[0] != "a@x.com" {
		t.Fatalf("view = %#v", views[0])
	}

	views, err = service.QueueEntries(ctx, projections.QueueQuery{Status: "failed"})
	if err != nil || len(views) != 0 {
		t.Fatalf("failed entries: %v %v", views, err)
	}

	_, err = service.QueueEntries(ctx, projections.QueueQuery{Status: "bogus"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown status should be rejected, got %v", err)
	}
}

func TestCaseOverviewIncludesHistory(t *testing.T) {
	service, _, caseID := seed(t)
	ctx := context.Background()

	overview, err := service.Case(ctx, caseID)
	if err != nil {
		t.Fatalf("Case failed: %v", err)
	}
	if overview.Status != "in_review" {
		t.Fatalf("status = %s", overview.Status)
	}
	if len(overview.History) != 1 || overview.History[0].Reason != "kickoff" {
		t.Fatalf("history = %#v", overview.History)
	}

	_, err = service.Case(ctx, caseID+100)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing case should 404, got %v", err)
	}
}

func TestHealthCountsBacklog(t *testing.T) {
	service, _, _ := seed(t)

	view, err := service.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !view.Database {
		t.Fatal("database should be reachable")
	}
	// The form signal is unprocessed; the transition signal was never
	// dispatched either.
	if view.UnprocessedSignals != 2 {
		t.Fatalf("unprocessed = %d, want 2", view.UnprocessedSignals)
	}
	if view.QueuePending != 1 {
		t.Fatalf("pending = %d, want 1", view.QueuePending)
	}
}
