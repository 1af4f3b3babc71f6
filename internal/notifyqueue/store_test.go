package notifyqueue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"casework/internal/notifyqueue"
	"casework/internal/signal"
	"casework/internal/testsupport"
)

func newQueueStore(t *testing.T) (*notifyqueue.Store, *signal.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	return notifyqueue.NewStore(db), signal.NewStore(db)
}

func appendSignal(t *testing.T, signals *signal.Store, id string) {
	t.Helper()
	err := signals.Append(context.Background(), &signal.Event{
		ID:        id,
		Type:      signal.TypeContactUsForm,
		Payload:   `{"email":"a@x.com"}`,
		EmittedAt: time.Now().UTC(),
		Source:    "test",
	})
	if err != nil {
		t.Fatalf("append signal %s: %v", id, err)
	}
}

func pendingEntry(signalID, hookID string) notifyqueue.Entry {
	return notifyqueue.Entry{
		SignalEventID: signalID,
		HookID:        hookID,
		Channel:       "email",
		ToRecipients:  []string{"a@x.com"},
		MaxRetries:    3,
	}
}

func TestEnqueueIsIdempotentPerSignalAndHook(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")

	first, created, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1"))
	if err != nil {
		t.Fatalf("first Enqueue failed: %v", err)
	}
	if !created {
		t.Fatal("first enqueue should create the entry")
	}

	second, created, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1"))
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if created {
		t.Fatal("second enqueue must not create a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same entry, got %d and %d", first.ID, second.ID)
	}

	_, created, err = store.Enqueue(ctx, pendingEntry("sig-1", "hook-2"))
	if err != nil || !created {
		t.Fatalf("different hook should create a new entry: created=%v err=%v", created, err)
	}
}

func TestLeaseClaimsOnlyDueEntries(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	appendSignal(t, signals, "sig-2")

	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}
	delayed := pendingEntry("sig-2", "hook-1")
	future := time.Now().UTC().Add(time.Hour)
	delayed.NextAttemptAt = &future
	if _, _, err := store.Enqueue(ctx, delayed); err != nil {
		t.Fatal(err)
	}

	leased, err := store.Lease(ctx, "worker-1", 10, time.Minute)
	if err != nil {
		t.Fatalf("Lease failed: %v", err)
	}
	if len(leased) != 1 || leased[0].SignalEventID != "sig-1" {
		t.Fatalf("expected only the due entry, got %#v", leased)
	}
	if leased[0].Status != notifyqueue.StatusSending || leased[0].LeasedBy != "worker-1" {
		t.Fatalf("leased entry not marked sending: %#v", leased[0])
	}

	// A second worker sees nothing while the lease holds.
	other, err := store.Lease(ctx, "worker-2", 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("entry leased twice: %#v", other)
	}
}

func TestCompleteRequiresHeldLease(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}
	leased, err := store.Lease(ctx, "worker-1", 1, time.Minute)
	if err != nil || len(leased) != 1 {
		t.Fatalf("lease: %v %v", leased, err)
	}
	id := leased[0].ID

	if err := store.Complete(ctx, id, "worker-2"); err == nil {
		t.Fatal("completion by a non-holder must fail")
	}
	if err := store.Complete(ctx, id, "worker-1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	entry, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != notifyqueue.StatusSent || entry.SentAt == nil {
		t.Fatalf("entry not marked sent: %#v", entry)
	}
}

func TestFailExhaustsRetryBudget(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}

	var last notifyqueue.Status
	for attempt := 1; attempt <= 3; attempt++ {
		leased, err := store.Lease(ctx, "worker-1", 1, time.Minute)
		if err != nil || len(leased) != 1 {
			t.Fatalf("attempt %d lease: %v %v", attempt, leased, err)
		}
		last, err = store.Fail(ctx, leased[0].ID, "worker-1",
			fmt.Sprintf("provider timeout on attempt %d", attempt), 0, true)
		if err != nil {
			t.Fatalf("attempt %d Fail: %v", attempt, err)
		}
	}
	if last != notifyqueue.StatusFailed {
		t.Fatalf("entry should be failed after three attempts, got %s", last)
	}

	entries, err := store.List(ctx, notifyqueue.Filter{Status: notifyqueue.StatusFailed})
	if err != nil || len(entries) != 1 {
		t.Fatalf("failed list: %v %v", entries, err)
	}
	if entries[0].Attempt != 3 {
		t.Fatalf("attempt counter = %d, want 3", entries[0].Attempt)
	}
	if entries[0].LastError == "" {
		t.Fatal("last error should be recorded")
	}
}

func TestFailNonRetryableIsImmediatelyTerminal(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}
	leased, err := store.Lease(ctx, "worker-1", 1, time.Minute)
	if err != nil || len(leased) != 1 {
		t.Fatalf("lease: %v %v", leased, err)
	}

	status, err := store.Fail(ctx, leased[0].ID, "worker-1", "recipient address rejected", 0, false)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if status != notifyqueue.StatusFailed {
		t.Fatalf("non-retryable failure should be terminal, got %s", status)
	}
}

func TestFailSchedulesRetryDelay(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}
	leased, err := store.Lease(ctx, "worker-1", 1, time.Minute)
	if err != nil || len(leased) != 1 {
		t.Fatalf("lease: %v %v", leased, err)
	}

	status, err := store.Fail(ctx, leased[0].ID, "worker-1", "rate limited", time.Hour, true)
	if err != nil || status != notifyqueue.StatusPending {
		t.Fatalf("Fail: status=%s err=%v", status, err)
	}

	// Not due yet, so no worker can claim it.
	again, err := store.Lease(ctx, "worker-1", 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("delayed entry leased early: %#v", again)
	}
}

func TestReclaimExpiredLeases(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}

	leased, err := store.Lease(ctx, "worker-1", 1, -time.Second)
	if err != nil || len(leased) != 1 {
		t.Fatalf("lease: %v %v", leased, err)
	}

	reclaimed, err := store.ReclaimExpired(ctx)
	if err != nil {
		t.Fatalf("ReclaimExpired failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	again, err := store.Lease(ctx, "worker-2", 1, time.Minute)
	if err != nil || len(again) != 1 {
		t.Fatalf("reclaimed entry not leasable: %v %v", again, err)
	}
	if again[0].LeasedBy != "worker-2" {
		t.Fatalf("lease holder = %s", again[0].LeasedBy)
	}
}

func TestCancelPendingForSignals(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	appendSignal(t, signals, "sig-2")
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-2", "hook-1")); err != nil {
		t.Fatal(err)
	}

	cancelled, err := store.CancelPendingForSignals(ctx, "sig-1")
	if err != nil {
		t.Fatalf("CancelPendingForSignals failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", cancelled)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if health.Cancelled != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}

func TestRetryFailedResetsBudget(t *testing.T) {
	store, signals := newQueueStore(t)
	ctx := context.Background()
	appendSignal(t, signals, "sig-1")
	if _, _, err := store.Enqueue(ctx, pendingEntry("sig-1", "hook-1")); err != nil {
		t.Fatal(err)
	}
	leased, err := store.Lease(ctx, "worker-1", 1, time.Minute)
	if err != nil || len(leased) != 1 {
		t.Fatalf("lease: %v %v", leased, err)
	}
	if _, err := store.Fail(ctx, leased[0].ID, "worker-1", "bounced", 0, false); err != nil {
		t.Fatal(err)
	}

	retried, err := store.RetryFailed(ctx)
	if err != nil || retried != 1 {
		t.Fatalf("RetryFailed: %d %v", retried, err)
	}

	entry, err := store.GetByID(ctx, leased[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != notifyqueue.StatusPending || entry.Attempt != 0 || entry.LastError != "" {
		t.Fatalf("retry did not reset the entry: %#v", entry)
	}
}
