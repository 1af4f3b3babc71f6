package dispatch_test

import (
	"context"
	"testing"
	"time"

	"casework/internal/dispatch"
	"casework/internal/notifyqueue"
	"casework/internal/services"
	"casework/internal/signal"
	"casework/internal/testsupport"
)

// scriptedProvider fails the first n sends with err, then succeeds.
type scriptedProvider struct {
	failures int
	err      error
	sent     []int64
}

func (p *scriptedProvider) Send(_ context.Context, entry *notifyqueue.Entry) error {
	if p.failures > 0 {
		p.failures--
		return p.err
	}
	p.sent = append(p.sent, entry.ID)
	return nil
}

func newPoolFixture(t *testing.T, provider dispatch.Provider) (*dispatch.WorkerPool, *notifyqueue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Delivery.RetryBaseSeconds = 0 // immediate retries for the tests
	db := testsupport.MustOpenDB(t, cfg)

	signals := signal.NewStore(db)
	err := signals.Append(context.Background(), &signal.Event{
		ID:        "sig-1",
		Type:      signal.TypeContactUsForm,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	queue := notifyqueue.NewStore(db)
	if _, _, err := queue.Enqueue(context.Background(), notifyqueue.Entry{
		SignalEventID: "sig-1",
		HookID:        "hook-1",
		Channel:       "email",
		ToRecipients:  []string{"a@x.com"},
		MaxRetries:    3,
	}); err != nil {
		t.Fatal(err)
	}

	return dispatch.NewWorkerPool(queue, provider, cfg, nil), queue
}

func TestDeliverBatchMarksSent(t *testing.T) {
	provider := &scriptedProvider{}
	pool, queue := newPoolFixture(t, provider)
	ctx := context.Background()

	attempted, err := pool.DeliverBatch(ctx, "w1")
	if err != nil {
		t.Fatalf("DeliverBatch failed: %v", err)
	}
	if attempted != 1 || len(provider.sent) != 1 {
		t.Fatalf("attempted=%d sent=%v", attempted, provider.sent)
	}

	health, err := queue.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if health.Sent != 1 {
		t.Fatalf("health = %#v", health)
	}
}

func TestTransientFailuresRetryUntilExhausted(t *testing.T) {
	provider := &scriptedProvider{
		failures: 10,
		err:      services.Wrap(services.ErrTransient, "dispatch", "send", "provider timeout", nil),
	}
	pool, queue := newPoolFixture(t, provider)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := pool.DeliverBatch(ctx, "w1"); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
	}

	entries, err := queue.List(ctx, notifyqueue.Filter{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries: %v %v", entries, err)
	}
	if entries[0].Status != notifyqueue.StatusFailed {
		t.Fatalf("status = %s, want failed after exhausting retries", entries[0].Status)
	}
	if entries[0].Attempt != 3 {
		t.Fatalf("attempt = %d, want 3", entries[0].Attempt)
	}

	// Exhausted entries are never attempted again.
	attempted, err := pool.DeliverBatch(ctx, "w1")
	if err != nil || attempted != 0 {
		t.Fatalf("attempted=%d err=%v", attempted, err)
	}
}

func TestTransientFailureRecoversOnRetry(t *testing.T) {
	provider := &scriptedProvider{
		failures: 1,
		err:      services.Wrap(services.ErrTransient, "dispatch", "send", "rate limited", nil),
	}
	pool, queue := newPoolFixture(t, provider)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := pool.DeliverBatch(ctx, "w1"); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := queue.List(ctx, notifyqueue.Filter{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries: %v %v", entries, err)
	}
	if entries[0].Status != notifyqueue.StatusSent || entries[0].Attempt != 1 {
		t.Fatalf("unexpected entry: status=%s attempt=%d", entries[0].Status, entries[0].Attempt)
	}
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	provider := &scriptedProvider{
		failures: 10,
		err:      services.Wrap(services.ErrPermanent, "dispatch", "send", "address bounced", nil),
	}
	pool, queue := newPoolFixture(t, provider)
	ctx := context.Background()

	if _, err := pool.DeliverBatch(ctx, "w1"); err != nil {
		t.Fatal(err)
	}

	entries, err := queue.List(ctx, notifyqueue.Filter{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries: %v %v", entries, err)
	}
	if entries[0].Status != notifyqueue.StatusFailed || entries[0].Attempt != 1 {
		t.Fatalf("permanent failure should fail once: status=%s attempt=%d",
			entries[0].Status, entries[0].Attempt)
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	base := 30 * time.Second
	max := 10 * time.Minute

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := dispatch.BackoffDelay(base, max, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: delay = %s, want %s", tc.attempt, got, tc.want)
		}
	}

	if dispatch.BackoffDelay(0, max, 3) != 0 {
		t.Fatal("zero base disables backoff")
	}
}
