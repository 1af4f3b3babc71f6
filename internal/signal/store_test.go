package signal_test

import (
	"context"
	"testing"
	"time"

	"casework/internal/signal"
	"casework/internal/testsupport"
)

func newStore(t *testing.T) *signal.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	return signal.NewStore(db)
}

func TestAppendAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	event := &signal.Event{
		ID:        "sig-1",
		Type:      signal.TypeContactUsForm,
		Payload:   `{"email":"a@x.com"}`,
		EmittedBy: "form-adapter",
		Source:    "contact-us",
	}
	if err := store.Append(ctx, event); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	fetched, err := store.Get(ctx, "sig-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.Type != signal.TypeContactUsForm {
		t.Fatalf("unexpected event: %#v", fetched)
	}
	if fetched.Processed {
		t.Fatal("new event must start unprocessed")
	}

	fields, err := fetched.DecodedPayload()
	if err != nil {
		t.Fatalf("DecodedPayload failed: %v", err)
	}
	if fields["email"] != "a@x.com" {
		t.Fatalf("unexpected payload fields: %#v", fields)
	}
}

func TestAppendDuplicateIsNoOp(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := &signal.Event{ID: "sig-dup", Type: signal.TypeCaseStatusChanged, CaseID: 7}
	if err := store.Append(ctx, first); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	second := &signal.Event{ID: "sig-dup", Type: signal.TypeCaseStatusChanged, CaseID: 7, Payload: `{"other":true}`}
	if err := store.Append(ctx, second); err != nil {
		t.Fatalf("duplicate Append should be a no-op, got %v", err)
	}

	fetched, err := store.Get(ctx, "sig-dup")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Payload != "" {
		t.Fatalf("duplicate append must not overwrite, got payload %q", fetched.Payload)
	}

	unprocessed, err := store.ListUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnprocessed failed: %v", err)
	}
	if len(unprocessed) != 1 {
		t.Fatalf("expected exactly one stored event, got %d", len(unprocessed))
	}
}

func TestAppendRejectsBadEvents(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, nil); err == nil {
		t.Fatal("expected error for nil event")
	}
	if err := store.Append(ctx, &signal.Event{Type: signal.TypeContactUsForm}); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := store.Append(ctx, &signal.Event{ID: "x", Type: signal.Type("BOGUS")}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestMarkProcessed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	event := &signal.Event{ID: "sig-2", Type: signal.TypeGetEstimateForm}
	if err := store.Append(ctx, event); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.MarkProcessed(ctx, "sig-2"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	fetched, err := store.Get(ctx, "sig-2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !fetched.Processed {
		t.Fatal("expected event to be processed")
	}

	unprocessed, err := store.ListUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnprocessed failed: %v", err)
	}
	if len(unprocessed) != 0 {
		t.Fatalf("expected no unprocessed events, got %d", len(unprocessed))
	}

	if err := store.MarkProcessed(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestListFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	events := []*signal.Event{
		{ID: "a", Type: signal.TypeContactUsForm, EmittedAt: base},
		{ID: "b", Type: signal.TypeCaseStatusChanged, CaseID: 3, EmittedAt: base.Add(time.Hour)},
		{ID: "c", Type: signal.TypeCaseStatusChanged, CaseID: 4, EmittedAt: base.Add(2 * time.Hour)},
	}
	for _, ev := range events {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append %s failed: %v", ev.ID, err)
		}
	}
	if err := store.MarkProcessed(ctx, "b"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	byType, err := store.List(ctx, signal.Filter{Type: signal.TypeCaseStatusChanged})
	if err != nil {
		t.Fatalf("List by type failed: %v", err)
	}
	if len(byType) != 2 || byType[0].ID != "c" {
		t.Fatalf("unexpected type-filtered result: %#v", byType)
	}

	unprocessed := false
	processedOnly, err := store.List(ctx, signal.Filter{Processed: &unprocessed})
	if err != nil {
		t.Fatalf("List by processed failed: %v", err)
	}
	if len(processedOnly) != 2 {
		t.Fatalf("expected 2 unprocessed events, got %d", len(processedOnly))
	}

	windowed, err := store.List(ctx, signal.Filter{
		Since: base.Add(30 * time.Minute),
		Until: base.Add(90 * time.Minute),
	})
	if err != nil {
		t.Fatalf("List by window failed: %v", err)
	}
	if len(windowed) != 1 || windowed[0].ID != "b" {
		t.Fatalf("unexpected window result: %#v", windowed)
	}

	paged, err := store.List(ctx, signal.Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List paged failed: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "b" {
		t.Fatalf("unexpected paged result: %#v", paged)
	}

	ids, err := store.IDsForCase(ctx, 3)
	if err != nil {
		t.Fatalf("IDsForCase failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("unexpected case ids: %#v", ids)
	}
}

func TestGetSurfacesCorruptTimestamp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := signal.NewStore(db)
	ctx := context.Background()

	event := &signal.Event{ID: "sig-corrupt", Type: signal.TypeContactUsForm}
	if err := store.Append(ctx, event); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := db.ExecRetry(ctx, `UPDATE signal_events SET emitted_at = 'not-a-time' WHERE id = ?`, "sig-corrupt"); err != nil {
		t.Fatalf("corrupt emitted_at: %v", err)
	}

	if _, err := store.Get(ctx, "sig-corrupt"); err == nil {
		t.Fatal("expected Get to surface the unparseable timestamp")
	}
	if _, err := store.ListUnprocessed(ctx, 10); err == nil {
		t.Fatal("expected ListUnprocessed to surface the unparseable timestamp")
	}
}

func TestParseType(t *testing.T) {
	if parsed, ok := signal.ParseType(" contact_us_form_submitted "); !ok || parsed != signal.TypeContactUsForm {
		t.Fatalf("unexpected parse result: %v %v", parsed, ok)
	}
	if _, ok := signal.ParseType("nope"); ok {
		t.Fatal("expected unknown type to fail parsing")
	}
}
