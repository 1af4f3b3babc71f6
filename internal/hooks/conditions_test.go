package hooks

import (
	"errors"
	"testing"

	"casework/internal/services"
)

func TestParseConditionEmpty(t *testing.T) {
	cond, err := ParseCondition("")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cond != nil {
		t.Fatal("empty document should parse to nil condition")
	}
	ok, err := cond.Evaluate(map[string]any{"anything": 1})
	if err != nil || !ok {
		t.Fatalf("nil condition must match: ok=%v err=%v", ok, err)
	}
}

func TestParseConditionRejectsUnknownOperator(t *testing.T) {
	_, err := ParseCondition(`{"op":"regex","field":"x","value":".*"}`)
	if err == nil || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParseConditionRejectsEmptyGroup(t *testing.T) {
	_, err := ParseCondition(`{"op":"and"}`)
	if err == nil {
		t.Fatal("expected error for empty group")
	}
}

func TestEvaluateTree(t *testing.T) {
	raw := `{
		"op": "and",
		"children": [
			{"op": "eq", "field": "product", "value": "booster"},
			{"op": "or", "children": [
				{"op": "gt", "field": "budget", "value": 50000},
				{"op": "contains", "field": "notes", "value": "urgent"}
			]}
		]
	}`
	cond, err := ParseCondition(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cases := []struct {
		name   string
		fields map[string]any
		want   bool
	}{
		{"budget branch", map[string]any{"product": "booster", "budget": float64(60000)}, true},
		{"notes branch", map[string]any{"product": "booster", "budget": float64(10), "notes": "URGENT call"}, true},
		{"neither branch", map[string]any{"product": "booster", "budget": float64(10), "notes": "later"}, false},
		{"wrong product", map[string]any{"product": "other", "budget": float64(90000)}, false},
		{"missing fields", map[string]any{}, false},
	}
	for _, tc := range cases {
		got, err := cond.Evaluate(tc.fields)
		if err != nil {
			t.Fatalf("%s: Evaluate failed: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: Evaluate = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEvaluateLooseScalarComparison(t *testing.T) {
	cond, err := ParseCondition(`{"op":"eq","field":"count","value":"5"}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ok, err := cond.Evaluate(map[string]any{"count": float64(5)})
	if err != nil || !ok {
		t.Fatalf("expected numeric string to compare equal: ok=%v err=%v", ok, err)
	}
}

func TestEvaluateNumericPredicateOnNonNumericField(t *testing.T) {
	cond, err := ParseCondition(`{"op":"gt","field":"budget","value":10}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	_, err = cond.Evaluate(map[string]any{"budget": "lots"})
	if err == nil || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEvaluateExistsAndNe(t *testing.T) {
	exists, _ := ParseCondition(`{"op":"exists","field":"agent"}`)
	if ok, _ := exists.Evaluate(map[string]any{"agent": nil}); !ok {
		t.Fatal("exists should match a present key")
	}
	if ok, _ := exists.Evaluate(map[string]any{}); ok {
		t.Fatal("exists should not match a missing key")
	}

	ne, _ := ParseCondition(`{"op":"ne","field":"status","value":"archived"}`)
	if ok, _ := ne.Evaluate(map[string]any{"status": "active"}); !ok {
		t.Fatal("ne should match a differing value")
	}
	if ok, _ := ne.Evaluate(map[string]any{}); !ok {
		t.Fatal("ne should match a missing key")
	}
}
