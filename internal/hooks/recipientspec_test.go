package hooks

import (
	"errors"
	"reflect"
	"testing"

	"casework/internal/services"
)

func TestParseRecipientSpecBareList(t *testing.T) {
	spec, err := ParseRecipientSpec("a@x.com; b@x.com,role:project_manager")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(spec.ToAddresses, []string{"a@x.com", "b@x.com"}) {
		t.Fatalf("unexpected addresses: %#v", spec.ToAddresses)
	}
	if !reflect.DeepEqual(spec.ToRoles, []string{"project_manager"}) {
		t.Fatalf("unexpected roles: %#v", spec.ToRoles)
	}
}

func TestParseRecipientSpecObjectWithArrays(t *testing.T) {
	raw := `{"to":["a@x.com","role:ae"],"cc":["c@x.com"],"toRoles":["pm"],"ccRoles":["role:admin"]}`
	spec, err := ParseRecipientSpec(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(spec.ToAddresses, []string{"a@x.com"}) {
		t.Fatalf("unexpected to addresses: %#v", spec.ToAddresses)
	}
	if !reflect.DeepEqual(spec.ToRoles, []string{"ae", "pm"}) {
		t.Fatalf("unexpected to roles: %#v", spec.ToRoles)
	}
	if !reflect.DeepEqual(spec.CCAddresses, []string{"c@x.com"}) {
		t.Fatalf("unexpected cc addresses: %#v", spec.CCAddresses)
	}
	if !reflect.DeepEqual(spec.CCRoles, []string{"admin"}) {
		t.Fatalf("unexpected cc roles: %#v", spec.CCRoles)
	}
}

func TestParseRecipientSpecStringFields(t *testing.T) {
	raw := `{"to":"a@x.com, b@x.com","cc":"c@x.com"}`
	spec, err := ParseRecipientSpec(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(spec.ToAddresses) != 2 || len(spec.CCAddresses) != 1 {
		t.Fatalf("unexpected spec: %#v", spec)
	}
}

func TestParseRecipientSpecDoubleEncodedArray(t *testing.T) {
	raw := `{"to":"[\"a@x.com\",\"b@x.com\"]"}`
	spec, err := ParseRecipientSpec(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(spec.ToAddresses, []string{"a@x.com", "b@x.com"}) {
		t.Fatalf("unexpected addresses: %#v", spec.ToAddresses)
	}
}

func TestParseRecipientSpecDeduplicatesCaseInsensitively(t *testing.T) {
	raw := `{"to":["A@X.com","a@x.com","b@x.com"]}`
	spec, err := ParseRecipientSpec(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(spec.ToAddresses) != 2 {
		t.Fatalf("expected 2 deduplicated addresses, got %#v", spec.ToAddresses)
	}
}

func TestParseRecipientSpecEmpty(t *testing.T) {
	spec, err := ParseRecipientSpec("  ")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !spec.IsEmpty() {
		t.Fatalf("expected empty spec, got %#v", spec)
	}
}

func TestParseRecipientSpecMalformedObject(t *testing.T) {
	_, err := ParseRecipientSpec(`{"to": [not json`)
	if err == nil {
		t.Fatal("expected error for malformed spec")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
