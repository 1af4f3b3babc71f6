package signal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of domain occurrence an event records.
type Type string

const (
	TypeCaseStatusChanged Type = "CASE_STATUS_CHANGED"
	TypeCaseQuoteReady    Type = "CASE_QUOTE_READY"
	TypeCaseQuoted        Type = "CASE_QUOTED"
	TypeCaseOnHold        Type = "CASE_ON_HOLD"
	TypeCaseCancelled     Type = "CASE_CANCELLED"
	TypeCaseExpired       Type = "CASE_EXPIRED"

	TypeContactUsForm    Type = "CONTACT_US_FORM_SUBMITTED"
	TypeGetEstimateForm  Type = "GET_ESTIMATE_FORM_SUBMITTED"
	TypeGetQualifiedForm Type = "GET_QUALIFIED_FORM_SUBMITTED"
	TypeAffiliateForm    Type = "AFFILIATE_FORM_SUBMITTED"
)

var allTypes = []Type{
	TypeCaseStatusChanged,
	TypeCaseQuoteReady,
	TypeCaseQuoted,
	TypeCaseOnHold,
	TypeCaseCancelled,
	TypeCaseExpired,
	TypeContactUsForm,
	TypeGetEstimateForm,
	TypeGetQualifiedForm,
	TypeAffiliateForm,
}

var typeSet = func() map[Type]struct{} {
	set := make(map[Type]struct{}, len(allTypes))
	for _, t := range allTypes {
		set[t] = struct{}{}
	}
	return set
}()

// AllTypes returns the known signal types.
func AllTypes() []Type {
	cp := make([]Type, len(allTypes))
	copy(cp, allTypes)
	return cp
}

// ParseType converts a string into a known Type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := typeSet[normalized]
	return normalized, ok
}

// Event is an immutable record of a domain occurrence. The id doubles as the
// idempotency key for appends.
type Event struct {
	ID        string
	Type      Type
	CaseID    int64 // zero when the event is not case-scoped
	Payload   string
	EmittedAt time.Time
	EmittedBy string
	Source    string
	Processed bool
}

// DecodedPayload unmarshals the payload into a field map for condition
// evaluation. A missing payload decodes to an empty map.
func (e *Event) DecodedPayload() (map[string]any, error) {
	if strings.TrimSpace(e.Payload) == "" {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &fields); err != nil {
		return nil, fmt.Errorf("decode signal payload: %w", err)
	}
	return fields, nil
}

// EncodePayload marshals a field map for storage on an event.
func EncodePayload(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode signal payload: %w", err)
	}
	return string(raw), nil
}
