package casework

import (
	"strings"

	"casework/internal/signal"
)

// Status represents the lifecycle position of a case.
type Status string

const (
	StatusNew                  Status = "new"
	StatusInReview             Status = "in_review"
	StatusInformationGathering Status = "information_gathering"
	StatusScopeDefinition      Status = "scope_definition"
	StatusQuoteReady           Status = "quote_ready"
	StatusQuoted               Status = "quoted"
	StatusOnHold               Status = "on_hold"
	StatusCancelled            Status = "cancelled"
	StatusExpired              Status = "expired"
)

var allStatuses = []Status{
	StatusNew,
	StatusInReview,
	StatusInformationGathering,
	StatusScopeDefinition,
	StatusQuoteReady,
	StatusQuoted,
	StatusOnHold,
	StatusCancelled,
	StatusExpired,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// forwardTransitions is the progression backbone of the graph. OnHold,
// Cancelled, and Expired re-entry are handled as rules, not edges.
var forwardTransitions = map[Status][]Status{
	StatusNew:                  {StatusInReview},
	StatusInReview:             {StatusInformationGathering},
	StatusInformationGathering: {StatusScopeDefinition},
	StatusScopeDefinition:      {StatusQuoteReady},
	StatusQuoteReady:           {StatusQuoted},
	StatusQuoted:               {StatusExpired},
	StatusExpired:              {StatusInReview},
}

// activeStatuses are the states a case can be put on hold from.
var activeStatuses = map[Status]struct{}{
	StatusNew:                  {},
	StatusInReview:             {},
	StatusInformationGathering: {},
	StatusScopeDefinition:      {},
	StatusQuoteReady:           {},
	StatusQuoted:               {},
}

// ParseStatus resolves a user-supplied status name.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Terminal reports whether no further transitions leave the status.
func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// Active reports whether the status is a live working state.
func (s Status) Active() bool {
	_, ok := activeStatuses[s]
	return ok
}

// allowedEdge reports whether the transition is structurally legal, before
// guards. held is the status an on-hold case left, and is consulted only
// when resuming from OnHold.
func allowedEdge(from, to, held Status) bool {
	if from == to {
		return false
	}
	switch {
	case to == StatusCancelled:
		return !from.Terminal()
	case to == StatusOnHold:
		return from.Active()
	case from == StatusOnHold:
		// A held case only resumes the status it left.
		return held != "" && to == held
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// signalTypeFor maps a committed transition to the signal it emits.
// Transitions without a dedicated type emit the generic status change.
func signalTypeFor(to Status) signal.Type {
	switch to {
	case StatusQuoteReady:
		return signal.TypeCaseQuoteReady
	case StatusQuoted:
		return signal.TypeCaseQuoted
	case StatusOnHold:
		return signal.TypeCaseOnHold
	case StatusCancelled:
		return signal.TypeCaseCancelled
	case StatusExpired:
		return signal.TypeCaseExpired
	default:
		return signal.TypeCaseStatusChanged
	}
}
