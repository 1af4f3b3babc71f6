package notifyqueue

import (
	"strings"
	"time"
)

// Status represents the delivery lifecycle of a queue entry. Transitions are
// forward-only: a sent, failed, or cancelled entry never becomes pending
// again except through an explicit operator retry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusSending,
	StatusSent,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus resolves a user-supplied status name.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Terminal reports whether the status ends the entry's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Entry is a persisted delivery obligation for one (signal, hook) pair.
type Entry struct {
	ID                int64
	SignalEventID     string
	HookID            string
	Status            Status
	Channel           string
	ToRecipients      []string
	CCRecipients      []string
	PartialResolution bool
	UnresolvedRoles   []string
	Attempt           int
	MaxRetries        int
	NextAttemptAt     *time.Time
	LeasedBy          string
	LeaseExpiresAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SentAt            *time.Time
	LastError         string
}

// AttemptsExhausted reports whether the entry has used up its retry budget.
func (e *Entry) AttemptsExhausted() bool {
	return e.Attempt >= e.MaxRetries
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Sending   int
	Sent      int
	Failed    int
	Cancelled int
}

// Filter narrows List queries. Zero values mean "no constraint".
type Filter struct {
	Status        Status
	SignalEventID string
	HookID        string
	Limit         int
	Offset        int
}
