// Package projections is the read side of the pipeline: paginated views
// over signals, queue entries, and cases for the CLI and the HTTP API. It
// never mutates state.
package projections

import (
	"context"
	"fmt"
	"time"

	"casework/internal/casework"
	"casework/internal/notifyqueue"
	"casework/internal/services"
	"casework/internal/signal"
	"casework/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Service aggregates the read queries.
type Service struct {
	db      *storage.DB
	signals *signal.Store
	queue   *notifyqueue.Store
	cases   *casework.Store
}

// NewService builds the projection layer over the shared database.
func NewService(db *storage.DB) *Service {
	return &Service{
		db:      db,
		signals: signal.NewStore(db),
		queue:   notifyqueue.NewStore(db),
		cases:   casework.NewStore(db),
	}
}

// Page carries shared pagination input. Page numbers start at 1.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() (limit, offset int) {
	size := p.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	number := p.Number
	if number <= 0 {
		number = 1
	}
	return size, (number - 1) * size
}

// SignalQuery filters the signal listing.
type SignalQuery struct {
	Type      string
	Processed *bool
	Since     time.Time
	Until     time.Time
	Page      Page
}

// SignalView is the external shape of a signal event.
type SignalView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CaseID    int64     `json:"caseId,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	EmittedAt time.Time `json:"emittedAt"`
	EmittedBy string    `json:"emittedBy,omitempty"`
	Source    string    `json:"source,omitempty"`
	Processed bool      `json:"processed"`
}

// Signals lists signal events, newest first.
func (s *Service) Signals(ctx context.Context, query SignalQuery) ([]SignalView, error) {
	filter := signal.Filter{
		Processed: query.Processed,
		Since:     query.Since,
		Until:     query.Until,
	}
	if query.Type != "" {
		parsed, ok := signal.ParseType(query.Type)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "projections", "signals",
				fmt.Sprintf("unknown signal type %q", query.Type), nil)
		}
		filter.Type = parsed
	}
	filter.Limit, filter.Offset = query.Page.normalize()

	events, err := s.signals.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]SignalView, 0, len(events))
	for _, event := range events {
		views = append(views, SignalView{
			ID:        event.ID,
			Type:      string(event.Type),
			CaseID:    event.CaseID,
			Payload:   event.Payload,
			EmittedAt: event.EmittedAt,
			EmittedBy: event.EmittedBy,
			Source:    event.Source,
			Processed: event.Processed,
		})
	}
	return views, nil
}

// QueueQuery filters the queue listing.
type QueueQuery struct {
	Status        string
	SignalEventID string
	HookID        string
	Page          Page
}

// QueueEntryView is the external shape of a queue entry.
type QueueEntryView struct {
	ID                int64      `json:"id"`
	SignalEventID     string     `json:"signalEventId"`
	HookID            string     `json:"hookId"`
	Status            string     `json:"status"`
	Channel           string     `json:"channel"`
	To                []string   `json:"to,omitempty"`
	CC                []string   `json:"cc,omitempty"`
	PartialResolution bool       `json:"partialResolution,omitempty"`
	UnresolvedRoles   []string   `json:"unresolvedRoles,omitempty"`
	Attempt           int        `json:"attempt"`
	MaxRetries        int        `json:"maxRetries"`
	NextAttemptAt     *time.Time `json:"nextAttemptAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

// QueueEntries lists notification queue entries, newest first.
func (s *Service) QueueEntries(ctx context.Context, query QueueQuery) ([]QueueEntryView, error) {
	filter := notifyqueue.Filter{
		SignalEventID: query.SignalEventID,
		HookID:        query.HookID,
	}
	if query.Status != "" {
		status, ok := notifyqueue.ParseStatus(query.Status)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "projections", "queue",
				fmt.Sprintf("unknown queue status %q", query.Status), nil)
		}
		filter.Status = status
	}
	filter.Limit, filter.Offset = query.Page.normalize()

	entries, err := s.queue.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]QueueEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, QueueEntryView{
			ID:                entry.ID,
			SignalEventID:     entry.SignalEventID,
			HookID:            entry.HookID,
			Status:            string(entry.Status),
			Channel:           entry.Channel,
			To:                entry.ToRecipients,
			CC:                entry.CCRecipients,
			PartialResolution: entry.PartialResolution,
			UnresolvedRoles:   entry.UnresolvedRoles,
			Attempt:           entry.Attempt,
			MaxRetries:        entry.MaxRetries,
			NextAttemptAt:     entry.NextAttemptAt,
			CreatedAt:         entry.CreatedAt,
			SentAt:            entry.SentAt,
			LastError:         entry.LastError,
		})
	}
	return views, nil
}

// TransitionView is one history row in the case overview.
type TransitionView struct {
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	ChangedBy  string    `json:"changedBy"`
	ChangedAt  time.Time `json:"changedAt"`
	Reason     string    `json:"reason,omitempty"`
}

// CaseOverview is the readiness-and-history view of one case.
type CaseOverview struct {
	ID                    int64            `json:"id"`
	Title                 string           `json:"title,omitempty"`
	Status                string           `json:"status"`
	HeldStatus            string           `json:"heldStatus,omitempty"`
	ReadinessScore        int              `json:"readinessScore"`
	InfoGatheringStatus   string           `json:"infoGatheringStatus"`
	ScopeDefinitionStatus string           `json:"scopeDefinitionStatus"`
	MissingInformation    []string         `json:"missingInformation,omitempty"`
	LastContactAt         *time.Time       `json:"lastContactAt,omitempty"`
	History               []TransitionView `json:"history"`
}

// Case returns the overview for one case, or a not-found error.
func (s *Service) Case(ctx context.Context, caseID int64) (*CaseOverview, error) {
	kase, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if kase == nil {
		return nil, services.Wrap(services.ErrNotFound, "projections", "case", fmt.Sprintf("case %d", caseID), nil)
	}
	history, err := s.cases.History(ctx, caseID)
	if err != nil {
		return nil, err
	}

	overview := &CaseOverview{
		ID:                    kase.ID,
		Title:                 kase.Title,
		Status:                string(kase.Status),
		HeldStatus:            string(kase.HeldStatus),
		ReadinessScore:        kase.ReadinessScore,
		InfoGatheringStatus:   string(kase.InfoGatheringStatus),
		ScopeDefinitionStatus: string(kase.ScopeDefinitionStatus),
		MissingInformation:    kase.MissingInformation,
		LastContactAt:         kase.LastContactAt,
		History:               make([]TransitionView, 0, len(history)),
	}
	for _, entry := range history {
		overview.History = append(overview.History, TransitionView{
			FromStatus: string(entry.FromStatus),
			ToStatus:   string(entry.ToStatus),
			ChangedBy:  entry.ChangedBy,
			ChangedAt:  entry.ChangedAt,
			Reason:     entry.Reason,
		})
	}
	return overview, nil
}

// HealthView summarizes pipeline state for monitoring.
type HealthView struct {
	Database           bool `json:"database"`
	UnprocessedSignals int  `json:"unprocessedSignals"`
	QueuePending       int  `json:"queuePending"`
	QueueSending       int  `json:"queueSending"`
	QueueSent          int  `json:"queueSent"`
	QueueFailed        int  `json:"queueFailed"`
	QueueCancelled     int  `json:"queueCancelled"`
}

// Health reports store reachability and pipeline backlog counts.
func (s *Service) Health(ctx context.Context) (HealthView, error) {
	view := HealthView{}
	if err := s.db.Ping(ctx); err != nil {
		return view, err
	}
	view.Database = true

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM signal_events WHERE processed = 0`)
	if err := row.Scan(&view.UnprocessedSignals); err != nil {
		return view, err
	}

	health, err := s.queue.Health(ctx)
	if err != nil {
		return view, err
	}
	view.QueuePending = health.Pending
	view.QueueSending = health.Sending
	view.QueueSent = health.Sent
	view.QueueFailed = health.Failed
	view.QueueCancelled = health.Cancelled
	return view, nil
}
