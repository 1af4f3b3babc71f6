// Package intake accepts external form submissions and records them as
// signal events so the dispatch pipeline can notify on them.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"casework/internal/logging"
	"casework/internal/services"
	"casework/internal/signal"
)

// FormKind names the public forms that feed the pipeline.
type FormKind string

const (
	FormContactUs    FormKind = "contact_us"
	FormGetEstimate  FormKind = "get_estimate"
	FormGetQualified FormKind = "get_qualified"
	FormAffiliate    FormKind = "affiliate"
)

var formSignalTypes = map[FormKind]signal.Type{
	FormContactUs:    signal.TypeContactUsForm,
	FormGetEstimate:  signal.TypeGetEstimateForm,
	FormGetQualified: signal.TypeGetQualifiedForm,
	FormAffiliate:    signal.TypeAffiliateForm,
}

// ParseFormKind resolves a form name from the public surface.
func ParseFormKind(value string) (FormKind, bool) {
	kind := FormKind(strings.ToLower(strings.TrimSpace(value)))
	_, ok := formSignalTypes[kind]
	return kind, ok
}

// Submission is one filled-in form. SubmissionID is the caller's idempotency
// key: a client retrying a timed-out submit reuses it and no second signal
// is recorded. When absent a fresh one is generated and returned.
type Submission struct {
	Kind         FormKind
	SubmissionID string
	Fields       map[string]any
}

// Service records submissions as signal events.
type Service struct {
	signals *signal.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the intake service. A nil logger disables logging.
func NewService(signals *signal.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		signals: signals,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates the submission and appends its signal event, returning
// the event id. Duplicate submission ids are accepted silently; the append
// is a no-op and the original event stands.
func (s *Service) Submit(ctx context.Context, sub Submission) (string, error) {
	signalType, ok := formSignalTypes[sub.Kind]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "intake", "submit",
			fmt.Sprintf("unknown form kind %q", sub.Kind), nil)
	}

	submissionID := strings.TrimSpace(sub.SubmissionID)
	if submissionID == "" {
		submissionID = uuid.NewString()
	}

	payload, err := signal.EncodePayload(sub.Fields)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "intake", "submit", "unencodable fields", err)
	}

	event := &signal.Event{
		ID:        fmt.Sprintf("form-%s-%s", sub.Kind, submissionID),
		Type:      signalType,
		Payload:   payload,
		EmittedAt: s.now(),
		Source:    "intake",
	}
	if err := s.signals.Append(ctx, event); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "form submission recorded",
		logging.String(logging.FieldSignalID, event.ID),
		logging.String(logging.FieldSignalType, string(signalType)))
	return event.ID, nil
}
