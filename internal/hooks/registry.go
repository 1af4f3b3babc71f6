package hooks

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"casework/internal/logging"
	"casework/internal/signal"
)

// Snapshot is an immutable view of the enabled hook configuration, indexed
// by signal type. Matchers only ever read snapshots; refreshes swap the
// whole snapshot atomically.
type Snapshot struct {
	byType   map[signal.Type][]Hook
	total    int
	loadedAt time.Time
}

// HooksFor returns the enabled hooks configured for a signal type.
func (s *Snapshot) HooksFor(t signal.Type) []Hook {
	if s == nil {
		return nil
	}
	return s.byType[t]
}

// All returns every hook in the snapshot.
func (s *Snapshot) All() []Hook {
	if s == nil {
		return nil
	}
	out := make([]Hook, 0, s.total)
	for _, group := range s.byType {
		out = append(out, group...)
	}
	return out
}

// Len returns the number of hooks in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.total
}

// LoadedAt reports when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// Registry maintains the current hook snapshot. Refresh replaces the
// snapshot wholesale; concurrent readers keep whichever snapshot they
// already hold.
type Registry struct {
	repo     Repository
	logger   *slog.Logger
	interval time.Duration

	current atomic.Pointer[Snapshot]
	kick    chan struct{}
}

// NewRegistry builds a registry over a repository. The logger may be nil.
func NewRegistry(repo Repository, logger *slog.Logger, refreshInterval time.Duration) *Registry {
	return &Registry{
		repo:     repo,
		logger:   logging.NewComponentLogger(logger, "hook-registry"),
		interval: refreshInterval,
		kick:     make(chan struct{}, 1),
	}
}

// Snapshot returns the current hook snapshot. Before the first refresh it
// returns an empty snapshot rather than nil.
func (r *Registry) Snapshot() *Snapshot {
	if snap := r.current.Load(); snap != nil {
		return snap
	}
	return &Snapshot{byType: map[signal.Type][]Hook{}}
}

// Refresh loads hook configuration and swaps the snapshot. Rows that fail
// parsing are skipped with a configuration warning; they never abort the
// refresh for the remaining hooks.
func (r *Registry) Refresh(ctx context.Context) error {
	rows, err := r.repo.ListHooks(ctx)
	if err != nil {
		return err
	}

	byType := make(map[signal.Type][]Hook)
	total := 0
	for _, row := range rows {
		hook, err := buildHook(row)
		if err != nil {
			r.logger.Warn("skipping malformed hook",
				logging.String(logging.FieldHookID, row.ID),
				logging.String(logging.FieldSignalType, row.SignalType),
				logging.String(logging.FieldEventType, "hook_config_invalid"),
				logging.String(logging.FieldErrorHint, "fix the hook in the admin surface"),
				logging.Error(err),
			)
			continue
		}
		byType[hook.SignalType] = append(byType[hook.SignalType], hook)
		total++
	}

	r.current.Store(&Snapshot{byType: byType, total: total, loadedAt: time.Now().UTC()})
	r.logger.Debug("hook snapshot refreshed", logging.Int("hooks", total))
	return nil
}

// Invalidate requests an immediate refresh from the background loop.
func (r *Registry) Invalidate() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run refreshes the snapshot on the configured interval until the context
// is cancelled. Refresh failures keep the previous snapshot.
func (r *Registry) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("initial hook refresh failed", logging.Error(err))
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("hook refresh failed; keeping previous snapshot", logging.Error(err))
		}
	}
}

func buildHook(row RawHook) (Hook, error) {
	signalType, ok := validSignalType(row.SignalType)
	if !ok {
		return Hook{}, configError("unknown signal type " + row.SignalType)
	}
	channel, ok := ParseChannel(row.Channel)
	if !ok {
		return Hook{}, configError("unknown channel " + row.Channel)
	}
	spec, err := ParseRecipientSpec(row.Recipients)
	if err != nil {
		return Hook{}, err
	}
	if spec.IsEmpty() {
		return Hook{}, configError("hook names no recipients")
	}
	conditions, err := ParseCondition(row.Conditions)
	if err != nil {
		return Hook{}, err
	}

	maxRetries := row.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := row.DeliveryDelay
	if delay < 0 {
		delay = 0
	}
	return Hook{
		ID:            row.ID,
		SignalType:    signalType,
		Enabled:       row.Enabled,
		Channel:       channel,
		Recipients:    spec,
		Conditions:    conditions,
		MaxRetries:    maxRetries,
		DeliveryDelay: delay,
		Priority:      row.Priority,
	}, nil
}
