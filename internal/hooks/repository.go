package hooks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"casework/internal/signal"
	"casework/internal/storage"
)

// RawHook is a hook row as stored by the external configuration surface,
// before recipient and condition parsing.
type RawHook struct {
	ID            string
	SignalType    string
	Enabled       bool
	Channel       string
	Recipients    string
	Conditions    string
	MaxRetries    int
	DeliveryDelay time.Duration
	Priority      int
}

// Repository is the read-only feed of hook configuration. Creation and
// editing of hooks happens outside this core.
type Repository interface {
	ListHooks(ctx context.Context) ([]RawHook, error)
}

// SQLRepository reads hooks from the notification_hooks table in the shared
// database. The table is written by the external admin surface only.
type SQLRepository struct {
	db *storage.DB
}

// NewSQLRepository builds a repository over the shared database.
func NewSQLRepository(db *storage.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// ListHooks returns every stored hook row ordered by priority.
func (r *SQLRepository) ListHooks(ctx context.Context) ([]RawHook, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, signal_type, enabled, channel, recipients, conditions,
                max_retries, delivery_delay_seconds, priority
         FROM notification_hooks ORDER BY priority DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list hooks: %w", err)
	}
	defer rows.Close()

	var hooks []RawHook
	for rows.Next() {
		var (
			hook         RawHook
			enabled      int
			recipients   sql.NullString
			conditions   sql.NullString
			delaySeconds int
		)
		if err := rows.Scan(
			&hook.ID,
			&hook.SignalType,
			&enabled,
			&hook.Channel,
			&recipients,
			&conditions,
			&hook.MaxRetries,
			&delaySeconds,
			&hook.Priority,
		); err != nil {
			return nil, err
		}
		hook.Enabled = enabled != 0
		hook.Recipients = recipients.String
		hook.Conditions = conditions.String
		hook.DeliveryDelay = time.Duration(delaySeconds) * time.Second
		hooks = append(hooks, hook)
	}
	return hooks, rows.Err()
}

// SeedHook inserts or replaces a hook row. It exists for tests and local
// bootstrapping; production hook authoring lives in the admin surface.
func (r *SQLRepository) SeedHook(ctx context.Context, hook RawHook) error {
	now := storage.Timestamp(time.Now())
	_, err := r.db.ExecRetry(
		ctx,
		`INSERT OR REPLACE INTO notification_hooks (
            id, signal_type, enabled, channel, recipients, conditions,
            max_retries, delivery_delay_seconds, priority, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hook.ID,
		hook.SignalType,
		storage.BoolToInt(hook.Enabled),
		hook.Channel,
		storage.NullableString(hook.Recipients),
		storage.NullableString(hook.Conditions),
		hook.MaxRetries,
		int(hook.DeliveryDelay/time.Second),
		hook.Priority,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("seed hook: %w", err)
	}
	return nil
}

// StaticRepository serves a fixed hook list. Used in tests.
type StaticRepository struct {
	mu    sync.RWMutex
	hooks []RawHook
}

// NewStaticRepository builds a repository over the provided rows.
func NewStaticRepository(rows ...RawHook) *StaticRepository {
	return &StaticRepository{hooks: rows}
}

// ListHooks returns the configured rows.
func (r *StaticRepository) ListHooks(context.Context) ([]RawHook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]RawHook, len(r.hooks))
	copy(cp, r.hooks)
	return cp, nil
}

// Replace swaps the stored rows.
func (r *StaticRepository) Replace(rows ...RawHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = rows
}

// validSignalType reports whether a raw row references a known signal type.
func validSignalType(value string) (signal.Type, bool) {
	return signal.ParseType(value)
}
