package notifyqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casework/internal/services"
	"casework/internal/storage"
)

// Store persists notification queue entries in the shared database.
type Store struct {
	db *storage.DB
}

// NewStore builds a queue store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Enqueue inserts a pending entry for the (signal, hook) pair. The unique
// constraint makes the call idempotent: if an entry for the pair already
// exists, the existing entry is returned unchanged and created is false.
func (s *Store) Enqueue(ctx context.Context, entry Entry) (*Entry, bool, error) {
	if entry.SignalEventID == "" || entry.HookID == "" {
		return nil, false, services.Wrap(services.ErrValidation, "notifyqueue", "enqueue", "signal event id and hook id are required", nil)
	}
	if entry.MaxRetries <= 0 {
		return nil, false, services.Wrap(services.ErrValidation, "notifyqueue", "enqueue", "max retries must be positive", nil)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecRetry(
		ctx,
		`INSERT OR IGNORE INTO notification_queue
            (signal_event_id, hook_id, status, channel, to_recipients, cc_recipients,
             partial_resolution, unresolved_roles, attempt, max_retries,
             next_attempt_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		entry.SignalEventID,
		entry.HookID,
		StatusPending,
		entry.Channel,
		encodeList(entry.ToRecipients),
		encodeList(entry.CCRecipients),
		storage.BoolToInt(entry.PartialResolution),
		encodeList(entry.UnresolvedRoles),
		entry.MaxRetries,
		storage.NullableTime(entry.NextAttemptAt),
		storage.Timestamp(now),
		storage.Timestamp(now),
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue notification: %w", err)
	}

	created, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	stored, err := s.getBySignalAndHook(ctx, entry.SignalEventID, entry.HookID)
	if err != nil {
		return nil, false, err
	}
	return stored, created > 0, nil
}

// GetByID fetches an entry, or nil if it does not exist.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (s *Store) getBySignalAndHook(ctx context.Context, signalEventID, hookID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		selectColumns+` WHERE signal_event_id = ? AND hook_id = ?`,
		signalEventID,
		hookID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "notifyqueue", "lookup", "entry missing after insert", nil)
	}
	return entry, err
}

// Lease claims up to limit due pending entries for the worker, marking them
// sending with a lease that expires after the visibility window. Entries
// whose next_attempt_at lies in the future are not due.
func (s *Store) Lease(ctx context.Context, workerID string, limit int, visibility time.Duration) ([]*Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	expires := storage.Timestamp(now.Add(visibility))
	_, err := s.db.ExecRetry(
		ctx,
		`UPDATE notification_queue
         SET status = ?, leased_by = ?, lease_expires_at = ?, updated_at = ?
         WHERE id IN (
            SELECT id FROM notification_queue
            WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
            ORDER BY id
            LIMIT ?
         )`,
		StatusSending,
		workerID,
		expires,
		storage.Timestamp(now),
		StatusPending,
		storage.Timestamp(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lease entries: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		selectColumns+` WHERE status = ? AND leased_by = ? AND lease_expires_at = ? ORDER BY id`,
		StatusSending,
		workerID,
		expires,
	)
	if err != nil {
		return nil, fmt.Errorf("load leased entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Complete marks a leased entry sent. The worker must still hold the lease;
// a lost lease means another worker reclaimed the entry and this attempt's
// outcome is discarded.
func (s *Store) Complete(ctx context.Context, id int64, workerID string) error {
	now := storage.Timestamp(time.Now().UTC())
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE notification_queue
         SET status = ?, sent_at = ?, updated_at = ?, leased_by = NULL, lease_expires_at = NULL, last_error = NULL
         WHERE id = ? AND status = ? AND leased_by = ?`,
		StatusSent,
		now,
		now,
		id,
		StatusSending,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("complete entry %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return services.Wrap(services.ErrIntegrity, "notifyqueue", "complete", fmt.Sprintf("lease lost for entry %d", id), nil)
	}
	return nil
}

// Fail records a delivery failure. Retryable failures increment the attempt
// counter and return the entry to pending with next_attempt_at pushed out by
// delay, until the retry budget is exhausted; at that point, or for a
// non-retryable failure, the entry moves to failed. The resulting status is
// returned.
func (s *Store) Fail(ctx context.Context, id int64, workerID, message string, delay time.Duration, retryable bool) (Status, error) {
	entry, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", services.Wrap(services.ErrNotFound, "notifyqueue", "fail", fmt.Sprintf("entry %d", id), nil)
	}

	now := time.Now().UTC()
	attempt := entry.Attempt + 1
	next := StatusPending
	if !retryable || attempt >= entry.MaxRetries {
		next = StatusFailed
	}

	var nextAttempt any
	if next == StatusPending {
		due := now.Add(delay)
		nextAttempt = storage.Timestamp(due)
	}

	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE notification_queue
         SET status = ?, attempt = ?, next_attempt_at = ?, last_error = ?,
             leased_by = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND leased_by = ?`,
		next,
		attempt,
		nextAttempt,
		storage.NullableString(message),
		storage.Timestamp(now),
		id,
		StatusSending,
		workerID,
	)
	if err != nil {
		return "", fmt.Errorf("fail entry %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", services.Wrap(services.ErrIntegrity, "notifyqueue", "fail", fmt.Sprintf("lease lost for entry %d", id), nil)
	}
	return next, nil
}

// ReclaimExpired returns sending entries whose lease expired back to
// pending so another worker can pick them up. The attempt counter is left
// alone: a crashed worker's attempt may or may not have reached the
// provider, and double delivery is preferred over silent loss.
func (s *Store) ReclaimExpired(ctx context.Context) (int64, error) {
	now := storage.Timestamp(time.Now().UTC())
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE notification_queue
         SET status = ?, leased_by = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		StatusPending,
		now,
		StatusSending,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// CancelPendingForSignals cancels every pending entry bound to the given
// signal events. Entries already sending, sent, or failed are untouched.
func (s *Store) CancelPendingForSignals(ctx context.Context, signalEventIDs ...string) (int64, error) {
	if len(signalEventIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(signalEventIDs)+3)
	args = append(args, StatusCancelled, storage.Timestamp(time.Now().UTC()), StatusPending)
	for _, id := range signalEventIDs {
		args = append(args, id)
	}
	query := `UPDATE notification_queue
        SET status = ?, updated_at = ?, next_attempt_at = NULL
        WHERE status = ? AND signal_event_id IN (` + storage.MakePlaceholders(len(signalEventIDs)) + `)`
	res, err := s.db.ExecRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cancel pending entries: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed entries back to pending with a fresh retry
// budget. Without ids every failed entry is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := storage.Timestamp(time.Now().UTC())
	if len(ids) == 0 {
		res, err := s.db.ExecRetry(
			ctx,
			`UPDATE notification_queue
            SET status = ?, attempt = 0, next_attempt_at = NULL, last_error = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed entries: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE notification_queue
        SET status = ?, attempt = 0, next_attempt_at = NULL, last_error = NULL, updated_at = ?
        WHERE status = ? AND id IN (` + storage.MakePlaceholders(len(ids)) + `)`
	res, err := s.db.ExecRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected entries: %w", err)
	}
	return res.RowsAffected()
}

// List returns entries matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.SignalEventID != "" {
		query += ` AND signal_event_id = ?`
		args = append(args, filter.SignalEventID)
	}
	if filter.HookID != "" {
		query += ` AND hook_id = ?`
		args = append(args, filter.HookID)
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM notification_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusSending:
			health.Sending += count
		case StatusSent:
			health.Sent += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

const selectColumns = `SELECT id, signal_event_id, hook_id, status, channel,
    to_recipients, cc_recipients, partial_resolution, unresolved_roles,
    attempt, max_retries, next_attempt_at, leased_by, lease_expires_at,
    created_at, updated_at, sent_at, last_error
    FROM notification_queue`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry                   Entry
		toRaw, ccRaw, rolesRaw  sql.NullString
		partial                 int
		nextAt, leaseAt, sentAt sql.NullString
		leasedBy, lastErr       sql.NullString
		createdRaw, updatedRaw  string
	)
	err := row.Scan(
		&entry.ID,
		&entry.SignalEventID,
		&entry.HookID,
		&entry.Status,
		&entry.Channel,
		&toRaw,
		&ccRaw,
		&partial,
		&rolesRaw,
		&entry.Attempt,
		&entry.MaxRetries,
		&nextAt,
		&leasedBy,
		&leaseAt,
		&createdRaw,
		&updatedRaw,
		&sentAt,
		&lastErr,
	)
	if err != nil {
		return nil, err
	}

	entry.PartialResolution = partial != 0
	entry.LeasedBy = leasedBy.String
	entry.LastError = lastErr.String
	if entry.ToRecipients, err = decodeList(toRaw.String); err != nil {
		return nil, fmt.Errorf("decode to recipients for entry %d: %w", entry.ID, err)
	}
	if entry.CCRecipients, err = decodeList(ccRaw.String); err != nil {
		return nil, fmt.Errorf("decode cc recipients for entry %d: %w", entry.ID, err)
	}
	if entry.UnresolvedRoles, err = decodeList(rolesRaw.String); err != nil {
		return nil, fmt.Errorf("decode unresolved roles for entry %d: %w", entry.ID, err)
	}
	if entry.CreatedAt, err = storage.ParseTimestamp(createdRaw); err != nil {
		return nil, err
	}
	if entry.UpdatedAt, err = storage.ParseTimestamp(updatedRaw); err != nil {
		return nil, err
	}
	if entry.NextAttemptAt, err = parseOptionalTime(nextAt); err != nil {
		return nil, err
	}
	if entry.LeaseExpiresAt, err = parseOptionalTime(leaseAt); err != nil {
		return nil, err
	}
	if entry.SentAt, err = parseOptionalTime(sentAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func parseOptionalTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := storage.ParseTimestamp(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func encodeList(values []string) any {
	if len(values) == 0 {
		return nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(encoded)
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
