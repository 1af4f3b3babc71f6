package signal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"casework/internal/storage"
)

// Store persists signal events in the shared casework database.
type Store struct {
	db *storage.DB
}

// NewStore builds a signal store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Append inserts an event. A re-append with an id that already exists is a
// no-op, not an error, so at-least-once emission from the workflow engine's
// recovery path stays safe.
func (s *Store) Append(ctx context.Context, event *Event) error {
	if event == nil {
		return errors.New("event is nil")
	}
	if strings.TrimSpace(event.ID) == "" {
		return errors.New("event id must not be empty")
	}
	if _, ok := typeSet[event.Type]; !ok {
		return fmt.Errorf("unknown signal type %q", event.Type)
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	var caseID any
	if event.CaseID > 0 {
		caseID = event.CaseID
	}
	_, err := s.db.ExecRetry(
		ctx,
		`INSERT OR IGNORE INTO signal_events (
            id, signal_type, case_id, payload, emitted_at, emitted_by, source, processed
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		event.ID,
		event.Type,
		caseID,
		storage.NullableString(event.Payload),
		storage.Timestamp(event.EmittedAt),
		storage.NullableString(event.EmittedBy),
		storage.NullableString(event.Source),
	)
	if err != nil {
		return fmt.Errorf("append signal event: %w", err)
	}
	return nil
}

// MarkProcessed flips the processed flag once dispatch has produced a queue
// entry for every matching hook.
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE signal_events SET processed = 1 WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark signal processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("signal event %s not found", id)
	}
	return nil
}

// Get fetches an event by id. A missing event returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM signal_events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get signal event: %w", err)
	}
	return event, nil
}

// ListUnprocessed returns unprocessed events oldest first.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+eventColumns+` FROM signal_events WHERE processed = 0 ORDER BY emitted_at, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed signals: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type      Type
	CaseID    int64
	Processed *bool
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// List returns events matching the filter, newest first, paginated.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM signal_events`
	var clauses []string
	var args []any

	if filter.Type != "" {
		clauses = append(clauses, "signal_type = ?")
		args = append(args, filter.Type)
	}
	if filter.CaseID > 0 {
		clauses = append(clauses, "case_id = ?")
		args = append(args, filter.CaseID)
	}
	if filter.Processed != nil {
		clauses = append(clauses, "processed = ?")
		args = append(args, storage.BoolToInt(*filter.Processed))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "emitted_at >= ?")
		args = append(args, storage.Timestamp(filter.Since))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "emitted_at < ?")
		args = append(args, storage.Timestamp(filter.Until))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY emitted_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signal events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// IDsForCase returns the ids of all events emitted for a case.
func (s *Store) IDsForCase(ctx context.Context, caseID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM signal_events WHERE case_id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case signal ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const eventColumns = "id, signal_type, case_id, payload, emitted_at, emitted_by, source, processed"

func scanEvent(scanner interface{ Scan(dest ...any) error }) (*Event, error) {
	var (
		id        string
		typeStr   string
		caseID    sql.NullInt64
		payload   sql.NullString
		emittedAt sql.NullString
		emittedBy sql.NullString
		source    sql.NullString
		processed int
	)
	if err := scanner.Scan(&id, &typeStr, &caseID, &payload, &emittedAt, &emittedBy, &source, &processed); err != nil {
		return nil, err
	}

	event := &Event{
		ID:        id,
		Type:      Type(typeStr),
		CaseID:    caseID.Int64,
		Payload:   payload.String,
		EmittedBy: emittedBy.String,
		Source:    source.String,
		Processed: processed != 0,
	}
	parsed, err := storage.ParseTimestamp(emittedAt.String)
	if err != nil {
		return nil, err
	}
	event.EmittedAt = parsed
	return event, nil
}

func collectEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
