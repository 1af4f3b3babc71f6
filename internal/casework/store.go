package casework

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

// Store persists cases, their transition history, and checklist items in
// the shared database.
type Store struct {
	db *storage.DB
}

// NewStore builds a case store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// CreateCase inserts a new case in status New.
func (s *Store) CreateCase(ctx context.Context, title string) (*Case, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecRetry(
		ctx,
		`INSERT INTO cases (title, status, info_gathering_status, scope_definition_status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		title,
		StatusNew,
		ChecklistPending,
		ChecklistPending,
		storage.Timestamp(now),
		storage.Timestamp(now),
	)
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetCase(ctx, id)
}

// GetCase fetches a case, or nil if it does not exist.
func (s *Store) GetCase(ctx context.Context, id int64) (*Case, error) {
	row := s.db.QueryRowContext(ctx, selectCaseColumns+` WHERE id = ?`, id)
	kase, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return kase, err
}

// ListCases returns cases newest first, optionally filtered by status.
func (s *Store) ListCases(ctx context.Context, status Status, limit, offset int) ([]*Case, error) {
	query := selectCaseColumns
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			query += ` OFFSET ?`
			args = append(args, offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []*Case
	for rows.Next() {
		kase, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, kase)
	}
	return cases, rows.Err()
}

// History returns the case's transitions, oldest first.
func (s *Store) History(ctx context.Context, caseID int64) ([]*StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, case_id, from_status, to_status, changed_by, changed_at, reason, signal_emitted
         FROM status_history WHERE case_id = ? ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("case history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// UnemittedHistory returns history entries whose transition signal was never
// durably appended, oldest first. Input to the reconciler.
func (s *Store) UnemittedHistory(ctx context.Context, limit int) ([]*StatusHistoryEntry, error) {
	query := `SELECT id, case_id, from_status, to_status, changed_by, changed_at, reason, signal_emitted
        FROM status_history WHERE signal_emitted = 0 ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unemitted history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// MarkSignalEmitted flips the history entry's emission flag after its signal
// event is durably stored.
func (s *Store) MarkSignalEmitted(ctx context.Context, historyID int64) error {
	_, err := s.db.ExecRetry(
		ctx,
		`UPDATE status_history SET signal_emitted = 1 WHERE id = ?`,
		historyID,
	)
	if err != nil {
		return fmt.Errorf("mark signal emitted for entry %d: %w", historyID, err)
	}
	return nil
}

// applyTransition writes the new status and appends the history entry in one
// transaction, returning the history entry id. The caller holds the case
// lock and has already validated the transition.
func (s *Store) applyTransition(ctx context.Context, kase *Case, to Status, actor, reason string) (int64, error) {
	now := time.Now().UTC()

	held := any(nil)
	switch {
	case to == StatusOnHold:
		held = string(kase.Status)
	case kase.Status == StatusOnHold && to != StatusOnHold:
		held = nil
	case kase.HeldStatus != "":
		held = string(kase.HeldStatus)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE cases SET status = ?, held_status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		held,
		storage.Timestamp(now),
		kase.ID,
		kase.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("update case status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, services.Wrap(services.ErrIntegrity, "casework", "transition",
			fmt.Sprintf("case %d changed underneath the transition", kase.ID), nil)
	}

	res, err = tx.ExecContext(
		ctx,
		`INSERT INTO status_history (case_id, from_status, to_status, changed_by, changed_at, reason, signal_emitted)
         VALUES (?, ?, ?, ?, ?, ?, 0)`,
		kase.ID,
		kase.Status,
		to,
		actor,
		storage.Timestamp(now),
		storage.NullableString(reason),
	)
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	historyID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transition: %w", err)
	}
	return historyID, nil
}

// AddInformationItem registers a piece of information the case needs.
func (s *Store) AddInformationItem(ctx context.Context, caseID int64, name string, required bool) (*InformationItem, error) {
	now := storage.Timestamp(time.Now().UTC())
	res, err := s.db.ExecRetry(
		ctx,
		`INSERT INTO information_items (case_id, name, required, received, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?)`,
		caseID,
		name,
		storage.BoolToInt(required),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("add information item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &InformationItem{ID: id, CaseID: caseID, Name: name, Required: required}, nil
}

// SetInformationReceived flips an item's received flag.
func (s *Store) SetInformationReceived(ctx context.Context, itemID int64, received bool) error {
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE information_items SET received = ?, updated_at = ? WHERE id = ?`,
		storage.BoolToInt(received),
		storage.Timestamp(time.Now().UTC()),
		itemID,
	)
	if err != nil {
		return fmt.Errorf("set information received: %w", err)
	}
	return requireAffected(res, "information item", itemID)
}

// InformationItems returns the case's information checklist.
func (s *Store) InformationItems(ctx context.Context, caseID int64) ([]*InformationItem, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, case_id, name, required, received, created_at, updated_at
         FROM information_items WHERE case_id = ? ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("information items: %w", err)
	}
	defer rows.Close()

	var items []*InformationItem
	for rows.Next() {
		var (
			item                   InformationItem
			required, received     int
			createdRaw, updatedRaw string
		)
		if err := rows.Scan(&item.ID, &item.CaseID, &item.Name, &required, &received, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		item.Required = required != 0
		item.Received = received != 0
		if item.CreatedAt, err = storage.ParseTimestamp(createdRaw); err != nil {
			return nil, err
		}
		if item.UpdatedAt, err = storage.ParseTimestamp(updatedRaw); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// AddScopeItem registers a scope tree node. parentID is nil for roots.
func (s *Store) AddScopeItem(ctx context.Context, caseID int64, parentID *int64, name string, required bool) (*ScopeItem, error) {
	now := storage.Timestamp(time.Now().UTC())
	var parent any
	if parentID != nil {
		parent = *parentID
	}
	res, err := s.db.ExecRetry(
		ctx,
		`INSERT INTO scope_items (case_id, parent_id, name, required, approved, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)`,
		caseID,
		parent,
		name,
		storage.BoolToInt(required),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("add scope item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ScopeItem{ID: id, CaseID: caseID, ParentID: parentID, Name: name, Required: required}, nil
}

// SetScopeApproved flips a scope item's approval flag.
func (s *Store) SetScopeApproved(ctx context.Context, itemID int64, approved bool) error {
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE scope_items SET approved = ?, updated_at = ? WHERE id = ?`,
		storage.BoolToInt(approved),
		storage.Timestamp(time.Now().UTC()),
		itemID,
	)
	if err != nil {
		return fmt.Errorf("set scope approved: %w", err)
	}
	return requireAffected(res, "scope item", itemID)
}

// ScopeItems returns the case's scope tree nodes in insertion order.
func (s *Store) ScopeItems(ctx context.Context, caseID int64) ([]*ScopeItem, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, case_id, parent_id, name, required, approved, created_at, updated_at
         FROM scope_items WHERE case_id = ? ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("scope items: %w", err)
	}
	defer rows.Close()

	var items []*ScopeItem
	for rows.Next() {
		var (
			item                   ScopeItem
			parent                 sql.NullInt64
			required, approved     int
			createdRaw, updatedRaw string
		)
		if err := rows.Scan(&item.ID, &item.CaseID, &parent, &item.Name, &required, &approved, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		if parent.Valid {
			value := parent.Int64
			item.ParentID = &value
		}
		item.Required = required != 0
		item.Approved = approved != 0
		if item.CreatedAt, err = storage.ParseTimestamp(createdRaw); err != nil {
			return nil, err
		}
		if item.UpdatedAt, err = storage.ParseTimestamp(updatedRaw); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// RecordContact stamps the case's last client contact time.
func (s *Store) RecordContact(ctx context.Context, caseID int64, at time.Time) error {
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE cases SET last_contact_at = ?, updated_at = ? WHERE id = ?`,
		storage.Timestamp(at.UTC()),
		storage.Timestamp(time.Now().UTC()),
		caseID,
	)
	if err != nil {
		return fmt.Errorf("record contact: %w", err)
	}
	return requireAffected(res, "case", caseID)
}

// checklistCounts aggregates the required/done counts for both checklists.
func (s *Store) checklistCounts(ctx context.Context, caseID int64) (info, scope ChecklistCounts, err error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1), COALESCE(SUM(received), 0) FROM information_items WHERE case_id = ? AND required = 1`,
		caseID,
	)
	if err = row.Scan(&info.Required, &info.Done); err != nil {
		return info, scope, fmt.Errorf("information counts: %w", err)
	}
	row = s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1), COALESCE(SUM(approved), 0) FROM scope_items WHERE case_id = ? AND required = 1`,
		caseID,
	)
	if err = row.Scan(&scope.Required, &scope.Done); err != nil {
		return info, scope, fmt.Errorf("scope counts: %w", err)
	}
	return info, scope, nil
}

// missingInformation lists required information items not yet received.
func (s *Store) missingInformation(ctx context.Context, caseID int64) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name FROM information_items WHERE case_id = ? AND required = 1 AND received = 0 ORDER BY id`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("missing information: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// updateReadiness persists a recomputed score and derived checklist state.
func (s *Store) updateReadiness(ctx context.Context, caseID int64, score int, info, scope ChecklistStatus, missing []string) error {
	var missingRaw any
	if len(missing) > 0 {
		encoded, err := json.Marshal(missing)
		if err != nil {
			return fmt.Errorf("encode missing information: %w", err)
		}
		missingRaw = string(encoded)
	}
	res, err := s.db.ExecRetry(
		ctx,
		`UPDATE cases SET readiness_score = ?, info_gathering_status = ?, scope_definition_status = ?,
            missing_information = ?, updated_at = ? WHERE id = ?`,
		score,
		info,
		scope,
		missingRaw,
		storage.Timestamp(time.Now().UTC()),
		caseID,
	)
	if err != nil {
		return fmt.Errorf("update readiness: %w", err)
	}
	return requireAffected(res, "case", caseID)
}

func requireAffected(res sql.Result, entity string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "casework", "update", fmt.Sprintf("%s %d", entity, id), nil)
	}
	return nil
}

const selectCaseColumns = `SELECT id, title, status, held_status, readiness_score,
    info_gathering_status, scope_definition_status, missing_information,
    last_contact_at, created_at, updated_at FROM cases`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*Case, error) {
	var (
		kase                   Case
		title, held, missing   sql.NullString
		lastContact            sql.NullString
		createdRaw, updatedRaw string
	)
	err := row.Scan(
		&kase.ID,
		&title,
		&kase.Status,
		&held,
		&kase.ReadinessScore,
		&kase.InfoGatheringStatus,
		&kase.ScopeDefinitionStatus,
		&missing,
		&lastContact,
		&createdRaw,
		&updatedRaw,
	)
	if err != nil {
		return nil, err
	}
	kase.Title = title.String
	kase.HeldStatus = Status(held.String)
	if missing.Valid && missing.String != "" {
		if err := json.Unmarshal([]byte(missing.String), &kase.MissingInformation); err != nil {
			return nil, fmt.Errorf("decode missing information for case %d: %w", kase.ID, err)
		}
	}
	if lastContact.Valid && lastContact.String != "" {
		parsed, err := storage.ParseTimestamp(lastContact.String)
		if err != nil {
			return nil, err
		}
		kase.LastContactAt = &parsed
	}
	if kase.CreatedAt, err = storage.ParseTimestamp(createdRaw); err != nil {
		return nil, err
	}
	if kase.UpdatedAt, err = storage.ParseTimestamp(updatedRaw); err != nil {
		return nil, err
	}
	return &kase, nil
}

func scanHistory(rows *sql.Rows) ([]*StatusHistoryEntry, error) {
	var entries []*StatusHistoryEntry
	for rows.Next() {
		var (
			entry      StatusHistoryEntry
			reason     sql.NullString
			emitted    int
			changedRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.CaseID, &entry.FromStatus, &entry.ToStatus,
			&entry.ChangedBy, &changedRaw, &reason, &emitted); err != nil {
			return nil, err
		}
		entry.Reason = reason.String
		entry.SignalEmitted = emitted != 0
		changed, err := storage.ParseTimestamp(changedRaw)
		if err != nil {
			return nil, err
		}
		entry.ChangedAt = changed
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
