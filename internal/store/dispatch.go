package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/model"
)

// DispatchStore records every attempt to email a shopper. Rows in state
// "sent" are the idempotency ledger the reminder dispatcher consults before
// sending again.
type DispatchStore struct {
	db *sql.DB
}

func NewDispatchStore(db *sql.DB) *DispatchStore {
	return &DispatchStore{db: db}
}

const dispatchCols = `id, record_id, kind, state, error, created_at, completed_at`

func scanDispatch(scanner interface{ Scan(...any) error }) (*model.Dispatch, error) {
	var d model.Dispatch
	var createdAt string
	var completedAt sql.NullString
	if err := scanner.Scan(&d.ID, &d.RecordID, &d.Kind, &d.State, &d.Error, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Begin writes a dispatch row in state "sending".
func (s *DispatchStore) Begin(ctx context.Context, id string, recordID int64, kind string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_dispatches (id, record_id, kind, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, recordID, kind, model.DispatchSending, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("begin dispatch: %w", err)
	}
	return nil
}

// Complete moves a dispatch to its final state.
func (s *DispatchStore) Complete(ctx context.Context, id, state, errMsg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminder_dispatches SET state = ?, error = ?, completed_at = ? WHERE id = ?`,
		state, errMsg, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("complete dispatch: %w", err)
	}
	return nil
}

// LatestSentReminder returns the most recent delivered reminder (automatic or
// manual) for a record, or nil if none was delivered.
func (s *DispatchStore) LatestSentReminder(ctx context.Context, recordID int64) (*model.Dispatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dispatchCols+` FROM reminder_dispatches
		 WHERE record_id = ? AND state = ? AND kind IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		recordID, model.DispatchSent, model.DispatchAutomatic, model.DispatchManual,
	)
	d, err := scanDispatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sent reminder: %w", err)
	}
	return d, nil
}

// ListByRecord returns the dispatch history of a record, newest first.
func (s *DispatchStore) ListByRecord(ctx context.Context, recordID int64) ([]model.Dispatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dispatchCols+` FROM reminder_dispatches WHERE record_id = ? ORDER BY created_at DESC`,
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	var out []model.Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
