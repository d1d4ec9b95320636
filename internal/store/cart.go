package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/model"
)

type CartStore struct {
	db *sql.DB
}

func NewCartStore(db *sql.DB) *CartStore {
	return &CartStore{db: db}
}

const cartCols = `id, email, product_id, product_name, created_at, status, reminder_sent, last_reminder_sent`

func scanCartRecord(scanner interface{ Scan(...any) error }) (*model.CartRecord, error) {
	var rec model.CartRecord
	var createdAt string
	var reminded int
	var lastSent sql.NullString

	err := scanner.Scan(
		&rec.ID, &rec.Email, &rec.ProductID, &rec.ProductName,
		&createdAt, &rec.Status, &reminded, &lastSent,
	)
	if err != nil {
		return nil, err
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.LastReminderSent, err = parseNullTime(lastSent); err != nil {
		return nil, err
	}
	rec.ReminderSent = reminded != 0
	return &rec, nil
}

func scanCartRecords(rows *sql.Rows) ([]model.CartRecord, error) {
	var records []model.CartRecord
	for rows.Next() {
		rec, err := scanCartRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Insert creates a pending, unreminded record stamped with the current time.
func (s *CartStore) Insert(ctx context.Context, email string, productID int64, productName string) (int64, error) {
	return s.InsertAt(ctx, email, productID, productName, time.Now())
}

// InsertAt creates a pending, unreminded record with an explicit capture time.
func (s *CartStore) InsertAt(ctx context.Context, email string, productID int64, productName string, createdAt time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_records (email, product_id, product_name, created_at, status, reminder_sent)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		email, productID, productName, formatTime(createdAt), model.StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("insert cart record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// GetByID returns the record or nil if it does not exist.
func (s *CartStore) GetByID(ctx context.Context, id int64) (*model.CartRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cartCols+` FROM cart_records WHERE id = ?`, id)
	rec, err := scanCartRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart record: %w", err)
	}
	return rec, nil
}

// MarkReminded flags the record as reminded at sentAt. Status is untouched
// and a missing id is not an error.
func (s *CartStore) MarkReminded(ctx context.Context, id int64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cart_records SET reminder_sent = 1, last_reminder_sent = ? WHERE id = ?`,
		formatTime(sentAt), id,
	)
	if err != nil {
		return fmt.Errorf("mark cart record reminded: %w", err)
	}
	return nil
}

// MarkPurchased closes every record captured for email and returns how many
// rows changed.
func (s *CartStore) MarkPurchased(ctx context.Context, email string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE cart_records SET status = ? WHERE email = ? AND status <> ?`,
		model.StatusPurchased, email, model.StatusPurchased,
	)
	if err != nil {
		return 0, fmt.Errorf("mark cart records purchased: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// QueryDueForReminder returns pending, unreminded records captured at or
// before now-delay.
func (s *CartStore) QueryDueForReminder(ctx context.Context, now time.Time, delay time.Duration) ([]model.CartRecord, error) {
	cutoff := now.Add(-delay)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cartCols+` FROM cart_records
		 WHERE status = ? AND reminder_sent = 0 AND created_at <= ?
		 ORDER BY id`,
		model.StatusPending, formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query due cart records: %w", err)
	}
	defer rows.Close()
	return scanCartRecords(rows)
}

func filterClause(f model.Filter) (string, []any) {
	where := []string{"1=1"}
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.DateFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(startOfDay(*f.DateFrom)))
	}
	if f.DateTo != nil {
		// Inclusive through the last instant of DateTo.
		where = append(where, "created_at < ?")
		args = append(args, formatTime(startOfDay(*f.DateTo).AddDate(0, 0, 1)))
	}
	return strings.Join(where, " AND "), args
}

// QueryFiltered returns one page of matching records, newest first, and the
// total number of matches. A limit of zero or less returns every match.
func (s *CartStore) QueryFiltered(ctx context.Context, f model.Filter, limit, offset int) ([]model.CartRecord, int, error) {
	where, args := filterClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_records WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cart records: %w", err)
	}

	query := `SELECT ` + cartCols + ` FROM cart_records WHERE ` + where + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query cart records: %w", err)
	}
	defer rows.Close()

	records, err := scanCartRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// EachFiltered streams matching records, newest first, to fn. Iteration stops
// at the first error fn returns.
func (s *CartStore) EachFiltered(ctx context.Context, f model.Filter, fn func(model.CartRecord) error) error {
	where, args := filterClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cartCols+` FROM cart_records WHERE `+where+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("query cart records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanCartRecord(rows)
		if err != nil {
			return fmt.Errorf("scan cart record: %w", err)
		}
		if err := fn(*rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EmailExists reports whether any record was captured for email.
func (s *CartStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_records WHERE email = ?`, email).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return count > 0, nil
}

// TruncateAll removes every cart record and its dispatch history.
func (s *CartStore) TruncateAll(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin truncate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminder_dispatches`); err != nil {
		return 0, fmt.Errorf("truncate reminder dispatches: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM cart_records`)
	if err != nil {
		return 0, fmt.Errorf("truncate cart records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit truncate: %w", err)
	}
	return n, nil
}

// Stats returns the dashboard counters. "Today" is the UTC day containing now.
func (s *CartStore) Stats(ctx context.Context, now time.Time) (model.Stats, error) {
	var st model.Stats
	today := startOfDay(now)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN reminder_sent = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN created_at >= ? AND created_at < ? THEN 1 ELSE 0 END), 0)
		 FROM cart_records`,
		model.StatusPurchased, formatTime(today), formatTime(today.AddDate(0, 0, 1)),
	).Scan(&st.TotalEmails, &st.TotalReminders, &st.TotalConversions, &st.TodayEmails)
	if err != nil {
		return model.Stats{}, fmt.Errorf("cart stats: %w", err)
	}
	return st, nil
}

// DailyStats returns per-day capture and conversion counts for the given
// number of days ending today, oldest first. Days without captures are omitted.
func (s *CartStore) DailyStats(ctx context.Context, now time.Time, days int) ([]model.DailyStat, error) {
	since := startOfDay(now).AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM cart_records
		 WHERE created_at >= ?
		 GROUP BY day
		 ORDER BY day ASC`,
		model.StatusPurchased, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("daily cart stats: %w", err)
	}
	defer rows.Close()

	var stats []model.DailyStat
	for rows.Next() {
		var d model.DailyStat
		if err := rows.Scan(&d.Date, &d.Total, &d.Conversions); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}
