package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/model"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the stored value and whether the key exists.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SettingsStore) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SetMany writes all values in one transaction.
func (s *SettingsStore) SetMany(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings update: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for key, value := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		)
		if err != nil {
			return fmt.Errorf("set setting %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings update: %w", err)
	}
	return nil
}

// ReminderSettings overlays stored values on the defaults. Malformed stored
// numbers and booleans fall back to the default for that field, and an
// out-of-range delay falls back to the default delay.
func (s *SettingsStore) ReminderSettings(ctx context.Context) (model.ReminderSettings, error) {
	rs := model.DefaultReminderSettings()
	all, err := s.GetAll(ctx)
	if err != nil {
		return rs, err
	}

	if v, ok := all[model.SettingReminderDelayValue]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			rs.DelayValue = n
		}
	}
	if v, ok := all[model.SettingInitialEmailEnabled]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			rs.InitialEmailEnabled = b
		}
	}

	strs := map[string]*string{
		model.SettingReminderDelayUnit: &rs.DelayUnit,
		model.SettingReminderSubject:   &rs.ReminderSubject,
		model.SettingReminderTemplate:  &rs.ReminderTemplate,
		model.SettingInitialSubject:    &rs.InitialSubject,
		model.SettingInitialTemplate:   &rs.InitialTemplate,
		model.SettingFieldLabel:        &rs.FieldLabel,
		model.SettingFieldPlaceholder:  &rs.FieldPlaceholder,
	}
	for key, dst := range strs {
		if v, ok := all[key]; ok && v != "" {
			*dst = v
		}
	}

	// A stored delay that is out of range reverts to the default pair.
	if _, err := rs.Delay(); err != nil {
		def := model.DefaultReminderSettings()
		rs.DelayValue, rs.DelayUnit = def.DelayValue, def.DelayUnit
	}
	return rs, nil
}

// SaveReminderSettings validates and persists rs.
func (s *SettingsStore) SaveReminderSettings(ctx context.Context, rs model.ReminderSettings) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	return s.SetMany(ctx, rs.Values())
}
