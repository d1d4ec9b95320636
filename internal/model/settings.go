package model

import (
	"fmt"
	"strconv"
	"time"
)

// Setting keys.
const (
	SettingReminderDelayValue  = "reminder_delay_value"
	SettingReminderDelayUnit   = "reminder_delay_unit"
	SettingReminderSubject     = "reminder_subject"
	SettingReminderTemplate    = "reminder_template"
	SettingInitialEmailEnabled = "initial_email_enabled"
	SettingInitialSubject      = "initial_subject"
	SettingInitialTemplate     = "initial_template"
	SettingFieldLabel          = "field_label"
	SettingFieldPlaceholder    = "field_placeholder"
)

const (
	DefaultReminderSubject = "Complete Your Purchase"
	DefaultInitialSubject  = "Product Added to Cart"
	DefaultFieldLabel      = "Enter Your Email to Add to Cart:"
	DefaultPlaceholder     = "your@email.com"

	DefaultReminderTemplate = `<div><h2>Hello {customer_name},</h2><p>You left something in your cart.</p><p>{cart_items}</p><p><a href="{cart_link}">Complete Purchase</a></p></div>`
	DefaultInitialTemplate  = `<html><body style="font-family: Arial, sans-serif;"><h2>Thank you for your interest!</h2><p>You have added <strong>{cart_items}</strong> to your cart.</p><p>Complete your purchase now to secure your item.</p><p><a href="{cart_link}">View Cart</a></p></body></html>`
)

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Delay units accepted for reminder_delay_unit.
const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
)

// ReminderSettings is the typed view of the settings the engine reads.
type ReminderSettings struct {
	DelayValue          int    `json:"delay_value"`
	DelayUnit           string `json:"delay_unit"`
	ReminderSubject     string `json:"reminder_subject"`
	ReminderTemplate    string `json:"reminder_template"`
	InitialEmailEnabled bool   `json:"initial_email_enabled"`
	InitialSubject      string `json:"initial_subject"`
	InitialTemplate     string `json:"initial_template"`
	FieldLabel          string `json:"field_label"`
	FieldPlaceholder    string `json:"field_placeholder"`
}

// DefaultReminderSettings returns the values used when nothing is stored.
func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		DelayValue:       1,
		DelayUnit:        UnitDays,
		ReminderSubject:  DefaultReminderSubject,
		ReminderTemplate: DefaultReminderTemplate,
		InitialSubject:   DefaultInitialSubject,
		InitialTemplate:  DefaultInitialTemplate,
		FieldLabel:       DefaultFieldLabel,
		FieldPlaceholder: DefaultPlaceholder,
	}
}

// MaxDelay is the longest reminder delay an operator may configure.
const MaxDelay = 365 * 24 * time.Hour

// Delay converts the value/unit pair into a duration no longer than MaxDelay.
func (s ReminderSettings) Delay() (time.Duration, error) {
	if s.DelayValue < 0 {
		return 0, fmt.Errorf("reminder delay must not be negative: %d", s.DelayValue)
	}
	var unit time.Duration
	switch s.DelayUnit {
	case UnitMinutes:
		unit = time.Minute
	case UnitHours:
		unit = time.Hour
	case UnitDays:
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown reminder delay unit %q", s.DelayUnit)
	}
	if int64(s.DelayValue) > int64(MaxDelay/unit) {
		return 0, fmt.Errorf("reminder delay %d %s exceeds %s", s.DelayValue, s.DelayUnit, MaxDelay)
	}
	return time.Duration(s.DelayValue) * unit, nil
}

// Validate checks the fields an operator may edit.
func (s ReminderSettings) Validate() error {
	if _, err := s.Delay(); err != nil {
		return err
	}
	if s.ReminderSubject == "" {
		return fmt.Errorf("reminder subject is required")
	}
	if s.ReminderTemplate == "" {
		return fmt.Errorf("reminder template is required")
	}
	return nil
}

// Values flattens the settings into key/value pairs for storage.
func (s ReminderSettings) Values() map[string]string {
	return map[string]string{
		SettingReminderDelayValue:  strconv.Itoa(s.DelayValue),
		SettingReminderDelayUnit:   s.DelayUnit,
		SettingReminderSubject:     s.ReminderSubject,
		SettingReminderTemplate:    s.ReminderTemplate,
		SettingInitialEmailEnabled: strconv.FormatBool(s.InitialEmailEnabled),
		SettingInitialSubject:      s.InitialSubject,
		SettingInitialTemplate:     s.InitialTemplate,
		SettingFieldLabel:          s.FieldLabel,
		SettingFieldPlaceholder:    s.FieldPlaceholder,
	}
}
