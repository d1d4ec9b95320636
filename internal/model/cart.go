package model

import "time"

// Cart record lifecycle states.
const (
	StatusPending   = "pending"
	StatusPurchased = "purchased"
)

// CartRecord is one captured add-to-cart event.
type CartRecord struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	ProductID        int64      `json:"product_id"`
	ProductName      string     `json:"product_name"`
	CreatedAt        time.Time  `json:"created_at"`
	Status           string     `json:"status"`
	ReminderSent     bool       `json:"reminder_sent"`
	LastReminderSent *time.Time `json:"last_reminder_sent"`
}

// Purchased reports whether the record has reached the terminal state.
func (r *CartRecord) Purchased() bool {
	return r.Status == StatusPurchased
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusPurchased
}

// Filter narrows listing and export queries. Zero fields match everything.
// DateFrom and DateTo are calendar days; both ends are inclusive.
type Filter struct {
	Status   string
	DateFrom *time.Time
	DateTo   *time.Time
}

// Empty reports whether no filter field is set.
func (f Filter) Empty() bool {
	return f.Status == "" && f.DateFrom == nil && f.DateTo == nil
}

// EntryPage is one page of the operator listing.
type EntryPage struct {
	Entries []CartRecord `json:"entries"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Pages   int          `json:"pages"`
	First   int          `json:"first"`
	Last    int          `json:"last"`
}

type Stats struct {
	TotalEmails      int `json:"total_emails"`
	TotalReminders   int `json:"total_reminders"`
	TotalConversions int `json:"total_conversions"`
	TodayEmails      int `json:"today_emails"`
}

type DailyStat struct {
	Date        string `json:"date"`
	Total       int    `json:"total"`
	Conversions int    `json:"conversions"`
}
