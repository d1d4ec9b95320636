package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/model"
	"github.com/dukerupert/mailbeforecart/internal/reminder"
	"github.com/dukerupert/mailbeforecart/internal/store"
)

// PageSize is the number of entries per listing page.
const PageSize = 10

// statsDays is how far back the daily breakdown reaches.
const statsDays = 7

const maxProductName = 255

// Service is the cart recovery engine as seen by its callers: capture
// intake, the purchase resolver and the operator console.
type Service struct {
	carts      *store.CartStore
	customers  *store.CustomerStore
	settings   *store.SettingsStore
	dispatcher *reminder.Dispatcher
	scheduler  *reminder.Scheduler
	notifier   reminder.Notifier
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithNotifier(n reminder.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func NewService(carts *store.CartStore, customers *store.CustomerStore, settings *store.SettingsStore, dispatcher *reminder.Dispatcher, scheduler *reminder.Scheduler, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		carts:      carts,
		customers:  customers,
		settings:   settings,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		notifier:   nopNotifier{},
		now:        time.Now,
		logger:     logger.With("component", "recovery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, int64, map[string]any) {}

// CaptureInput is one add-to-cart event from the storefront.
type CaptureInput struct {
	Email        string `json:"email"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	CustomerName string `json:"customer_name,omitempty"`
}

// NormalizeEmail validates addr and returns its canonical lower-case form.
func NormalizeEmail(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, addr)
	}
	return strings.ToLower(parsed.Address), nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Capture records an add-to-cart event. Every call creates a new record,
// even for a repeated email and product.
func (s *Service) Capture(ctx context.Context, in CaptureInput) (*model.CartRecord, error) {
	addr, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.ProductID <= 0 {
		return nil, fmt.Errorf("%w: product_id must be positive", ErrInvalidInput)
	}
	name := truncateUTF8(strings.TrimSpace(in.ProductName), maxProductName)

	now := s.now()
	id, err := s.carts.InsertAt(ctx, addr, in.ProductID, name, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	rec := &model.CartRecord{
		ID:          id,
		Email:       addr,
		ProductID:   in.ProductID,
		ProductName: name,
		CreatedAt:   now,
		Status:      model.StatusPending,
	}

	if in.CustomerName != "" {
		if err := s.customers.Upsert(ctx, addr, in.CustomerName); err != nil {
			s.logger.Warn("store customer name", "record_id", id, "error", err)
		}
	}

	if _, err := s.dispatcher.SendInitial(ctx, *rec, now); err != nil {
		s.logger.Warn("initial email not sent", "record_id", id, "error", err)
	}

	s.logger.Info("cart captured", "record_id", id, "product_id", in.ProductID)
	s.notifier.Notify("entry", "created", id, nil)
	return rec, nil
}

// EmailExists reports whether the storefront has already captured addr.
func (s *Service) EmailExists(ctx context.Context, addr string) (bool, error) {
	addr, err := NormalizeEmail(addr)
	if err != nil {
		return false, err
	}
	ok, err := s.carts.EmailExists(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ok, nil
}

// CaptureConfig returns the storefront field label and placeholder.
func (s *Service) CaptureConfig(ctx context.Context) (label, placeholder string, err error) {
	rs, err := s.settings.ReminderSettings(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return rs.FieldLabel, rs.FieldPlaceholder, nil
}

// ResolvePurchase closes every record for billingEmail. It does not check
// that any record exists; zero matches is not an error.
func (s *Service) ResolvePurchase(ctx context.Context, orderID, billingEmail string) (int64, error) {
	addr := strings.ToLower(strings.TrimSpace(billingEmail))
	if addr == "" {
		return 0, fmt.Errorf("%w: billing email is required", ErrInvalidInput)
	}

	n, err := s.carts.MarkPurchased(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.logger.Info("purchase resolved", "order_id", orderID, "records", n)
	if n > 0 {
		s.notifier.Notify("entry", "purchased", 0, map[string]any{"order_id": orderID, "records": n})
	}
	return n, nil
}

// ListEntries returns one page of records matching f. Pages start at 1.
func (s *Service) ListEntries(ctx context.Context, f model.Filter, page int) (model.EntryPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * PageSize

	records, total, err := s.carts.QueryFiltered(ctx, f, PageSize, offset)
	if err != nil {
		return model.EntryPage{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if records == nil {
		records = []model.CartRecord{}
	}

	p := model.EntryPage{
		Entries: records,
		Total:   total,
		Page:    page,
		PerPage: PageSize,
		Pages:   (total + PageSize - 1) / PageSize,
	}
	if len(records) > 0 {
		p.First = offset + 1
		p.Last = offset + len(records)
	}
	return p, nil
}

// authorize checks for the admin role and a matching anti-replay token.
func authorize(ctx context.Context, token string) error {
	if !auth.IsAdmin(ctx) || !auth.ValidToken(ctx, token) {
		return ErrUnauthorized
	}
	return nil
}

// SendManualReminder resends the reminder for one record regardless of its
// due time or previous reminders.
func (s *Service) SendManualReminder(ctx context.Context, id int64, token string) (*model.CartRecord, error) {
	if err := authorize(ctx, token); err != nil {
		return nil, err
	}

	rec, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	updated, err := s.dispatcher.Send(ctx, *rec, model.DispatchManual, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("manual reminder sent", "record_id", id, "operator_id", auth.OperatorID(ctx))
	return updated, nil
}

// EntryHistory returns a record's email attempts. Viewers may read it.
func (s *Service) EntryHistory(ctx context.Context, id int64) ([]model.Dispatch, error) {
	rec, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return s.dispatcher.History(ctx, id)
}

// ClearAllStatistics irreversibly deletes every record.
func (s *Service) ClearAllStatistics(ctx context.Context, token string) (int64, error) {
	if err := authorize(ctx, token); err != nil {
		return 0, err
	}

	n, err := s.carts.TruncateAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.logger.Warn("all cart records cleared", "records", n, "operator_id", auth.OperatorID(ctx))
	s.notifier.Notify("entry", "cleared", 0, map[string]any{"records": n})
	return n, nil
}

// StatsReport is the dashboard summary.
type StatsReport struct {
	model.Stats
	Daily []model.DailyStat `json:"daily"`
}

func (s *Service) Stats(ctx context.Context) (StatsReport, error) {
	now := s.now()
	st, err := s.carts.Stats(ctx, now)
	if err != nil {
		return StatsReport{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	daily, err := s.carts.DailyStats(ctx, now, statsDays)
	if err != nil {
		return StatsReport{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if daily == nil {
		daily = []model.DailyStat{}
	}
	return StatsReport{Stats: st, Daily: daily}, nil
}

func (s *Service) Settings(ctx context.Context) (model.ReminderSettings, error) {
	rs, err := s.settings.ReminderSettings(ctx)
	if err != nil {
		return rs, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return rs, nil
}

func (s *Service) UpdateSettings(ctx context.Context, rs model.ReminderSettings, token string) error {
	if err := authorize(ctx, token); err != nil {
		return err
	}
	if err := rs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.settings.SaveReminderSettings(ctx, rs); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.logger.Info("settings updated", "operator_id", auth.OperatorID(ctx))
	return nil
}

// RunCycleNow runs a reminder cycle immediately.
func (s *Service) RunCycleNow(ctx context.Context, token string) (reminder.CycleResult, error) {
	if err := authorize(ctx, token); err != nil {
		return reminder.CycleResult{}, err
	}
	return s.scheduler.RunCycle(ctx, s.now())
}

func (s *Service) SchedulerStatus() reminder.Status {
	return s.scheduler.Status()
}

// ResetSchedule moves the next automatic run to the next minute.
func (s *Service) ResetSchedule(ctx context.Context, token string) (time.Time, error) {
	if err := authorize(ctx, token); err != nil {
		return time.Time{}, err
	}
	return s.scheduler.Reset(), nil
}
