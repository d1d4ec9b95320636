package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/mailbeforecart/internal/email"
	"github.com/dukerupert/mailbeforecart/internal/model"
)

var (
	// ErrDeliveryFailed means the mail transport rejected or never accepted
	// the message. The record is left unreminded.
	ErrDeliveryFailed = errors.New("reminder delivery failed")
	// ErrAlreadyPurchased means the record is closed and gets no more email.
	ErrAlreadyPurchased = errors.New("cart record already purchased")
	// ErrPersistence means the record store could not be read or written.
	ErrPersistence = errors.New("record store unavailable")
)

type RecordStore interface {
	QueryDueForReminder(ctx context.Context, now time.Time, delay time.Duration) ([]model.CartRecord, error)
	MarkReminded(ctx context.Context, id int64, sentAt time.Time) error
}

type DispatchLog interface {
	Begin(ctx context.Context, id string, recordID int64, kind string, at time.Time) error
	Complete(ctx context.Context, id, state, errMsg string, at time.Time) error
	LatestSentReminder(ctx context.Context, recordID int64) (*model.Dispatch, error)
	ListByRecord(ctx context.Context, recordID int64) ([]model.Dispatch, error)
}

type SettingsSource interface {
	ReminderSettings(ctx context.Context) (model.ReminderSettings, error)
}

type CustomerDirectory interface {
	DisplayName(ctx context.Context, email string) (string, error)
}

// Notifier receives a note whenever a record changes state.
type Notifier interface {
	Notify(entity, action string, id int64, extra map[string]any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, int64, map[string]any) {}

// Site describes the shop the emails are sent on behalf of.
type Site struct {
	Name    string
	CartURL string
}

type Dispatcher struct {
	records   RecordStore
	ledger    DispatchLog
	settings  SettingsSource
	customers CustomerDirectory
	mailer    email.Mailer
	site      Site
	notifier  Notifier
	logger    *slog.Logger
	newID     func() string
}

type DispatcherOption func(*Dispatcher)

func WithNotifier(n Notifier) DispatcherOption {
	return func(d *Dispatcher) {
		if n != nil {
			d.notifier = n
		}
	}
}

func NewDispatcher(records RecordStore, ledger DispatchLog, settings SettingsSource, customers CustomerDirectory, mailer email.Mailer, site Site, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		records:   records,
		ledger:    ledger,
		settings:  settings,
		customers: customers,
		mailer:    mailer,
		site:      site,
		notifier:  nopNotifier{},
		logger:    logger.With("component", "dispatcher"),
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send emails a reminder for rec and marks it reminded at now. Manual sends
// always deliver. It returns the record with its updated reminder state.
func (d *Dispatcher) Send(ctx context.Context, rec model.CartRecord, kind string, now time.Time) (*model.CartRecord, error) {
	updated, _, err := d.dispatch(ctx, rec, kind, now)
	return updated, err
}

// dispatch reports whether an email actually went out. An automatic send for
// a record whose earlier delivery was recorded but never marked is closed
// without mailing again.
func (d *Dispatcher) dispatch(ctx context.Context, rec model.CartRecord, kind string, now time.Time) (*model.CartRecord, bool, error) {
	if rec.Purchased() {
		return nil, false, ErrAlreadyPurchased
	}
	logger := d.logger.With("record_id", rec.ID, "kind", kind)
	// Bookkeeping writes must land even if the caller gives up mid-send.
	bg := context.WithoutCancel(ctx)

	if kind == model.DispatchAutomatic && !rec.ReminderSent {
		prior, err := d.ledger.LatestSentReminder(ctx, rec.ID)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if prior != nil {
			sentAt := prior.CreatedAt
			if prior.CompletedAt != nil {
				sentAt = *prior.CompletedAt
			}
			if err := d.records.MarkReminded(bg, rec.ID, sentAt); err != nil {
				return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			logger.Warn("reminder already delivered, marking record", "dispatch_id", prior.ID)
			return markReminded(rec, sentAt), false, nil
		}
	}

	rs, err := d.settings.ReminderSettings(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	msg, err := d.compose(ctx, rec, rs.ReminderSubject, rs.ReminderTemplate)
	if err != nil {
		return nil, false, err
	}
	msg.DispatchID = d.newID()

	if err := d.ledger.Begin(ctx, msg.DispatchID, rec.ID, kind, now); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		if cerr := d.ledger.Complete(bg, msg.DispatchID, model.DispatchFailed, err.Error(), now); cerr != nil {
			logger.Error("record failed dispatch", "dispatch_id", msg.DispatchID, "error", cerr)
		}
		return nil, false, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if err := d.ledger.Complete(bg, msg.DispatchID, model.DispatchSent, "", now); err != nil {
		logger.Error("record sent dispatch", "dispatch_id", msg.DispatchID, "error", err)
	}
	if err := d.records.MarkReminded(bg, rec.ID, now); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	logger.Info("reminder sent", "dispatch_id", msg.DispatchID)
	d.notifier.Notify("entry", "reminded", rec.ID, map[string]any{"kind": kind})
	return markReminded(rec, now), true, nil
}

// SendInitial emails the capture confirmation when it is enabled. It never
// touches reminder state.
func (d *Dispatcher) SendInitial(ctx context.Context, rec model.CartRecord, now time.Time) (bool, error) {
	rs, err := d.settings.ReminderSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !rs.InitialEmailEnabled {
		return false, nil
	}

	msg, err := d.compose(ctx, rec, rs.InitialSubject, rs.InitialTemplate)
	if err != nil {
		return false, err
	}
	msg.DispatchID = d.newID()
	bg := context.WithoutCancel(ctx)

	if err := d.ledger.Begin(ctx, msg.DispatchID, rec.ID, model.DispatchInitial, now); err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		if cerr := d.ledger.Complete(bg, msg.DispatchID, model.DispatchFailed, err.Error(), now); cerr != nil {
			d.logger.Error("record failed dispatch", "dispatch_id", msg.DispatchID, "record_id", rec.ID, "error", cerr)
		}
		return false, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if err := d.ledger.Complete(bg, msg.DispatchID, model.DispatchSent, "", now); err != nil {
		d.logger.Error("record sent dispatch", "dispatch_id", msg.DispatchID, "error", err)
	}
	return true, nil
}

func (d *Dispatcher) compose(ctx context.Context, rec model.CartRecord, subject, body string) (email.Message, error) {
	name, err := d.customers.DisplayName(ctx, rec.Email)
	if err != nil {
		return email.Message{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	v := Vars{
		SiteName:     d.site.Name,
		CustomerName: name,
		CartItems:    cartItems(rec),
		CartLink:     d.site.CartURL,
		Email:        rec.Email,
	}
	return email.Message{
		To:       rec.Email,
		Subject:  RenderSubject(subject, v),
		HTMLBody: Render(body, v),
	}, nil
}

func cartItems(rec model.CartRecord) string {
	if rec.ProductName != "" {
		return rec.ProductName
	}
	return fmt.Sprintf("Product #%d", rec.ProductID)
}

func markReminded(rec model.CartRecord, at time.Time) *model.CartRecord {
	rec.ReminderSent = true
	rec.LastReminderSent = &at
	return &rec
}

// History lists every email attempt made for a record, newest first.
func (d *Dispatcher) History(ctx context.Context, recordID int64) ([]model.Dispatch, error) {
	out, err := d.ledger.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if out == nil {
		out = []model.Dispatch{}
	}
	return out, nil
}
