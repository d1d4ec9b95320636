package reminder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/database"
	"github.com/dukerupert/mailbeforecart/internal/email"
	"github.com/dukerupert/mailbeforecart/internal/model"
	"github.com/dukerupert/mailbeforecart/internal/store"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	fail map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(entity, action string, _ int64, _ map[string]any) {
	n.mu.Lock()
	n.events = append(n.events, entity+"_"+action)
	n.mu.Unlock()
}

type testEnv struct {
	carts      *store.CartStore
	dispatches *store.DispatchStore
	settings   *store.SettingsStore
	customers  *store.CustomerStore
	mailer     *fakeMailer
	notifier   *recordingNotifier
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		carts:      store.NewCartStore(db),
		dispatches: store.NewDispatchStore(db),
		settings:   store.NewSettingsStore(db),
		customers:  store.NewCustomerStore(db),
		mailer:     &fakeMailer{fail: map[string]bool{}},
		notifier:   &recordingNotifier{},
	}
	env.dispatcher = NewDispatcher(
		env.carts, env.dispatches, env.settings, env.customers, env.mailer,
		Site{Name: "Example Shop", CartURL: "https://shop.test/cart"},
		discardLogger(),
		WithNotifier(env.notifier),
	)
	return env
}

func (e *testEnv) insert(t *testing.T, email string, at time.Time) model.CartRecord {
	t.Helper()
	ctx := context.Background()
	id, err := e.carts.InsertAt(ctx, email, 1, "Blue Mug", at)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec, err := e.carts.GetByID(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("get inserted record: %v", err)
	}
	return *rec
}

func (e *testEnv) get(t *testing.T, id int64) model.CartRecord {
	t.Helper()
	rec, err := e.carts.GetByID(context.Background(), id)
	if err != nil || rec == nil {
		t.Fatalf("get record %d: %v", id, err)
	}
	return *rec
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
