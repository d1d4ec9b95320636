package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/database"
	"github.com/dukerupert/mailbeforecart/internal/email"
	"github.com/dukerupert/mailbeforecart/internal/model"
	"github.com/dukerupert/mailbeforecart/internal/recovery"
	"github.com/dukerupert/mailbeforecart/internal/reminder"
	"github.com/dukerupert/mailbeforecart/internal/store"
)

const testCSRF = "csrf-handler-test"

var testClock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *fakeMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	db        *sql.DB
	carts     *store.CartStore
	operators *store.OperatorStore
	sessions  *store.SessionStore
	mailer    *fakeMailer
	svc       *recovery.Service
	logger    *slog.Logger
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	carts := store.NewCartStore(db)
	customers := store.NewCustomerStore(db)
	settings := store.NewSettingsStore(db)
	mailer := &fakeMailer{}

	d := reminder.NewDispatcher(carts, store.NewDispatchStore(db), settings, customers, mailer,
		reminder.Site{Name: "Example Shop", CartURL: "https://shop.test/cart"}, logger)
	sched := reminder.NewScheduler(d, time.Hour, logger)

	return &testEnv{
		db:        db,
		carts:     carts,
		operators: store.NewOperatorStore(db),
		sessions:  store.NewSessionStore(db),
		mailer:    mailer,
		svc:       recovery.NewService(carts, customers, settings, d, sched, logger),
		logger:    logger,
	}
}

func (e *testEnv) seedRecord(t *testing.T, addr string, createdAt time.Time) int64 {
	t.Helper()
	id, err := e.carts.InsertAt(context.Background(), addr, 7, "Blue Mug", createdAt)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return id
}

func withRole(r *http.Request, role string) *http.Request {
	ctx := auth.WithAuth(r.Context(), auth.AuthContext{
		OperatorID: 1, Role: role, SessionID: 1, CSRFToken: testCSRF,
	})
	return r.WithContext(ctx)
}

func asAdmin(r *http.Request) *http.Request {
	return withRole(r, model.RoleAdmin)
}

func jsonRequest(method, target string, v any) *http.Request {
	var body io.Reader = http.NoBody
	if v != nil {
		b, _ := json.Marshal(v)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}
