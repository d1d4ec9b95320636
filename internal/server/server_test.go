package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/config"
	"github.com/dukerupert/mailbeforecart/internal/database"
	"github.com/dukerupert/mailbeforecart/internal/email"
	"github.com/dukerupert/mailbeforecart/internal/handler"
	"github.com/dukerupert/mailbeforecart/internal/model"
	"github.com/dukerupert/mailbeforecart/internal/webhook"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "a-long-admin-password"
	orderSecret   = "order-secret"
)

type capturingMailer struct {
	sent chan email.Message
}

func (m *capturingMailer) Send(_ context.Context, msg email.Message) error {
	m.sent <- msg
	return nil
}

type testServer struct {
	*httptest.Server
	srv    *Server
	mailer *capturingMailer
	client *http.Client
}

func setupServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Webhooks.OrderSecret = orderSecret
	if mutate != nil {
		mutate(cfg)
	}

	mailer := &capturingMailer{sent: make(chan email.Message, 10)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, cfg, mailer, logger)

	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := srv.OperatorStore().Create(context.Background(), adminEmail, hash, model.RoleAdmin); err != nil {
		t.Fatalf("create operator: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return &testServer{Server: ts, srv: srv, mailer: mailer, client: &http.Client{Jar: jar}}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/admin/login", map[string]string{"email": adminEmail, "password": adminPassword}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return body.CSRFToken
}

func TestHealth(t *testing.T) {
	ts := setupServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestAdminRequiresSession(t *testing.T) {
	ts := setupServer(t, nil)

	for _, path := range []string{"/admin/api/entries", "/admin/api/stats", "/admin/api/scheduler", "/admin/ws"} {
		resp := ts.do(t, http.MethodGet, path, nil, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestCaptureRemindPurchaseFlow(t *testing.T) {
	ts := setupServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/capture", map[string]any{
		"email": "shopper@example.com", "product_id": 3, "product_name": "Kettle", "customer_name": "sam lee",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("capture status = %d", resp.StatusCode)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)

	token := ts.login(t)

	resp = ts.do(t, http.MethodPost, "/admin/api/entries/"+strconv.FormatInt(created.ID, 10)+"/remind", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("remind without csrf status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	resp = ts.do(t, http.MethodPost, "/admin/api/entries/"+strconv.FormatInt(created.ID, 10)+"/remind", nil,
		map[string]string{handler.CSRFHeader: token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remind status = %d", resp.StatusCode)
	}
	select {
	case msg := <-ts.mailer.sent:
		if msg.To != "shopper@example.com" || msg.DispatchID == "" {
			t.Errorf("mail = %+v", msg)
		}
		if !bytes.Contains([]byte(msg.HTMLBody), []byte("Sam Lee")) {
			t.Errorf("reminder body does not greet the customer: %s", msg.HTMLBody)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reminder sent")
	}

	body := []byte(`{"order_id":"A-1","billing_email":"shopper@example.com"}`)
	tsHeader := strconv.FormatInt(time.Now().Unix(), 10)
	resp = ts.do(t, http.MethodPost, "/webhooks/orders", json.RawMessage(body), map[string]string{
		webhook.TimestampHeader: tsHeader,
		webhook.SignatureHeader: webhook.SignOrder(orderSecret, tsHeader, body),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("order webhook status = %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodGet, "/admin/api/entries?status=purchased", nil, nil)
	var page model.EntryPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if page.Total != 1 || page.Entries[0].ID != created.ID {
		t.Errorf("purchased entries = %+v", page)
	}

	resp = ts.do(t, http.MethodPost, "/admin/api/entries/"+strconv.FormatInt(created.ID, 10)+"/remind", nil,
		map[string]string{handler.CSRFHeader: token})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("remind purchased status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	ts := setupServer(t, nil)
	ts.login(t)

	if resp := ts.do(t, http.MethodGet, "/admin/api/stats", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodPost, "/admin/logout", nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodGet, "/admin/api/stats", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("stats after logout status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestCaptureRateLimited(t *testing.T) {
	ts := setupServer(t, func(c *config.Config) { c.CaptureRateLimit = 2 })

	in := map[string]any{"email": "a@example.com", "product_id": 1}
	for i := 0; i < 2; i++ {
		if resp := ts.do(t, http.MethodPost, "/api/capture", in, nil); resp.StatusCode != http.StatusCreated {
			t.Fatalf("capture %d status = %d", i, resp.StatusCode)
		}
	}
	resp := ts.do(t, http.MethodPost, "/api/capture", in, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", resp.Header.Get("Retry-After"))
	}

	// Other public endpoints are not counted against the capture budget.
	if resp := ts.do(t, http.MethodGet, "/api/capture/config", nil, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("config status = %d", resp.StatusCode)
	}
}

func TestStripeWebhookDisabledByDefault(t *testing.T) {
	ts := setupServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/webhooks/stripe", map[string]string{}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestStartStop(t *testing.T) {
	ts := setupServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ts.srv.Start(ctx)
	if !ts.srv.Scheduler().Status().Running {
		t.Error("scheduler not running after Start")
	}
	cancel()
	ts.srv.Stop()
	if ts.srv.Scheduler().Status().Running {
		t.Error("scheduler still running after Stop")
	}
}
