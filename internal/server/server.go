package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/config"
	"github.com/dukerupert/mailbeforecart/internal/email"
	"github.com/dukerupert/mailbeforecart/internal/handler"
	"github.com/dukerupert/mailbeforecart/internal/middleware"
	"github.com/dukerupert/mailbeforecart/internal/recovery"
	"github.com/dukerupert/mailbeforecart/internal/reminder"
	"github.com/dukerupert/mailbeforecart/internal/store"
	ws "github.com/dukerupert/mailbeforecart/internal/websocket"
)

const (
	loginRateLimit     = 10
	rateLimitWindow    = time.Minute
	cleanupInterval    = time.Hour
	rateLimiterCleanup = 5 * time.Minute
)

type Server struct {
	db            *sql.DB
	cfg           *config.Config
	hub           *ws.Hub
	service       *recovery.Service
	scheduler     *reminder.Scheduler
	captureH      *handler.CaptureHandler
	webhookH      *handler.WebhookHandler
	authH         *handler.AuthHandler
	adminH        *handler.AdminHandler
	sessionStore  *store.SessionStore
	operatorStore *store.OperatorStore
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger

	wg sync.WaitGroup
}

func New(db *sql.DB, cfg *config.Config, mailer email.Mailer, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	cartStore := store.NewCartStore(db)
	customerStore := store.NewCustomerStore(db)
	settingsStore := store.NewSettingsStore(db)
	dispatchStore := store.NewDispatchStore(db)
	sessionStore := store.NewSessionStore(db)
	operatorStore := store.NewOperatorStore(db)

	site := reminder.Site{Name: cfg.SiteName, CartURL: cfg.CartURL}
	dispatcher := reminder.NewDispatcher(cartStore, dispatchStore, settingsStore, customerStore, mailer, site, logger,
		reminder.WithNotifier(hub))
	scheduler := reminder.NewScheduler(dispatcher, cfg.SchedulerInterval, logger)
	service := recovery.NewService(cartStore, customerStore, settingsStore, dispatcher, scheduler, logger,
		recovery.WithNotifier(hub))

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		service:       service,
		scheduler:     scheduler,
		captureH:      handler.NewCaptureHandler(service, logger),
		webhookH:      handler.NewWebhookHandler(service, cfg.Webhooks.OrderSecret, cfg.Webhooks.StripeSecret, logger),
		authH:         handler.NewAuthHandler(operatorStore, sessionStore, cfg.SecureCookies, logger),
		adminH:        handler.NewAdminHandler(service, logger),
		sessionStore:  sessionStore,
		operatorStore: operatorStore,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// Service returns the recovery service for in-process callers such as the CLI.
func (s *Server) Service() *recovery.Service {
	return s.service
}

// Scheduler returns the reminder scheduler.
func (s *Server) Scheduler() *reminder.Scheduler {
	return s.scheduler
}

// OperatorStore returns the operator store for account management.
func (s *Server) OperatorStore() *store.OperatorStore {
	return s.operatorStore
}

// Start launches the reminder scheduler and the cleanup loops. They run
// until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) {
	s.scheduler.Start(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.rateLimiter.Run(ctx, rateLimiterCleanup)
	}()
	go func() {
		defer s.wg.Done()
		s.cleanupSessions(ctx)
	}()
}

// Stop halts the scheduler and waits for the cleanup loops to exit. The
// context passed to Start must already be cancelled.
func (s *Server) Stop() {
	s.scheduler.Stop()
	s.wg.Wait()
}

func (s *Server) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessionStore.DeleteExpired(ctx)
			if err != nil {
				s.logger.Error("session cleanup", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", handler.Health(s.db))
	outerMux.Handle("POST /api/capture", s.rateLimited("capture", s.cfg.CaptureRateLimit, s.captureH.Create))
	outerMux.HandleFunc("GET /api/capture/exists", s.captureH.Exists)
	outerMux.HandleFunc("GET /api/capture/config", s.captureH.Config)
	outerMux.HandleFunc("POST /webhooks/orders", s.webhookH.Orders)
	outerMux.HandleFunc("POST /webhooks/stripe", s.webhookH.Stripe)
	outerMux.Handle("POST /admin/login", s.rateLimited("login", loginRateLimit, s.authH.Login))

	// Operator console, behind a session
	protectedMux := http.NewServeMux()
	s.registerAdminRoutes(protectedMux)

	authMiddleware := middleware.RequireOperator(s.sessionStore, s.operatorStore)
	outerMux.Handle("/admin/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) rateLimited(scope string, limit int, h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		return scope + ":" + middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, limit, rateLimitWindow)(h)
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/logout", s.authH.Logout)

	mux.HandleFunc("GET /admin/api/entries", s.adminH.ListEntries)
	mux.HandleFunc("GET /admin/api/entries/export", s.adminH.Export)
	mux.HandleFunc("POST /admin/api/entries/{id}/remind", s.adminH.Remind)
	mux.HandleFunc("GET /admin/api/entries/{id}/dispatches", s.adminH.History)
	mux.HandleFunc("POST /admin/api/entries/clear", s.adminH.Clear)

	mux.HandleFunc("GET /admin/api/stats", s.adminH.Stats)
	mux.HandleFunc("GET /admin/api/settings", s.adminH.GetSettings)
	mux.HandleFunc("PUT /admin/api/settings", s.adminH.UpdateSettings)

	mux.HandleFunc("GET /admin/api/scheduler", s.adminH.SchedulerStatus)
	mux.HandleFunc("POST /admin/api/scheduler/run", s.adminH.RunScheduler)
	mux.HandleFunc("POST /admin/api/scheduler/reset", s.adminH.ResetScheduler)

	mux.HandleFunc("GET /admin/ws", ws.HandleWebSocket(s.hub, s.cfg.AllowedOrigins, s.logger.With("component", "websocket")))
}
