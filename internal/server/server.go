package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/luca0405/beanstalker/internal/email"
	"github.com/luca0405/beanstalker/internal/fallback"
	"github.com/luca0405/beanstalker/internal/handler"
	"github.com/luca0405/beanstalker/internal/images"
	"github.com/luca0405/beanstalker/internal/metrics"
	"github.com/luca0405/beanstalker/internal/middleware"
	"github.com/luca0405/beanstalker/internal/push"
	"github.com/luca0405/beanstalker/internal/store"
	"github.com/luca0405/beanstalker/internal/verifier"
)

// Config is everything the server needs beyond the database.
type Config struct {
	Push          push.Config
	Images        images.Config
	EmailToken    string
	EmailFrom     string
	BaseURL       string
	SecureCookies bool
}

type Server struct {
	db          *sql.DB
	hub         *verifier.Hub
	worker      *verifier.Worker
	notifier    *push.Notifier
	fallbackMgr *fallback.Manager

	authH     *handler.AuthHandler
	orderH    *handler.OrderHandler
	pushH     *handler.PushHandler
	menuH     *handler.MenuHandler
	eventH    *handler.EventHandler
	fallbackH *handler.FallbackHandler

	sessionStore *store.SessionStore
	userStore    *store.UserStore
	seenStore    *store.SeenStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	orderStore := store.NewOrderStore(db)
	menuStore := store.NewMenuStore(db)
	pushStore := store.NewPushStore(db)
	seenStore := store.NewSeenStore(db)

	pushLogger := logger.With("component", "push")

	transport := push.NewWebPushTransport(cfg.Push)
	adapter := push.NewAdapter(transport, pushLogger)
	notifier := push.NewNotifier(adapter, pushStore, pushLogger)

	emailClient := email.NewClient(cfg.EmailToken, cfg.EmailFrom, cfg.BaseURL)
	imageStore := images.NewStore(cfg.Images, logger)

	hub := verifier.NewHub(logger.With("component", "pages"))
	display := &logDisplayer{logger: logger.With("component", "display")}
	worker := verifier.NewWorker(hub, display, logger)

	fallbackMgr := fallback.NewManager(orderStore, seenStore, func(title, body string) {
		display.show(title, body)
	}, logger.With("component", "fallback"))

	rateLimiter := middleware.NewRateLimiter()

	return &Server{
		db:          db,
		hub:         hub,
		worker:      worker,
		notifier:    notifier,
		fallbackMgr: fallbackMgr,

		authH:     handler.NewAuthHandler(userStore, sessionStore, emailClient, rateLimiter, cfg.SecureCookies, logger.With("component", "auth")),
		orderH:    handler.NewOrderHandler(orderStore, userStore, notifier, emailClient, logger.With("component", "orders")),
		pushH:     handler.NewPushHandler(pushStore, notifier, cfg.Push.VAPIDPublicKey, logger.With("component", "push_handler")),
		menuH:     handler.NewMenuHandler(menuStore, imageStore, logger.With("component", "menu")),
		eventH:    handler.NewEventHandler(worker),
		fallbackH: handler.NewFallbackHandler(fallbackMgr),

		sessionStore: sessionStore,
		userStore:    userStore,
		seenStore:    seenStore,
		rateLimiter:  rateLimiter,
		logger:       logger,
	}
}

// SeenStore returns the seen-marker store for cleanup tasks.
func (s *Server) SeenStore() *store.SeenStore {
	return s.seenStore
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// FallbackManager returns the fallback manager for shutdown.
func (s *Server) FallbackManager() *fallback.Manager {
	return s.fallbackMgr
}

// Notifier returns the push notifier.
func (s *Server) Notifier() *push.Notifier {
	return s.notifier
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register", s.rateLimited(s.authH.Register))
	outerMux.HandleFunc("POST /api/login", s.authH.Login)
	outerMux.HandleFunc("GET /api/menu", s.menuH.List)
	outerMux.HandleFunc("GET /api/menu/{id}/image", s.menuH.GetImage)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", metrics.Handler())

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(protectedMux))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return metrics.Middleware(logged)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/user", s.authH.Me)

	// Orders
	mux.HandleFunc("POST /api/orders", s.orderH.Create)
	mux.HandleFunc("GET /api/orders", s.orderH.List)
	mux.HandleFunc("GET /api/orders/{id}", s.orderH.Get)

	// Push subscriptions
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/unsubscribe", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	// Device-side notification events
	mux.HandleFunc("POST /api/push/event", s.eventH.PushEvent)
	mux.HandleFunc("POST /api/push/clicked", s.eventH.Clicked)

	// In-app fallback channel
	mux.HandleFunc("POST /api/fallback/enable", s.fallbackH.Enable)
	mux.HandleFunc("POST /api/fallback/disable", s.fallbackH.Disable)
	mux.HandleFunc("GET /api/fallback/status", s.fallbackH.Status)

	// Admin
	mux.Handle("GET /api/admin/orders", middleware.RequireAdmin(http.HandlerFunc(s.orderH.ListAll)))
	mux.Handle("POST /api/admin/orders/{id}/status", middleware.RequireAdmin(http.HandlerFunc(s.orderH.UpdateStatus)))
	mux.Handle("POST /api/admin/push/test", middleware.RequireAdmin(http.HandlerFunc(s.adminTestHandler)))
	mux.Handle("POST /api/admin/menu", middleware.RequireAdmin(http.HandlerFunc(s.menuH.Create)))
	mux.Handle("PUT /api/admin/menu/{id}", middleware.RequireAdmin(http.HandlerFunc(s.menuH.Update)))
	mux.Handle("DELETE /api/admin/menu/{id}", middleware.RequireAdmin(http.HandlerFunc(s.menuH.Delete)))
	mux.Handle("POST /api/admin/menu/{id}/image", middleware.RequireAdmin(http.HandlerFunc(s.menuH.UploadImage)))

	// Page verification channel
	mux.HandleFunc("GET /ws", verifier.HandleWebSocket(s.hub, s.worker))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) adminTestHandler(w http.ResponseWriter, r *http.Request) {
	testID, rep := s.notifier.SendTestToAdmins(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"test_id": testID,
		"report":  rep,
	})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// logDisplayer stands in for OS-level notification rendering.
type logDisplayer struct {
	logger *slog.Logger
}

func (d *logDisplayer) Display(p push.Payload) error {
	d.show(p.Title, p.Body)
	return nil
}

func (d *logDisplayer) show(title, body string) {
	d.logger.Info("notification displayed", "title", title, "body", body)
}
