package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agrivia/accounts/internal/config"
	"github.com/agrivia/accounts/internal/handler"
	"github.com/agrivia/accounts/internal/server/middleware"
	"github.com/agrivia/accounts/internal/service"
	"github.com/agrivia/accounts/internal/store"
	"github.com/agrivia/accounts/internal/telemetry"
)

// Deps are the collaborators the server routes to. Metrics may be nil.
type Deps struct {
	Store    *store.Store
	Accounts *service.AccountService
	Guard    *service.Guard
	Sessions *service.SessionStore
	Metrics  *telemetry.Metrics
	Version  string
}

// Server is the top-level HTTP server. It owns the Chi router and serves the
// JSON API, the admin console and the operational endpoints.
type Server struct {
	cfg        *config.Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	if err := s.setupRouter(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRouter() error {
	web, err := handler.NewWebHandler(s.deps.Accounts, s.deps.Metrics, s.logger, handler.WebOptions{
		SecureCookies: s.cfg.Server.SecureCookies,
		SessionMaxAge: s.deps.Sessions.MaxLifetime(),
	})
	if err != nil {
		return fmt.Errorf("load console templates: %w", err)
	}
	api := handler.NewAPIHandler(s.deps.Accounts, s.deps.Metrics, s.logger)
	loginLimit := middleware.LoginRateLimit(s.cfg.Auth.LoginRatePerMinute)

	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	if s.cfg.Server.TrustedProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.deps.Metrics.Instrument)

	// --- Health checks and metrics (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.baseURL(), s.deps.Version).ServeSpec)

	// --- JSON API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Server.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))

		r.With(loginLimit).Post("/login", api.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(s.deps.Guard))
			r.Get("/me", api.Me)
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.deps.Guard))
			r.Get("/", api.ListAccounts)
			r.Post("/", api.CreateAccount)
			r.Put("/{id}/status", api.SetStatus)
			r.Put("/{id}/password", api.ResetPassword)
			r.Put("/{id}/due-date", api.SetDueDate)
		})
	})

	// --- Admin console ---
	r.Route("/admin", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/admin/users", http.StatusFound)
		})
		r.Get("/login", web.LoginPage)
		r.With(loginLimit).Post("/login", web.Login)
		r.Get("/logout", web.Logout)
		r.Post("/logout", web.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminSession(s.deps.Guard))
			r.Get("/users", web.Users)
			r.Get("/users/new", web.NewUserPage)
			r.Post("/users/new", web.CreateUser)
			r.Post("/users/{id}/status", web.SetStatus)
			r.Get("/users/{id}/password", web.PasswordPage)
			r.Post("/users/{id}/password", web.ResetPassword)
			r.Get("/users/{id}/due-date", web.DueDatePage)
			r.Post("/users/{id}/due-date", web.SetDueDate)
		})
	})

	s.router = r
	return nil
}

func (s *Server) baseURL() string {
	scheme := "http"
	if s.cfg.Server.SecureCookies {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.cfg.Server.Addr())
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the credential store is
// reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, httpStatus := "ok", http.StatusOK
	check := "ok"
	if err := s.deps.Store.Ping(ctx); err != nil {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
		check = "error: " + err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": map[string]string{"store": check},
	})
}

// ListenAndServe starts the HTTP server and the expired-session sweeper, and
// blocks until a SIGINT or SIGTERM is received. It then performs a graceful
// shutdown, draining in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Addr()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		s.deps.Sessions.RunSweeper(sweepCtx, s.cfg.Auth.SessionSweepInterval)
	}()
	defer func() {
		stopSweeper()
		<-sweeperDone
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
