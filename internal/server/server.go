// Package server wires the job board together and runs the HTTP server.
//
// New is the composition root: it opens the database, builds every service
// and handler, and mounts them on a chi router.
//
//	sqlite.DB ─┬─ AccountService ─┬─ AuthHandler
//	           ├─ TagService      ├─ ListingHandler
//	           ├─ ListingService  │
//	           ├─ ClickTracker    │
//	           └─ PublishService ─┘ (+ payment.Gateway, storage, markdown)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/jobboard/internal/auth"
	"github.com/sakif/jobboard/internal/handler"
	"github.com/sakif/jobboard/internal/markdown"
	"github.com/sakif/jobboard/internal/metrics"
	"github.com/sakif/jobboard/internal/middleware"
	"github.com/sakif/jobboard/internal/payment"
	sqliteRepo "github.com/sakif/jobboard/internal/repository/sqlite"
	"github.com/sakif/jobboard/internal/service"
	"github.com/sakif/jobboard/internal/storage"
	"github.com/sakif/jobboard/internal/web"
)

// Config holds server configuration.
type Config struct {
	Port       int
	DBPath     string
	LogoDir    string
	JWTSecret  string
	SessionTTL time.Duration
	Pricing    service.Pricing
}

// Deps are the collaborators chosen by the caller rather than built from
// Config. Passwords may be nil, in which case bcrypt runs at its default
// cost.
type Deps struct {
	Gateway   payment.Gateway
	Passwords *auth.PasswordService
}

// Server owns the router and the database connection.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	registry *prometheus.Registry
}

func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Gateway == nil {
		return nil, errors.New("server: a payment gateway is required")
	}
	if deps.Passwords == nil {
		deps.Passwords = auth.NewPasswordService()
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: metrics.NewRegistry(),
	}

	if err := s.setupRoutes(deps); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// DB exposes the database for tests that need to arrange state directly.
func (s *Server) DB() *sqliteRepo.DB {
	return s.db
}

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes builds the dependency graph and mounts:
//
//	GET  /static/*        embedded CSS
//	GET  /storage/*       uploaded logos
//	GET  /metrics         Prometheus
//	GET  /healthz         database ping
//	GET  /                index with ?s= and ?tag=
//	GET  /new             publication form
//	POST /new             publication workflow
//	GET  /dashboard       owner's listings (login required)
//	GET  /login, /register and POST /login, /register, /logout
//	GET  /{slug}          listing detail
//	GET  /{slug}/apply    click + redirect
func (s *Server) setupRoutes(deps Deps) error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.SessionTTL)
	if err != nil {
		return err
	}
	logos, err := storage.NewLocalStore(s.config.LogoDir)
	if err != nil {
		return err
	}
	views, err := handler.NewViews(s.logger)
	if err != nil {
		return err
	}
	m := metrics.New(s.registry)

	accounts := service.NewAccountService(s.db, deps.Passwords, deps.Gateway, s.logger)
	tags := service.NewTagService(s.db, s.logger)
	listings := service.NewListingService(s.db, s.logger)
	clicks := service.NewClickTracker(s.db, s.db, m, s.logger)
	publish := service.NewPublishService(service.PublishDeps{
		Accounts: accounts,
		Listings: s.db,
		Gateway:  deps.Gateway,
		Logos:    logos,
		Renderer: markdown.NewRenderer(),
		Pricing:  s.config.Pricing,
		Metrics:  m,
		Logger:   s.logger,
	})

	listingHandler := handler.NewListingHandler(listings, tags, publish, clicks, tokens, s.config.Pricing, views, s.logger)
	authHandler := handler.NewAuthHandler(accounts, tokens, views, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(m))

	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	s.router.Handle("/storage/*", http.StripPrefix("/storage/", noDirListing(http.FileServer(http.Dir(logos.Dir())))))
	s.router.Handle("/metrics", metrics.Handler(s.registry))
	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/", listingHandler.HandleIndex)
		r.Get("/new", listingHandler.HandleCreate)
		r.Post("/new", listingHandler.HandleStore)
		r.With(auth.RequireAuth(tokens)).Get("/dashboard", listingHandler.HandleDashboard)

		r.Get("/login", authHandler.HandleLoginForm)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/register", authHandler.HandleRegisterForm)
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/logout", authHandler.HandleLogout)

		// chi matches the static paths above before these patterns.
		r.Get("/{slug}", listingHandler.HandleShow)
		r.Get("/{slug}/apply", listingHandler.HandleApply)
	})

	return nil
}

// noDirListing hides directory indexes of the logo directory.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
