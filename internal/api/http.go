// Package api exposes the calculator, accounts and saved plans over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/api/swagger"
	"github.com/solarafrica/solarplanner/internal/auth"
	"github.com/solarafrica/solarplanner/internal/cache"
	"github.com/solarafrica/solarplanner/internal/cron"
	"github.com/solarafrica/solarplanner/internal/plans"
	"github.com/solarafrica/solarplanner/internal/storage"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Store      Pinger
	Calculator *cache.Calculator
	Auth       *auth.Service
	Plans      *plans.Service

	// Jobs backs the admin recalculation endpoints.
	Jobs           storage.JobStore
	Alerter        cron.Alerter
	RecalcSchedule string
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

type Server struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

// optionalPermission lets anonymous requests through and enforces obj/act
// for authenticated ones.
func optionalPermission(a *auth.Service, obj, act string) func(http.Handler) http.Handler {
	guard := a.RequirePermission(obj, act, deny)
	return func(next http.Handler) http.Handler {
		guarded := guard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.UserID(r.Context()) == "" {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

// NewRouter wires every route onto a chi router.
func NewRouter(logger zerolog.Logger, deps Dependencies) *chi.Mux {
	calc := &calculatorHandler{calc: deps.Calculator}
	authH := &authHandler{svc: deps.Auth}
	plansH := &plansHandler{svc: deps.Plans}
	adminH := &adminHandler{
		jobs:            deps.Jobs,
		recalc:          deps.Plans,
		alerter:         deps.Alerter,
		defaultSchedule: deps.RecalcSchedule,
	}

	readPlans := deps.Auth.RequirePermission("plans", "read", deny)
	writePlans := deps.Auth.RequirePermission("plans", "write", deny)
	useCalculator := optionalPermission(deps.Auth, "calculator", "use")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(&logger))
	router.Use(middleware.Recoverer)
	router.Use(instrument)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, r, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readyz: db ping failed")
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	router.Mount("/swagger", http.StripPrefix("/swagger", swagger.Handler()))

	router.Route("/api", func(r chi.Router) {
		r.Use(deps.Auth.Middleware(deny))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			ok(w, req, http.StatusOK, "Solar planner API is running", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})

		r.Route("/calculator", func(r chi.Router) {
			r.With(useCalculator).Post("/calculate", calc.Calculate)
			r.With(useCalculator).Post("/validate", calc.Validate)
			r.Get("/devices", calc.Devices)
			r.Get("/sunlight", calc.Sunlight)
			r.Get("/locations", calc.Locations)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authH.Register)
			r.Post("/login", authH.Login)
			r.Get("/me", authH.Me)
			r.Post("/logout", authH.Logout)
			r.Put("/profile", authH.UpdateProfile)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/shared/{token}", plansH.Shared)
			r.With(writePlans).Post("/", plansH.Create)
			r.With(readPlans).Get("/", plansH.List)
			r.With(optionalPermission(deps.Auth, "plans", "read")).Get("/{id}", plansH.Get)
			r.With(writePlans).Put("/{id}", plansH.Update)
			r.With(writePlans).Delete("/{id}", plansH.Delete)
			r.With(writePlans).Post("/{id}/duplicate", plansH.Duplicate)
			r.With(writePlans).Post("/{id}/share", plansH.Share)
		})

		r.Route("/admin/recalculation", func(r chi.Router) {
			r.With(deps.Auth.RequirePermission("settings", "read", deny)).Get("/", adminH.Status)
			r.With(deps.Auth.RequirePermission("settings", "write", deny)).Put("/schedule", adminH.SetSchedule)
			r.With(deps.Auth.RequirePermission("settings", "write", deny)).Post("/run", adminH.Run)
		})
	})

	return router
}

func NewServer(logger zerolog.Logger, config Config) *Server {
	router := NewRouter(logger, config.Dependencies)
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("starting server")
		serverErrors <- s.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("graceful shutdown failed")
			return s.server.Close()
		}
	}
	return nil
}
