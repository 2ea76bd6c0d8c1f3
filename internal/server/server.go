package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/subtrack/internal/api/v1"
	"github.com/gosuda/subtrack/internal/api/webhook"
	"github.com/gosuda/subtrack/internal/api/ws"
	"github.com/gosuda/subtrack/internal/config"
	"github.com/gosuda/subtrack/internal/domain"
	"github.com/gosuda/subtrack/internal/messenger/slack"
	"github.com/gosuda/subtrack/internal/server/middleware"
	redisstore "github.com/gosuda/subtrack/internal/store/redis"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the routes are served from. Optional ones may be nil.
type Deps struct {
	Ingestor webhook.Ingestor
	Reports  v1.Reports
	Trigger  v1.ReportTrigger // optional: POST /api/v1/reports/daily/trigger
	PubSub   ws.Subscriber    // optional: GET /ws/events
	Slack    *slack.Handler   // optional: POST /slack/commands, /slack/events
	Metrics  http.Handler     // optional: GET /metrics
	Health   Pinger           // optional: checked by GET /healthz
	Clock    func() time.Time
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired. ctx bounds background work
// such as rate limiter cleanup.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	// Forwarded headers are client-controlled unless a proxy overwrites them;
	// without TrustProxy the socket address keys logs and rate limits.
	if cfg.Server.TrustProxy {
		router.Use(chimw.RealIP)
	}
	router.Use(middleware.RequestLogger)
	router.Use(chimw.Recoverer)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}

	// Billing platform callback. Unauthenticated; the platform cannot sign requests.
	router.With(middleware.RateLimitByIP(ctx, cfg.Server.WebhookRPS, cfg.Server.WebhookBurst)).
		Post("/gc/webhook", webhook.NewHandler(deps.Ingestor).ServeHTTP)

	// Report API.
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}).Handler)
		r.Use(middleware.Auth(cfg.Server.APIToken, cfg.Server.APIJWTSecret))

		apiConfig := huma.DefaultConfig("Subtrack API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)

		v1.RegisterReportRoutes(api, deps.Reports, v1.ReportSettings{
			Location: cfg.Report.Location,
			Label:    cfg.Report.Label,
			Clock:    deps.Clock,
		})
		if deps.Trigger != nil {
			v1.RegisterTriggerRoutes(api, deps.Trigger)
		}
	})

	// Slack slash commands and Events API, only with a signing secret configured.
	if deps.Slack != nil {
		router.Route("/slack", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, cfg.Server.WebhookRPS, cfg.Server.WebhookBurst))
			r.Post("/commands", deps.Slack.HandleCommands)
			r.Post("/events", deps.Slack.HandleEvents)
		})
	}

	// Live event feed, only with Redis configured.
	if deps.PubSub != nil {
		hub := ws.NewHub(deps.PubSub, redisstore.EventsChannel(domain.SourceGetCourse), cfg.Server.CORSOrigins)
		router.Route("/ws", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Server.APIToken, cfg.Server.APIJWTSecret))
			r.Get("/events", hub.ServeEvents)
		})
	}

	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := deps.Health.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("healthz: store unreachable")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return s
}

// Handler exposes the router for in-process testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("server: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
