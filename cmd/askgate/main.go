// Command askgate runs the agent coordination service: it routes questions
// to expert agents by topic, gates their answers on per-topic confidence
// thresholds, and escalates low-confidence answers to human reviewers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	aghttp "github.com/knappson/askgate/internal/adapter/http"

	// Notification sinks register themselves with the notifier registry.
	_ "github.com/knappson/askgate/internal/adapter/github"
	_ "github.com/knappson/askgate/internal/adapter/slack"

	"github.com/knappson/askgate/internal/adapter/agenthttp"
	agnats "github.com/knappson/askgate/internal/adapter/nats"
	"github.com/knappson/askgate/internal/adapter/otel"
	"github.com/knappson/askgate/internal/adapter/postgres"
	"github.com/knappson/askgate/internal/adapter/ristretto"
	"github.com/knappson/askgate/internal/adapter/ws"
	"github.com/knappson/askgate/internal/config"
	"github.com/knappson/askgate/internal/domain/routing"
	"github.com/knappson/askgate/internal/logger"
	"github.com/knappson/askgate/internal/port/notifier"
	"github.com/knappson/askgate/internal/resilience"
	"github.com/knappson/askgate/internal/service"
)

const serviceName = "askgate"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"topics", len(cfg.Routing.Topics),
		"agents", len(cfg.Routing.Agents),
	)

	ctx := context.Background()

	// --- Routing ---
	table, err := routing.NewTable(cfg.Routing.DefaultThreshold, cfg.Routing.Topics, cfg.Routing.Agents)
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}

	// --- Telemetry ---
	shutdownOtel, err := otel.Setup(ctx, serviceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	store := postgres.NewStore(pool, cfg.Session.TTL)

	var events service.EventPublisher
	if cfg.NATS.URL != "" {
		queue, err := agnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		events = queue
	}

	dedup, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer dedup.Close()

	// --- Notification sinks ---
	notifiers, err := buildNotifiers(cfg.Notify.Sinks)
	if err != nil {
		return fmt.Errorf("notifiers: %w", err)
	}
	notifySvc := service.NewNotificationService(notifiers, dedup, cfg.Notify.DedupTTL, cfg.Notify.Timeout)
	slog.Info("notification sinks configured", "count", notifySvc.NotifierCount())

	// --- Agent client ---
	agents := agenthttp.NewClient(cfg.Agent.InvokeTimeout, cfg.Agent.HealthTimeout)
	agents.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	hub := ws.NewHub()
	coordinator := service.NewCoordinator(table, store, agents, notifySvc, hub, events, metrics, cfg.Agent.InvokeTimeout)
	sessionSvc := service.NewSessionService(store, table, hub, events)
	escalationSvc := service.NewEscalationService(store, coordinator, hub, events, metrics)

	// --- HTTP ---
	handlers := aghttp.NewHandlers(coordinator, sessionSvc, escalationSvc, table, agents)

	r := chi.NewRouter()
	r.Use(aghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(aghttp.RequestID)
	r.Use(aghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware(serviceName))

	aghttp.MountRoutes(r, handlers, http.HandlerFunc(hub.HandleWS))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Agent invocations can run for minutes; the write timeout must
		// outlast the invoke timeout or long asks are cut off mid-response.
		WriteTimeout: cfg.Agent.InvokeTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// buildNotifiers instantiates every configured sink through the registry.
// A misconfigured sink is a startup error, not a silent no-op.
func buildNotifiers(sinks []config.Sink) ([]notifier.Notifier, error) {
	notifiers := make([]notifier.Notifier, 0, len(sinks))
	for _, sink := range sinks {
		n, err := notifier.New(sink.Provider, sink.Settings)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", sink.Provider, err)
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}
