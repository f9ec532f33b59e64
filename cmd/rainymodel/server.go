// Package main wires RainyModel's components into a running HTTP service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/orcest-ai/rainymodel/api/handlers"
	"github.com/orcest-ai/rainymodel/config"
	"github.com/orcest-ai/rainymodel/internal/catalog"
	"github.com/orcest-ai/rainymodel/internal/hfgate"
	"github.com/orcest-ai/rainymodel/internal/metrics"
	"github.com/orcest-ai/rainymodel/internal/pipeline"
	"github.com/orcest-ai/rainymodel/internal/planner"
	"github.com/orcest-ai/rainymodel/internal/server"
	"github.com/orcest-ai/rainymodel/internal/upstream"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// serverSettings collects the environment-derived knobs server.go needs
// beyond the declarative config document.
type serverSettings struct {
	httpPort    int
	metricsPort int
	masterKey   string
	corsOrigins []string
}

func loadServerSettings() serverSettings {
	s := serverSettings{httpPort: 8080, metricsPort: 9090}
	if v := os.Getenv("RAINYMODEL_HTTP_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &s.httpPort)
	}
	if v := os.Getenv("RAINYMODEL_METRICS_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &s.metricsPort)
	}
	s.masterKey = os.Getenv("RAINYMODEL_MASTER_KEY")
	if v := os.Getenv("RAINYMODEL_CORS_ORIGINS"); v != "" {
		s.corsOrigins = strings.Split(v, ",")
	}
	return s
}

// ollamaHostSubstrings collects the configured Ollama base URLs, used by
// catalog.Classify's rule 9 to recognize internal-tier deployments.
func ollamaHostSubstrings() []string {
	var hosts []string
	for _, env := range []string{"OLLAMA_PRIMARY_URL", "OLLAMA_SECONDARY_URL", "OLLAMA_BASE_URL"} {
		if v := os.Getenv(env); v != "" {
			hosts = append(hosts, v)
		}
	}
	return hosts
}

// Server is RainyModel's top-level process: the Deployment Catalog, Policy
// Planner, Upstream Registry, Request Pipeline, metrics, HTTP handlers and
// middleware chain, plus the two Manager-governed listeners (API + metrics).
type Server struct {
	logger   *zap.Logger
	settings serverSettings

	cat            *catalog.Catalog
	gate           *hfgate.Gate
	pl             *planner.Planner
	registry       *upstream.Registry
	pipe           *pipeline.Pipeline
	routerSettings config.RouterSettingsRaw

	collector *metrics.Collector
	analytics *metrics.AnalyticsStore

	chatHandler      *handlers.ChatHandler
	healthHandler    *handlers.HealthHandler
	dashboardHandler *handlers.DashboardHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	wg sync.WaitGroup
}

// NewServer builds every component of the service from the loaded config
// document and process environment. It does not start any listener.
func NewServer(doc *config.Document, logger *zap.Logger) *Server {
	s := &Server{logger: logger, settings: loadServerSettings()}

	entries := make([]catalog.Entry, 0, len(doc.ModelList))
	for _, e := range doc.ModelList {
		entries = append(entries, catalog.Entry{
			ModelName:     e.ModelName,
			LitellmParams: e.LitellmParams,
			ModelInfo:     e.ModelInfo,
		})
	}
	s.cat = catalog.Build(entries, ollamaHostSubstrings())

	s.gate = hfgate.New()
	s.pl = planner.New(s.cat, s.gate)

	rs := doc.RouterSettings()
	s.routerSettings = rs
	resilientCfg := upstream.ResilientConfig{
		NumRetries:     rs.NumRetries,
		PerCallTimeout: rs.Timeout(),
		RetryAfter:     rs.RetryAfter(),
		AllowedFails:   rs.AllowedFails,
		CooldownTime:   rs.Cooldown(),
	}
	s.registry = upstream.NewDefaultRegistry(resilientCfg)

	s.collector = metrics.NewCollector("rainymodel", logger)
	s.analytics = metrics.NewAnalyticsStore(10000, 2000)

	s.pipe = pipeline.New(s.cat, s.pl, s.gate, s.registry, s.analytics, s.collector, logger)

	s.chatHandler = handlers.NewChatHandler(s.pipe, logger)
	s.healthHandler = handlers.NewHealthHandler(logger).
		WithVersion(Version).
		WithCatalog(s.cat).
		WithRegistry(s.registry)
	s.dashboardHandler = handlers.NewDashboardHandler(s.analytics, s.settings.masterKey)

	logger.Info("server components initialized",
		zap.Int("aliases", len(s.cat.Aliases())),
		zap.Int("upstreams", s.registry.Len()),
	)
	return s
}

// Start builds the HTTP mux, wraps it in the middleware chain, and starts
// both the API listener and the side metrics listener, non-blocking.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.healthHandler.HandleRoot)
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("/v1/models", s.healthHandler.HandleModels)
	mux.HandleFunc("/v1/providers", s.healthHandler.HandleProviders)
	mux.HandleFunc("/v1/auto/config", s.healthHandler.HandleAutoConfig(
		handlers.AutoConfigFromRouterSettings(
			s.routerSettings.NumRetries, s.routerSettings.TimeoutS,
			s.routerSettings.RetryAfterS, s.routerSettings.AllowedFails, s.routerSettings.CooldownS,
		),
	))

	mux.HandleFunc("/v1/chat/completions", s.chatHandler.HandleCompletion)

	mux.HandleFunc("/dashboard", s.dashboardHandler.HandlePage)
	mux.HandleFunc("/dashboard/api/overview", s.dashboardHandler.HandleOverview)
	mux.HandleFunc("/dashboard/api/providers", s.dashboardHandler.HandleProviders)
	mux.HandleFunc("/dashboard/api/models", s.dashboardHandler.HandleModels)
	mux.HandleFunc("/dashboard/api/financial", s.dashboardHandler.HandleFinancial)
	mux.HandleFunc("/dashboard/api/timeseries", s.dashboardHandler.HandleTimeseries)
	mux.HandleFunc("/dashboard/api/errors", s.dashboardHandler.HandleErrors)
	mux.HandleFunc("/dashboard/api/policies", s.dashboardHandler.HandlePolicies)
	mux.HandleFunc("/dashboard/api/fallbacks", s.dashboardHandler.HandleFallbacks)
	mux.HandleFunc("/dashboard/api/request-log", s.dashboardHandler.HandleRequestLog)
	mux.HandleFunc("/dashboard/api/system-log", s.dashboardHandler.HandleSystemLog)

	skipAuthPaths := []string{
		"/", "/health", "/healthz", "/ready", "/readyz", "/version",
		"/v1/models", "/v1/providers", "/v1/auto/config",
	}

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(s.settings.corsOrigins),
		RateLimiter(20, 40, s.logger),
		APIKeyRateLimiter(60*time.Second, 60, s.logger),
		APIKeyAuth(s.settings.masterKey, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.settings.httpPort),
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.settings.httpPort))

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// startMetricsServer exposes the Prometheus scrape endpoint on its own
// port, separate from the API listener.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.settings.metricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.settings.metricsPort))
	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM or a listener error, then
// shuts every component down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops both listeners concurrently — the API and
// metrics servers are independent, so there is no reason the metrics
// listener's shutdown should wait on the API listener's drain timeout.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	var g errgroup.Group
	if s.httpManager != nil {
		g.Go(func() error { return s.httpManager.Shutdown(ctx) })
	}
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Shutdown(ctx) })
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
	}

	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
