package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/orcest-ai/rainymodel/api"
	"github.com/orcest-ai/rainymodel/internal/catalog"
	"github.com/orcest-ai/rainymodel/internal/planner"
	"github.com/orcest-ai/rainymodel/internal/upstream"
	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler serves the service's liveness/readiness surface and the
// discovery endpoints (GET /, /v1/models, /v1/providers, /v1/auto/config)
// that describe the Deployment Catalog without exposing the chat pipeline.
type HealthHandler struct {
	logger   *zap.Logger
	checks   []HealthCheck
	mu       sync.RWMutex
	version  string
	cat      *catalog.Catalog
	registry *upstream.Registry
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse is the body returned by /health, /healthz and /ready.
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                 `json:"service,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Providers []string               `json:"providers,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler builds a HealthHandler with no catalog/registry wired;
// call WithCatalog/WithRegistry/WithVersion to attach them once available.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		checks: make([]HealthCheck, 0),
	}
}

// WithVersion attaches the build version reported by /health and /version.
func (h *HealthHandler) WithVersion(version string) *HealthHandler {
	h.version = version
	return h
}

// WithCatalog attaches the Deployment Catalog backing /v1/providers.
func (h *HealthHandler) WithCatalog(cat *catalog.Catalog) *HealthHandler {
	h.cat = cat
	return h
}

// WithRegistry attaches the Upstream Registry backing /health's providers list.
func (h *HealthHandler) WithRegistry(registry *upstream.Registry) *HealthHandler {
	h.registry = registry
	return h
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth implements GET /health: {status, service, version}.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := ServiceHealthResponse{
		Status:    "healthy",
		Service:   "rainymodel",
		Version:   h.version,
		Timestamp: time.Now(),
	}
	if h.registry != nil {
		status.Providers = h.registry.List()
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz implements GET /healthz (Kubernetes liveness probe).
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	status := ServiceHealthResponse{
		Status:    "healthy",
		Service:   "rainymodel",
		Timestamp: time.Now(),
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleReady implements GET /ready (readiness probe): every registered
// HealthCheck must pass for the service to report healthy.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := ServiceHealthResponse{
		Status:    "healthy",
		Service:   "rainymodel",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion implements GET /version.
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}
		WriteSuccess(w, info)
	}
}

// HandleRoot implements GET /: a static service descriptor.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.RootResponse{
		Service:     "rainymodel",
		Version:     h.version,
		Description: "Tiered LLM reverse proxy with policy-based fallback routing.",
		Endpoints: []string{
			"/health", "/v1/models", "/v1/providers", "/v1/auto/config",
			"/v1/chat/completions", "/dashboard",
		},
	})
}

// HandleModels implements GET /v1/models: the closed set of virtual model
// aliases the gateway exposes.
func (h *HealthHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.ModelListResponse{Object: "list", Data: api.KnownModels})
}

// HandleProviders implements GET /v1/providers: the richer per-deployment
// view of the catalog, a SPEC_FULL.md supplement over the base model list.
func (h *HealthHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	out := make([]api.ProviderInfo, 0)
	if h.cat != nil {
		for _, alias := range h.cat.Aliases() {
			for _, d := range h.cat.DeploymentsFor(alias) {
				out = append(out, api.ProviderInfo{
					Upstream:    d.RouteInfo.Upstream,
					Tier:        string(d.Tier),
					Route:       string(d.RouteInfo.Route),
					Model:       d.RouteInfo.Model,
					Alias:       d.Alias,
					Description: d.Description,
				})
			}
		}
	}
	WriteSuccess(w, out)
}

// HandleAutoConfig implements GET /v1/auto/config: the resolved router
// settings plus a summary of each policy's tier order.
func (h *HealthHandler) HandleAutoConfig(settings api.AutoConfigResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, settings)
	}
}

// AutoConfigFromRouterSettings builds the GET /v1/auto/config payload from
// router settings and the planner's policy tables.
func AutoConfigFromRouterSettings(numRetries, timeoutS, retryAfterS, allowedFails, cooldownS int) api.AutoConfigResponse {
	policies := map[string][]string{}
	for _, p := range []planner.Policy{planner.PolicyAuto, planner.PolicyFree, planner.PolicyPremium, planner.PolicyUncensored} {
		policies[string(p)] = tierOrderStrings(p)
	}
	return api.AutoConfigResponse{
		NumRetries:   numRetries,
		TimeoutS:     timeoutS,
		RetryAfterS:  retryAfterS,
		AllowedFails: allowedFails,
		CooldownS:    cooldownS,
		Policies:     policies,
	}
}

func tierOrderStrings(p planner.Policy) []string {
	switch p {
	case planner.PolicyAuto, planner.PolicyFree:
		return []string{"free-hf", "free-ollamafree", "internal", "direct-deepseek", "direct-gemini", "direct-openai", "direct-xai", "direct-claude", "premium"}
	case planner.PolicyPremium:
		return []string{"direct-claude", "direct-openai", "direct-xai", "direct-gemini", "direct-deepseek", "premium", "free-hf", "free-ollamafree", "internal"}
	case planner.PolicyUncensored:
		return []string{"internal", "free-ollamafree", "direct-deepseek", "direct-xai", "free-hf", "direct-gemini", "direct-openai", "direct-claude", "premium"}
	default:
		return nil
	}
}
