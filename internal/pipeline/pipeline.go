// Package pipeline drives an inbound chat-completion request through the
// Policy Planner's ordered candidate list, calling the Upstream Adapter for
// each candidate in turn, falling back to the next one on failure, and
// recording exactly one terminal outcome per request in the Metrics
// Collector. It is the Request Pipeline component (§4.3).
//
// The pipeline never sees an http.ResponseWriter: RunUnary returns a
// result or a terminal Failure the caller renders, and OpenStream returns a
// Session the caller drains to write SSE frames, calling Finish once done.
// Keeping transport concerns out of this package is what lets the fallback
// loop, parameter passthrough, and metrics emission be exercised directly
// in tests without standing up an HTTP server.
package pipeline

import (
	"context"
	"time"

	"github.com/orcest-ai/rainymodel/internal/catalog"
	"github.com/orcest-ai/rainymodel/internal/hfgate"
	"github.com/orcest-ai/rainymodel/internal/metrics"
	"github.com/orcest-ai/rainymodel/internal/planner"
	"github.com/orcest-ai/rainymodel/internal/upstream"
	"github.com/orcest-ai/rainymodel/types"
	"go.uber.org/zap"
)

// DefaultAlias is the alias an unrecognised client-supplied model name is
// coerced to.
const DefaultAlias = "rainymodel/auto"

// KnownAliases is the closed set of virtual model names the proxy exposes.
var KnownAliases = []string{
	"rainymodel/auto",
	"rainymodel/chat",
	"rainymodel/code",
	"rainymodel/agent",
}

// CoerceAlias returns requested unchanged if it is one of KnownAliases,
// otherwise DefaultAlias.
func CoerceAlias(requested string) string {
	for _, a := range KnownAliases {
		if a == requested {
			return requested
		}
	}
	return DefaultAlias
}

// PassthroughKeys is the closed set of chat-completion fields the pipeline
// is allowed to overlay onto a deployment's upstream params.
var PassthroughKeys = []string{
	"temperature", "max_tokens", "top_p", "frequency_penalty",
	"presence_penalty", "stop", "n", "tools", "tool_choice",
	"response_format", "seed",
}

// Request is the entry contract the pipeline drives: an alias (already
// coerced by the caller), a normalised policy, an optional per-request
// provider override, the parsed messages, the closed-set passthrough
// fields present and non-null in the inbound body, and whether streaming
// was requested.
type Request struct {
	Alias            string
	Policy           planner.Policy
	ProviderOverride string
	Messages         []types.Message
	Passthrough      map[string]any
	IsStream         bool
}

// Headers is the set of observability headers the HTTP layer attaches to
// the response, success or failure.
type Headers struct {
	Route          string
	Upstream       string
	Model          string
	LatencyMS      int
	FallbackReason string
	Tried          []string
}

// UnaryResult is the outcome of a successful non-streaming RunUnary call.
type UnaryResult struct {
	Response *upstream.ChatResponse
	Headers  Headers
}

// Failure is the terminal 502 the pipeline returns once every candidate in
// the plan has failed, or the alias resolved to no deployments at all.
type Failure struct {
	Message string
	Headers Headers
}

// Pipeline wires the Catalog, Planner, HF-credit gate, Upstream Adapter
// registry, and Metrics Collector/AnalyticsStore into the fallback-driving
// request lifecycle.
type Pipeline struct {
	catalog   *catalog.Catalog
	planner   *planner.Planner
	gate      *hfgate.Gate
	registry  *upstream.Registry
	analytics *metrics.AnalyticsStore
	collector *metrics.Collector
	logger    *zap.Logger
}

// New builds a Pipeline over its collaborators. collector may be nil when
// Prometheus instrumentation isn't wired (e.g. in unit tests).
func New(cat *catalog.Catalog, pl *planner.Planner, gate *hfgate.Gate, reg *upstream.Registry, analytics *metrics.AnalyticsStore, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	return &Pipeline{catalog: cat, planner: pl, gate: gate, registry: reg, analytics: analytics, collector: collector, logger: logger}
}

// deploymentKey identifies a specific deployment for adapter-side retry and
// cooldown bookkeeping: the upstream label scoped by the concrete model, so
// two deployments sharing an upstream label don't share a circuit breaker.
func deploymentKey(d catalog.Deployment) string {
	return d.RouteInfo.Upstream + ":" + d.RouteInfo.Model
}

// buildParams assembles the opaque parameter bag handed to the Upstream
// Adapter: a shallow clone of the deployment's upstream params, with
// messages always overlaid, stream set to true for streaming requests, and
// the closed passthrough set copied in when present in the request.
func (p *Pipeline) buildParams(d catalog.Deployment, req Request) map[string]any {
	params := make(map[string]any, len(d.UpstreamParams)+len(PassthroughKeys)+2)
	for k, v := range d.UpstreamParams {
		params[k] = v
	}
	params["messages"] = req.Messages
	if req.IsStream {
		params["stream"] = true
	}
	for _, key := range PassthroughKeys {
		if v, ok := req.Passthrough[key]; ok && v != nil {
			params[key] = v
		}
	}
	return params
}

func floorMS(d time.Duration) int {
	return int(d / time.Millisecond)
}

// fallbackFromOf implements §4.3's "fallback_from = vendor label of the
// second-to-last element of tried when len(tried) > 1, else null" rule.
func fallbackFromOf(tried []string) string {
	if len(tried) > 1 {
		return tried[len(tried)-2]
	}
	return ""
}

// RunUnary drives the fallback loop for a non-streaming request, returning
// either a committed success or a Failure describing the exhausted plan.
// Exactly one RequestRecord is appended before either return.
func (p *Pipeline) RunUnary(ctx context.Context, req Request) (*UnaryResult, *Failure) {
	t0 := time.Now()
	plan := p.planner.Plan(req.Alias, req.Policy, req.ProviderOverride)
	if len(plan) == 0 {
		return nil, p.exhausted(req, t0, nil, "no deployments configured for alias "+req.Alias)
	}

	tried := make([]string, 0, len(plan))
	var lastErr error

	for i, d := range plan {
		tried = append(tried, d.RouteInfo.Upstream)
		if i > 0 && p.collector != nil {
			p.collector.RecordFallback(tried[i-1], tried[i])
		}

		adapter, err := p.registry.Resolve(d.RouteInfo.Upstream)
		if err != nil {
			lastErr = err
			p.logger.Warn("no adapter for upstream", zap.String("upstream", d.RouteInfo.Upstream), zap.Error(err))
			continue
		}

		params := p.buildParams(d, req)
		resp, err := adapter.CallUnary(ctx, deploymentKey(d), params)
		callDuration := time.Since(t0)
		if err != nil {
			lastErr = err
			p.logger.Warn("upstream attempt failed",
				zap.String("upstream", d.RouteInfo.Upstream),
				zap.String("model", d.RouteInfo.Model),
				zap.Error(err))
			if p.collector != nil {
				p.collector.RecordUpstreamRequest(d.RouteInfo.Upstream, d.RouteInfo.Model, string(d.Tier), "error", callDuration, 0, 0, 0)
			}
			continue
		}

		latency := floorMS(time.Since(t0))
		headers := Headers{Route: string(d.RouteInfo.Route), Upstream: d.RouteInfo.Upstream, Model: req.Alias, LatencyMS: latency}
		if len(tried) > 1 {
			headers.FallbackReason = canonicalErrorName(lastErr)
			headers.Tried = tried[:len(tried)-1]
		}

		if p.collector != nil {
			cost := metrics.Cost(d.RouteInfo.Upstream, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			p.collector.RecordUpstreamRequest(d.RouteInfo.Upstream, d.RouteInfo.Model, string(d.Tier), "ok", callDuration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost)
		}

		p.record(metrics.RequestRecord{
			Timestamp:    time.Now().UTC(),
			ModelAlias:   req.Alias,
			Upstream:     d.RouteInfo.Upstream,
			Route:        string(d.RouteInfo.Route),
			ActualModel:  d.RouteInfo.Model,
			Policy:       string(req.Policy),
			LatencyMS:    latency,
			Success:      true,
			StatusCode:   200,
			IsStream:     false,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			FallbackFrom: fallbackFromOf(tried),
		})

		return &UnaryResult{Response: resp, Headers: headers}, nil
	}

	return nil, p.exhausted(req, t0, lastErr, errorMessage(lastErr))
}

// exhausted builds the 502 Failure and records the terminal failed request.
func (p *Pipeline) exhausted(req Request, t0 time.Time, lastErr error, message string) *Failure {
	latency := floorMS(time.Since(t0))
	plan := p.planner.Plan(req.Alias, req.Policy, req.ProviderOverride)
	tried := make([]string, 0, len(plan))
	for _, d := range plan {
		tried = append(tried, d.RouteInfo.Upstream)
	}

	p.record(metrics.RequestRecord{
		Timestamp:    time.Now().UTC(),
		ModelAlias:   req.Alias,
		Upstream:     "none",
		Route:        string(catalog.RouteError),
		Policy:       string(req.Policy),
		LatencyMS:    latency,
		Success:      false,
		StatusCode:   502,
		IsStream:     req.IsStream,
		ErrorType:    canonicalErrorName(lastErr),
		ErrorMessage: message,
		FallbackFrom: fallbackFromOf(tried),
	})

	return &Failure{
		Message: message,
		Headers: Headers{Route: string(catalog.RouteError), Upstream: "none", Model: req.Alias, LatencyMS: latency, Tried: tried},
	}
}

func (p *Pipeline) record(rec metrics.RequestRecord) {
	if p.analytics != nil {
		p.analytics.Record(rec)
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "all configured upstreams are unavailable"
	}
	return err.Error()
}

// canonicalErrorName renders err's unified error code in the Python
// exception-class style the original router surfaced in
// x-rainymodel-fallback-reason (e.g. "RateLimitError"), so operators
// migrating dashboards see familiar names.
func canonicalErrorName(err error) string {
	if err == nil {
		return ""
	}
	te, ok := err.(*types.Error)
	if !ok {
		return "Error"
	}
	if name, ok := errorCodeNames[te.Code]; ok {
		return name
	}
	return "UpstreamError"
}

var errorCodeNames = map[types.ErrorCode]string{
	types.ErrRateLimited:          "RateLimitError",
	types.ErrRateLimit:            "RateLimitError",
	types.ErrAuthentication:       "AuthenticationError",
	types.ErrUnauthorized:         "AuthenticationError",
	types.ErrForbidden:            "PermissionDeniedError",
	types.ErrQuotaExceeded:        "QuotaExceededError",
	types.ErrModelNotFound:        "NotFoundError",
	types.ErrContextTooLong:       "ContextWindowExceededError",
	types.ErrModelOverloaded:      "ServiceOverloadedError",
	types.ErrUpstreamTimeout:      "TimeoutError",
	types.ErrTimeout:              "TimeoutError",
	types.ErrUpstreamError:        "UpstreamError",
	types.ErrProviderUnavailable:  "ProviderUnavailableError",
	types.ErrInvalidRequest:       "BadRequestError",
	types.ErrInternalError:        "InternalError",
}
