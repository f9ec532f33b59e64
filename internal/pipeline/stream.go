package pipeline

import (
	"context"
	"time"

	"github.com/orcest-ai/rainymodel/internal/catalog"
	"github.com/orcest-ai/rainymodel/internal/metrics"
	"github.com/orcest-ai/rainymodel/internal/upstream"
	"go.uber.org/zap"
)

// Session is an opened stream: the fallback loop has already committed to
// deployment and the caller owns writing each chunk to the wire as it
// arrives. Per §4.3, once a Session is returned no further fallback
// happens — a mid-stream error is reported inline, never retried.
type Session struct {
	Chunks  <-chan upstream.StreamChunk
	Headers Headers

	pipeline   *Pipeline
	req        Request
	deployment catalog.Deployment
	t0         time.Time
	tried      []string
}

// OpenStream drives the fallback loop for a streaming request: each
// candidate deployment is asked to open a stream, falling back to the next
// one if CallStream itself fails (connection refused, non-2xx status,
// resolve failure). The first deployment whose stream opens is committed —
// its chunks are returned unbuffered for the caller to relay as SSE frames.
func (p *Pipeline) OpenStream(ctx context.Context, req Request) (*Session, *Failure) {
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
		chunks, err := adapter.CallStream(ctx, deploymentKey(d), params)
		if err != nil {
			lastErr = err
			p.logger.Warn("stream open failed",
				zap.String("upstream", d.RouteInfo.Upstream),
				zap.String("model", d.RouteInfo.Model),
				zap.Error(err))
			if p.collector != nil {
				p.collector.RecordUpstreamRequest(d.RouteInfo.Upstream, d.RouteInfo.Model, string(d.Tier), "error", time.Since(t0), 0, 0, 0)
			}
			continue
		}

		latency := floorMS(time.Since(t0))
		headers := Headers{Route: string(d.RouteInfo.Route), Upstream: d.RouteInfo.Upstream, Model: req.Alias, LatencyMS: latency}
		if len(tried) > 1 {
			headers.FallbackReason = canonicalErrorName(lastErr)
			headers.Tried = tried[:len(tried)-1]
		}

		return &Session{
			Chunks:     chunks,
			Headers:    headers,
			pipeline:   p,
			req:        req,
			deployment: d,
			t0:         t0,
			tried:      tried,
		}, nil
	}

	return nil, p.exhausted(req, t0, lastErr, errorMessage(lastErr))
}

// Finish records the terminal RequestRecord for a streamed request. Callers
// invoke it exactly once after they stop reading Chunks, whether that's
// because the channel closed normally, a StreamChunk carried a terminal
// Err, or the client disconnected mid-stream.
//
// disconnected takes priority over streamErr: a client hanging up mid-way
// is recorded as error_type="ClientDisconnect" per §4.3, even if the
// upstream call was also in the process of failing.
func (s *Session) Finish(usage StreamUsage, streamErr error, disconnected bool) {
	latency := floorMS(time.Since(s.t0))
	success := streamErr == nil && !disconnected

	errType := ""
	errMsg := ""
	switch {
	case disconnected:
		errType = "ClientDisconnect"
		errMsg = "client disconnected mid-stream"
	case streamErr != nil:
		errType = canonicalErrorName(streamErr)
		errMsg = streamErr.Error()
	}

	if s.pipeline.collector != nil {
		status := "ok"
		if !success {
			status = "error"
		}
		cost := metrics.Cost(s.deployment.RouteInfo.Upstream, usage.InputTokens, usage.OutputTokens)
		s.pipeline.collector.RecordUpstreamRequest(s.deployment.RouteInfo.Upstream, s.deployment.RouteInfo.Model, string(s.deployment.Tier), status, time.Since(s.t0), usage.InputTokens, usage.OutputTokens, cost)
	}

	s.pipeline.record(metrics.RequestRecord{
		Timestamp:    time.Now().UTC(),
		ModelAlias:   s.req.Alias,
		Upstream:     s.deployment.RouteInfo.Upstream,
		Route:        string(s.deployment.RouteInfo.Route),
		ActualModel:  s.deployment.RouteInfo.Model,
		Policy:       string(s.req.Policy),
		LatencyMS:    latency,
		Success:      success,
		StatusCode:   200,
		IsStream:     true,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		ErrorType:    errType,
		ErrorMessage: errMsg,
		FallbackFrom: fallbackFromOf(s.tried),
	})
}

// StreamUsage is the token accounting the HTTP layer accumulates while
// relaying chunks, passed back into Finish since the pipeline itself never
// inspects chunk contents once the stream is handed off.
type StreamUsage struct {
	InputTokens  int
	OutputTokens int
}
