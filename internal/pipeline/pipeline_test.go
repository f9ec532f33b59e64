package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/orcest-ai/rainymodel/internal/catalog"
	"github.com/orcest-ai/rainymodel/internal/hfgate"
	"github.com/orcest-ai/rainymodel/internal/metrics"
	"github.com/orcest-ai/rainymodel/internal/planner"
	"github.com/orcest-ai/rainymodel/internal/upstream"
	"github.com/orcest-ai/rainymodel/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubAdapter is a scripted upstream.Adapter: each call consumes the next
// entry from its queues, letting tests force a specific failure-then-success
// fallback sequence per upstream label.
type stubAdapter struct {
	unaryFns  map[string][]func(ctx context.Context, key string, params map[string]any) (*upstream.ChatResponse, error)
	streamFns map[string][]func(ctx context.Context, key string, params map[string]any) (<-chan upstream.StreamChunk, error)
	calls     []string
}

func (s *stubAdapter) label(key string) string {
	// deploymentKey is "<upstream>:<model>"
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}

func (s *stubAdapter) CallUnary(ctx context.Context, key string, params map[string]any) (*upstream.ChatResponse, error) {
	s.calls = append(s.calls, "unary:"+key)
	label := s.label(key)
	fns := s.unaryFns[label]
	if len(fns) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "no script for "+label)
	}
	fn := fns[0]
	s.unaryFns[label] = fns[1:]
	return fn(ctx, key, params)
}

func (s *stubAdapter) CallStream(ctx context.Context, key string, params map[string]any) (<-chan upstream.StreamChunk, error) {
	s.calls = append(s.calls, "stream:"+key)
	label := s.label(key)
	fns := s.streamFns[label]
	if len(fns) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "no script for "+label)
	}
	fn := fns[0]
	s.streamFns[label] = fns[1:]
	return fn(ctx, key, params)
}

func newStubRegistry(adapter upstream.Adapter, labels ...string) *upstream.Registry {
	reg := upstream.NewRegistry()
	for _, l := range labels {
		reg.Register(l, adapter)
	}
	return reg
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	entries := []catalog.Entry{
		{
			ModelName:     "rainymodel/auto",
			LitellmParams: map[string]any{"model": "huggingface/zephyr-7b", "api_base": "https://api-inference.huggingface.co", "api_key": "hf-key"},
			ModelInfo:     map[string]any{"description": "free hf tier"},
		},
		{
			ModelName:     "rainymodel/auto",
			LitellmParams: map[string]any{"model": "gpt-4o-mini", "api_base": "https://api.openai.com/v1", "api_key": "oai-key"},
			ModelInfo:     map[string]any{"description": "openai-direct"},
		},
		{
			ModelName:     "rainymodel/auto",
			LitellmParams: map[string]any{"model": "openrouter/auto", "api_base": "https://openrouter.ai/api/v1", "api_key": "or-key"},
			ModelInfo:     map[string]any{"description": "premium fallback"},
		},
	}
	return catalog.Build(entries, nil)
}

func newTestPipeline(t *testing.T, adapter upstream.Adapter, analytics *metrics.AnalyticsStore) *Pipeline {
	t.Helper()
	cat := testCatalog(t)
	gate := hfgate.New()
	pl := planner.New(cat, gate)
	reg := newStubRegistry(adapter, "hf", "openai", "openrouter")
	return New(cat, pl, gate, reg, analytics, nil, zap.NewNop())
}

func successResponse() *upstream.ChatResponse {
	return &upstream.ChatResponse{
		ID:    "resp-1",
		Model: "gpt-4o-mini",
		Usage: types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Choices: []upstream.ChatChoice{
			{Index: 0, FinishReason: "stop", Message: types.Message{Role: types.RoleAssistant, Content: "hi"}},
		},
	}
}

func TestRunUnary_FirstCandidateSucceeds(t *testing.T) {
	t.Parallel()
	adapter := &stubAdapter{
		unaryFns: map[string][]func(context.Context, string, map[string]any) (*upstream.ChatResponse, error){
			"hf": {func(context.Context, string, map[string]any) (*upstream.ChatResponse, error) { return successResponse(), nil }},
		},
	}
	analytics := metrics.NewAnalyticsStore(0, 0)
	p := newTestPipeline(t, adapter, analytics)

	result, failure := p.RunUnary(context.Background(), Request{
		Alias:    "rainymodel/auto",
		Policy:   planner.PolicyAuto,
		Messages: []types.Message{types.NewUserMessage("hello")},
	})

	require.Nil(t, failure)
	require.NotNil(t, result)
	assert.Equal(t, "hf", result.Headers.Upstream)
	assert.Empty(t, result.Headers.FallbackReason)
	assert.Empty(t, result.Headers.Tried)

	log := analytics.GetRequestLog(10)
	require.Len(t, log, 1)
	assert.True(t, log[0].OK)
	assert.Empty(t, log[0].FallbackFrom)
}

func TestRunUnary_FallsBackOnFailure(t *testing.T) {
	t.Parallel()
	adapter := &stubAdapter{
		unaryFns: map[string][]func(context.Context, string, map[string]any) (*upstream.ChatResponse, error){
			"hf": {func(context.Context, string, map[string]any) (*upstream.ChatResponse, error) {
				return nil, types.NewError(types.ErrRateLimited, "rate limited").WithHTTPStatus(429)
			}},
			"openai": {func(context.Context, string, map[string]any) (*upstream.ChatResponse, error) { return successResponse(), nil }},
		},
	}
	analytics := metrics.NewAnalyticsStore(0, 0)
	p := newTestPipeline(t, adapter, analytics)

	result, failure := p.RunUnary(context.Background(), Request{
		Alias:    "rainymodel/auto",
		Policy:   planner.PolicyAuto,
		Messages: []types.Message{types.NewUserMessage("hello")},
	})

	require.Nil(t, failure)
	require.NotNil(t, result)
	assert.Equal(t, "openai", result.Headers.Upstream)
	assert.Equal(t, "RateLimitError", result.Headers.FallbackReason)
	assert.Equal(t, []string{"hf"}, result.Headers.Tried)

	log := analytics.GetRequestLog(10)
	require.Len(t, log, 1)
	assert.Equal(t, "hf", log[0].FallbackFrom)
}

func TestRunUnary_ExhaustionReturns502(t *testing.T) {
	t.Parallel()
	failAll := func(context.Context, string, map[string]any) (*upstream.ChatResponse, error) {
		return nil, types.NewError(types.ErrUpstreamError, "boom")
	}
	adapter := &stubAdapter{
		unaryFns: map[string][]func(context.Context, string, map[string]any) (*upstream.ChatResponse, error){
			"hf":         {failAll},
			"openai":     {failAll},
			"openrouter": {failAll},
		},
	}
	analytics := metrics.NewAnalyticsStore(0, 0)
	p := newTestPipeline(t, adapter, analytics)

	result, failure := p.RunUnary(context.Background(), Request{
		Alias:    "rainymodel/auto",
		Policy:   planner.PolicyAuto,
		Messages: []types.Message{types.NewUserMessage("hello")},
	})

	require.Nil(t, result)
	require.NotNil(t, failure)
	assert.Equal(t, "none", failure.Headers.Upstream)
	assert.Equal(t, "error", failure.Headers.Route)
	assert.Len(t, failure.Headers.Tried, 3)

	log := analytics.GetRequestLog(10)
	require.Len(t, log, 1)
	assert.False(t, log[0].OK)
	assert.Equal(t, 502, log[0].Code)
	assert.Equal(t, "openai", log[0].FallbackFrom)
}

func TestRunUnary_UnknownAliasCoercedToDefault(t *testing.T) {
	t.Parallel()
	adapter := &stubAdapter{unaryFns: map[string][]func(context.Context, string, map[string]any) (*upstream.ChatResponse, error){}}
	analytics := metrics.NewAnalyticsStore(0, 0)
	p := newTestPipeline(t, adapter, analytics)

	result, failure := p.RunUnary(context.Background(), Request{
		Alias:    CoerceAlias("rainymodel/does-not-exist"),
		Policy:   planner.PolicyAuto,
		Messages: []types.Message{types.NewUserMessage("hello")},
	})

	require.Nil(t, result)
	require.NotNil(t, failure)
	assert.Equal(t, DefaultAlias, failure.Headers.Model)
}

func TestBuildParams_PassthroughClosedSet(t *testing.T) {
	t.Parallel()
	p := &Pipeline{}
	d := catalog.Deployment{
		UpstreamParams: map[string]any{"model": "gpt-4o-mini", "api_base": "https://api.openai.com/v1", "temperature": 0.2},
	}
	temp := 0.9
	req := Request{
		Messages: []types.Message{types.NewUserMessage("hi")},
		Passthrough: map[string]any{
			"temperature":    temp,
			"max_tokens":     100,
			"unknown_field":  "must not leak",
			"response_format": nil, // present but null: must not forward
		},
	}

	params := p.buildParams(d, req)
	assert.Equal(t, temp, params["temperature"]) // overridden by body
	assert.Equal(t, 100, params["max_tokens"])
	assert.NotContains(t, params, "unknown_field")
	assert.NotContains(t, params, "response_format")
	assert.Equal(t, "gpt-4o-mini", params["model"])
}

func TestBuildParams_SetsStreamFlagWhenStreaming(t *testing.T) {
	t.Parallel()
	p := &Pipeline{}
	d := catalog.Deployment{UpstreamParams: map[string]any{"model": "gpt-4o-mini"}}
	params := p.buildParams(d, Request{IsStream: true, Messages: []types.Message{types.NewUserMessage("hi")}})
	assert.Equal(t, true, params["stream"])
}

func TestOpenStream_FallsBackWhenOpenFails(t *testing.T) {
	t.Parallel()
	successChan := func() <-chan upstream.StreamChunk {
		ch := make(chan upstream.StreamChunk, 1)
		ch <- upstream.StreamChunk{ID: "c1", DeltaContent: "hi", FinishReason: "stop"}
		close(ch)
		return ch
	}
	adapter := &stubAdapter{
		streamFns: map[string][]func(context.Context, string, map[string]any) (<-chan upstream.StreamChunk, error){
			"hf":     {func(context.Context, string, map[string]any) (<-chan upstream.StreamChunk, error) { return nil, types.NewError(types.ErrProviderUnavailable, "down") }},
			"openai": {func(context.Context, string, map[string]any) (<-chan upstream.StreamChunk, error) { return successChan(), nil }},
		},
	}
	analytics := metrics.NewAnalyticsStore(0, 0)
	p := newTestPipeline(t, adapter, analytics)

	sess, failure := p.OpenStream(context.Background(), Request{
		Alias:    "rainymodel/auto",
		Policy:   planner.PolicyAuto,
		IsStream: true,
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Nil(t, failure)
	require.NotNil(t, sess)
	assert.Equal(t, "openai", sess.Headers.Upstream)
	assert.Equal(t, []string{"hf"}, sess.Headers.Tried)

	var chunks int
	for range sess.Chunks {
		chunks++
	}
	sess.Finish(StreamUsage{InputTokens: 3, OutputTokens: 2}, nil, false)

	assert.Equal(t, 1, chunks)
	log := analytics.GetRequestLog(10)
	require.Len(t, log, 1)
	assert.True(t, log[0].OK)
	assert.True(t, log[0].Stream)
}

func TestSession_Finish_ClientDisconnectRecordsFailure(t *testing.T) {
	t.Parallel()
	ch := make(chan upstream.StreamChunk)
	close(ch)
	adapter := &stubAdapter{
		streamFns: map[string][]func(context.Context, string, map[string]any) (<-chan upstream.StreamChunk, error){
			"hf": {func(context.Context, string, map[string]any) (<-chan upstream.StreamChunk, error) { return ch, nil }},
		},
	}
	analytics := metrics.NewAnalyticsStore(0, 0)
	p := newTestPipeline(t, adapter, analytics)

	sess, failure := p.OpenStream(context.Background(), Request{
		Alias:    "rainymodel/auto",
		Policy:   planner.PolicyAuto,
		IsStream: true,
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Nil(t, failure)
	require.NotNil(t, sess)

	sess.Finish(StreamUsage{}, nil, true)

	log := analytics.GetRequestLog(10)
	require.Len(t, log, 1)
	assert.False(t, log[0].OK)
	assert.Equal(t, "ClientDisconnect", log[0].Err)
}

func TestCoerceAlias(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "rainymodel/chat", CoerceAlias("rainymodel/chat"))
	assert.Equal(t, DefaultAlias, CoerceAlias("not-a-known-alias"))
}

func TestFloorMS(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 250, floorMS(250*time.Millisecond))
	assert.Equal(t, 0, floorMS(999*time.Microsecond))
}
