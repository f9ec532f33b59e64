package upstream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orcest-ai/rainymodel/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	calls     int32
	failTimes int32
	err       error
}

func (s *stubAdapter) CallUnary(ctx context.Context, key string, params map[string]any) (*ChatResponse, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= s.failTimes {
		return nil, s.err
	}
	return &ChatResponse{ID: "ok"}, nil
}

func (s *stubAdapter) CallStream(ctx context.Context, key string, params map[string]any) (<-chan StreamChunk, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.failTimes > 0 {
		return nil, s.err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{DeltaContent: "hi"}
	close(ch)
	return ch, nil
}

func fastConfig() ResilientConfig {
	return ResilientConfig{NumRetries: 2, PerCallTimeout: time.Second, RetryAfter: time.Millisecond, AllowedFails: 2, CooldownTime: 30 * time.Millisecond}
}

func TestResilientAdapter_RetriesRetryableErrors(t *testing.T) {
	t.Parallel()
	stub := &stubAdapter{failTimes: 1, err: types.NewError(types.ErrUpstreamError, "blip").WithRetryable(true)}
	r := NewResilientAdapter(stub, fastConfig())

	resp, err := r.CallUnary(context.Background(), "hf|m", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.calls))
}

func TestResilientAdapter_DoesNotRetryNonRetryableErrors(t *testing.T) {
	t.Parallel()
	stub := &stubAdapter{failTimes: 5, err: types.NewError(types.ErrAuthentication, "bad key")}
	r := NewResilientAdapter(stub, fastConfig())

	_, err := r.CallUnary(context.Background(), "hf|m", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
}

func TestResilientAdapter_TripsBreakerAfterAllowedFails(t *testing.T) {
	t.Parallel()
	stub := &stubAdapter{failTimes: 99, err: types.NewError(types.ErrUpstreamError, "down").WithRetryable(true)}
	cfg := fastConfig()
	cfg.NumRetries = 0
	r := NewResilientAdapter(stub, cfg)

	_, err1 := r.CallUnary(context.Background(), "hf|m", nil)
	require.Error(t, err1)
	_, err2 := r.CallUnary(context.Background(), "hf|m", nil)
	require.Error(t, err2)

	callsBeforeOpen := atomic.LoadInt32(&stub.calls)
	_, err3 := r.CallUnary(context.Background(), "hf|m", nil)
	require.Error(t, err3)
	terr, ok := err3.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrProviderUnavailable, terr.Code)
	assert.Equal(t, callsBeforeOpen, atomic.LoadInt32(&stub.calls), "breaker should fast-fail without calling inner adapter")

	time.Sleep(cfg.CooldownTime + 10*time.Millisecond)
	_, err4 := r.CallUnary(context.Background(), "hf|m", nil)
	require.Error(t, err4)
	assert.Greater(t, atomic.LoadInt32(&stub.calls), callsBeforeOpen, "breaker should allow a probe call once cooldown elapses")
}

func TestResilientAdapter_CallStreamDoesNotRetry(t *testing.T) {
	t.Parallel()
	stub := &stubAdapter{failTimes: 1, err: types.NewError(types.ErrUpstreamError, "blip").WithRetryable(true)}
	r := NewResilientAdapter(stub, fastConfig())

	_, err := r.CallStream(context.Background(), "hf|m", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
}

func TestResilientAdapter_CallStreamSuccess(t *testing.T) {
	t.Parallel()
	stub := &stubAdapter{}
	r := NewResilientAdapter(stub, fastConfig())

	ch, err := r.CallStream(context.Background(), "hf|m", nil)
	require.NoError(t, err)
	var got []StreamChunk
	for c := range ch {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].DeltaContent)
}
