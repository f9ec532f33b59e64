package upstream

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orcest-ai/rainymodel/types"
)

// ResilientConfig mirrors router_settings' retry/cooldown knobs verbatim.
type ResilientConfig struct {
	NumRetries     int
	PerCallTimeout time.Duration
	RetryAfter     time.Duration
	AllowedFails   int
	CooldownTime   time.Duration
}

// DefaultResilientConfig matches the original router's defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		NumRetries:     3,
		PerCallTimeout: 120 * time.Second,
		RetryAfter:     5 * time.Second,
		AllowedFails:   2,
		CooldownTime:   60 * time.Second,
	}
}

// deploymentBreaker tracks a single deployment's consecutive-failure count
// and, once it trips, the instant it's eligible to be tried again. The
// open-until instant is a lock-free atomic timestamp, the same pattern
// used by the HF-credit gate, since it is read on every call and written
// by at most one failing call at a time under the surrounding mutex.
type deploymentBreaker struct {
	mu            sync.Mutex
	fails         int
	openUntilNano int64
}

func (b *deploymentBreaker) isOpen() bool {
	until := atomic.LoadInt64(&b.openUntilNano)
	return until != 0 && time.Now().UnixNano() < until
}

func (b *deploymentBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails = 0
	atomic.StoreInt64(&b.openUntilNano, 0)
}

func (b *deploymentBreaker) recordFailure(cfg ResilientConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails++
	if b.fails >= cfg.AllowedFails {
		atomic.StoreInt64(&b.openUntilNano, time.Now().Add(cfg.CooldownTime).UnixNano())
	}
}

// ResilientAdapter wraps a concrete Adapter with per-deployment retry and
// cooldown bookkeeping. Non-streaming calls are retried with jittered
// exponential backoff up to NumRetries times; a deployment that trips its
// allowed-fails threshold is skipped (fast-failed) for CooldownTime rather
// than attempted again. Streaming calls only consult the breaker — a
// stream that fails mid-flight, after headers are already committed to
// the client, is not a retry candidate.
type ResilientAdapter struct {
	inner Adapter
	cfg   ResilientConfig

	mu       sync.Mutex
	breakers map[string]*deploymentBreaker
}

// NewResilientAdapter wraps inner with the given retry/cooldown policy.
func NewResilientAdapter(inner Adapter, cfg ResilientConfig) *ResilientAdapter {
	return &ResilientAdapter{inner: inner, cfg: cfg, breakers: make(map[string]*deploymentBreaker)}
}

func (r *ResilientAdapter) breakerFor(key string) *deploymentBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = &deploymentBreaker{}
		r.breakers[key] = b
	}
	return b
}

// CallUnary retries the inner adapter's CallUnary with exponential backoff,
// fast-failing if the deployment is currently in cooldown.
func (r *ResilientAdapter) CallUnary(ctx context.Context, deploymentKey string, params map[string]any) (*ChatResponse, error) {
	breaker := r.breakerFor(deploymentKey)
	if breaker.isOpen() {
		return nil, types.NewError(types.ErrProviderUnavailable, "deployment in cooldown").WithProvider(deploymentKey).WithRetryable(true)
	}

	var lastErr error
	attempts := r.cfg.NumRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, r.cfg.RetryAfter, attempt); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := withPerCallTimeout(ctx, r.cfg.PerCallTimeout)
		resp, err := r.inner.CallUnary(callCtx, deploymentKey, params)
		cancel()

		if err == nil {
			breaker.recordSuccess()
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !types.IsRetryable(err) {
			breaker.recordFailure(r.cfg)
			return nil, err
		}
	}
	breaker.recordFailure(r.cfg)
	return nil, lastErr
}

// CallStream checks the breaker and, if the deployment is eligible, opens
// exactly one stream. It does not retry.
func (r *ResilientAdapter) CallStream(ctx context.Context, deploymentKey string, params map[string]any) (<-chan StreamChunk, error) {
	breaker := r.breakerFor(deploymentKey)
	if breaker.isOpen() {
		return nil, types.NewError(types.ErrProviderUnavailable, "deployment in cooldown").WithProvider(deploymentKey).WithRetryable(true)
	}

	ch, err := r.inner.CallStream(ctx, deploymentKey, params)
	if err != nil {
		breaker.recordFailure(r.cfg)
		return nil, err
	}
	breaker.recordSuccess()
	return ch, nil
}

func withPerCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// waitBackoff sleeps base * 2^(attempt-1), jittered by ±25%, returning the
// context's error immediately if it's cancelled first.
func waitBackoff(ctx context.Context, base time.Duration, attempt int) error {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << uint(attempt-1)
	jitter := time.Duration(float64(delay) * (rand.Float64()*0.5 - 0.25))
	delay += jitter
	if delay < 0 {
		delay = base
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
