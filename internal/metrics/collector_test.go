package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.upstreamRequestsTotal)
	assert.NotNil(t, collector.upstreamRequestDuration)
	assert.NotNil(t, collector.upstreamTokensUsed)
	assert.NotNil(t, collector.upstreamCostUSD)
	assert.NotNil(t, collector.fallbacksTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/v1/chat/completions", 200, 100*time.Millisecond)
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	collector.RecordHTTPRequest("GET", "/v1/chat/completions", 200, 50*time.Millisecond)
	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordUpstreamRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordUpstreamRequest("openai", "gpt-4o", "direct-openai", "success", 500*time.Millisecond, 100, 50, 0.01)

	assert.Greater(t, testutil.CollectAndCount(collector.upstreamRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.upstreamTokensUsed), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.upstreamCostUSD), 0)
}

func TestCollector_RecordFallback(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordFallback("hf", "openrouter")
	assert.Greater(t, testutil.CollectAndCount(collector.fallbacksTotal), 0)
}

func TestCollector_RecordHFGateTrip(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHFGateTrip()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.hfGateTripsTotal))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHTTPRequest("GET", "/v1/chat/completions", 200, 100*time.Millisecond)
			collector.RecordUpstreamRequest("openai", "gpt-4o", "direct-openai", "success", 500*time.Millisecond, 100, 50, 0.01)
			collector.RecordFallback("hf", "openrouter")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Greater(t, testutil.CollectAndCount(collector.httpRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.upstreamRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.fallbacksTotal), 0)
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	collector.RecordHTTPRequest("GET", "/v1/models", 200, 10*time.Millisecond)
	assert.Greater(t, testutil.CollectAndCount(collector.httpRequestsTotal), 0)
}
