package upstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopAdapter struct{ name string }

func (n *nopAdapter) CallUnary(ctx context.Context, key string, params map[string]any) (*ChatResponse, error) {
	return &ChatResponse{Provider: n.name}, nil
}

func (n *nopAdapter) CallStream(ctx context.Context, key string, params map[string]any) (<-chan StreamChunk, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("hf", &nopAdapter{name: "hf"})

	a, ok := r.Get("hf")
	require.True(t, ok)
	resp, _ := a.CallUnary(context.Background(), "", nil)
	assert.Equal(t, "hf", resp.Provider)
}

func TestRegistry_ResolveFallsBackToDefault(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("openrouter", &nopAdapter{name: "openrouter"})

	a, err := r.Resolve("unregistered-vendor")
	require.NoError(t, err)
	resp, _ := a.CallUnary(context.Background(), "", nil)
	assert.Equal(t, "openrouter", resp.Provider)
}

func TestRegistry_ResolveErrorsWithoutDefault(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_, err := r.Resolve("anything")
	assert.Error(t, err)
}

func TestRegistry_UnregisterClearsDefault(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("hf", &nopAdapter{name: "hf"})
	r.Unregister("hf")
	assert.Equal(t, 0, r.Len())
	_, err := r.Resolve("hf")
	assert.Error(t, err)
}

func TestNewDefaultRegistry_CoversEveryUpstream(t *testing.T) {
	t.Parallel()
	reg := NewDefaultRegistry(DefaultResilientConfig())
	for _, upstream := range []string{"hf", "ollamafreeapi", "ollama", "deepseek", "gemini", "openai", "xai", "anthropic", "openrouter"} {
		_, ok := reg.Get(upstream)
		assert.True(t, ok, upstream)
	}
}
