package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orcest-ai/rainymodel/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatAdapter_CallUnary_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-3", body["model"])
		assert.Equal(t, 0.5, body["temperature"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(compatResponse{
			ID:    "resp-1",
			Model: "llama-3",
			Choices: []compatChoice{
				{Index: 0, FinishReason: "stop", Message: compatMessage{Role: "assistant", Content: "hi there"}},
			},
			Usage: compatUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		})
	}))
	defer srv.Close()

	adapter := NewOpenAICompatAdapter(nil)
	resp, err := adapter.CallUnary(context.Background(), "hf|llama-3", map[string]any{
		"api_base":    srv.URL,
		"api_key":     "secret",
		"model":       "llama-3",
		"messages":    []types.Message{types.NewUserMessage("hello")},
		"temperature": 0.5,
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestOpenAICompatAdapter_CallUnary_MapsHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	adapter := NewOpenAICompatAdapter(nil)
	_, err := adapter.CallUnary(context.Background(), "openrouter|llama-3", map[string]any{
		"api_base": srv.URL,
		"model":    "llama-3",
	})
	require.Error(t, err)
	terr, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrRateLimited, terr.Code)
	assert.True(t, terr.Retryable)
}

func TestOpenAICompatAdapter_CallUnary_MissingModel(t *testing.T) {
	t.Parallel()
	adapter := NewOpenAICompatAdapter(nil)
	_, err := adapter.CallUnary(context.Background(), "hf|x", map[string]any{"api_base": "http://example.invalid"})
	require.Error(t, err)
}

func TestOpenAICompatAdapter_CallStream_ParsesFramesAndDone(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		frames := []string{
			`{"id":"s1","model":"llama-3","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"s1","model":"llama-3","choices":[{"index":0,"delta":{"content":"hi"}}]}`,
			`{"id":"s1","model":"llama-3","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, f := range frames {
			_, _ = w.Write([]byte("data: " + f + "\n\n"))
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	adapter := NewOpenAICompatAdapter(nil)
	ch, err := adapter.CallStream(context.Background(), "hf|llama-3", map[string]any{
		"api_base": srv.URL,
		"model":    "llama-3",
	})
	require.NoError(t, err)

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 3)
	assert.Equal(t, "assistant", chunks[0].DeltaRole)
	assert.Equal(t, "hi", chunks[1].DeltaContent)
	assert.Equal(t, "stop", chunks[2].FinishReason)
}
