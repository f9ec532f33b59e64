package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/orcest-ai/rainymodel/types"
)

// passthroughKeys is the closed set of request fields the pipeline is
// allowed to overlay onto a deployment's upstream params before handing
// the bag to the adapter.
var passthroughKeys = []string{
	"temperature", "max_tokens", "top_p", "frequency_penalty",
	"presence_penalty", "stop", "n", "tools", "tool_choice",
	"response_format", "seed",
}

// OpenAICompatAdapter speaks the OpenAI Chat Completions wire format over
// HTTP. Every RainyModel upstream (HF, the local Ollama mirrors, OpenRouter,
// and every vendor-direct deployment) is reachable through this one shape,
// so a single concrete adapter covers all of them; api_base, api_key and
// model are read from the params bag at call time rather than fixed at
// construction, since each deployment supplies its own.
type OpenAICompatAdapter struct {
	client *http.Client
}

// NewOpenAICompatAdapter builds an adapter sharing the given HTTP client
// across every call; callers typically configure MaxIdleConnsPerHost high
// enough to cover the full fallback fan-out.
func NewOpenAICompatAdapter(client *http.Client) *OpenAICompatAdapter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAICompatAdapter{client: client}
}

type compatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []types.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type compatRequest struct {
	Model    string          `json:"model"`
	Messages []compatMessage `json:"messages"`
	Stream   bool            `json:"stream,omitempty"`
	Extra    map[string]any  `json:"-"`
}

func (r compatRequest) MarshalJSON() ([]byte, error) {
	base := map[string]any{
		"model":    r.Model,
		"messages": r.Messages,
	}
	if r.Stream {
		base["stream"] = true
	}
	for k, v := range r.Extra {
		base[k] = v
	}
	return json.Marshal(base)
}

type compatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason"`
	Message      compatMessage `json:"message"`
	Delta        compatMessage `json:"delta"`
}

type compatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type compatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []compatChoice `json:"choices"`
	Usage   compatUsage    `json:"usage"`
}

func buildRequest(deploymentKey string, params map[string]any, stream bool) (apiBase, apiKey string, body []byte, err error) {
	apiBase, _ = params["api_base"].(string)
	apiKey, _ = params["api_key"].(string)
	model, _ := params["model"].(string)
	if model == "" {
		return "", "", nil, fmt.Errorf("upstream %s: params missing model", deploymentKey)
	}
	if apiBase == "" {
		return "", "", nil, fmt.Errorf("upstream %s: params missing api_base", deploymentKey)
	}

	rawMessages, _ := params["messages"].([]types.Message)
	messages := make([]compatMessage, 0, len(rawMessages))
	for _, m := range rawMessages {
		messages = append(messages, compatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}

	extra := map[string]any{}
	for _, key := range passthroughKeys {
		if v, ok := params[key]; ok {
			extra[key] = v
		}
	}

	req := compatRequest{Model: model, Messages: messages, Stream: stream, Extra: extra}
	buf, err := json.Marshal(req)
	if err != nil {
		return "", "", nil, err
	}
	return apiBase, apiKey, buf, nil
}

func newHTTPRequest(ctx context.Context, apiBase, apiKey string, body []byte) (*http.Request, error) {
	url := strings.TrimRight(apiBase, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return httpReq, nil
}

// CallUnary issues a single non-streaming chat completion call.
func (a *OpenAICompatAdapter) CallUnary(ctx context.Context, deploymentKey string, params map[string]any) (*ChatResponse, error) {
	apiBase, apiKey, body, err := buildRequest(deploymentKey, params, false)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error()).WithProvider(deploymentKey)
	}

	httpReq, err := newHTTPRequest(ctx, apiBase, apiKey, body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err.Error()).WithProvider(deploymentKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamTimeout, err.Error()).WithProvider(deploymentKey).WithRetryable(true)
	}
	defer drainAndClose(resp.Body)

	raw, err := readAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithProvider(deploymentKey).WithRetryable(true)
	}

	if resp.StatusCode >= 300 {
		return nil, MapHTTPError(resp.StatusCode, raw, deploymentKey)
	}

	var cr compatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "malformed upstream response: "+err.Error()).WithProvider(deploymentKey)
	}

	out := &ChatResponse{
		ID:       cr.ID,
		Provider: deploymentKey,
		Model:    cr.Model,
		Usage: types.TokenUsage{
			PromptTokens:     cr.Usage.PromptTokens,
			CompletionTokens: cr.Usage.CompletionTokens,
			TotalTokens:      cr.Usage.TotalTokens,
		},
	}
	for _, c := range cr.Choices {
		out.Choices = append(out.Choices, ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: types.Message{
				Role:      types.Role(c.Message.Role),
				Content:   c.Message.Content,
				ToolCalls: c.Message.ToolCalls,
			},
		})
	}
	return out, nil
}

// CallStream issues a streaming chat completion call and parses the
// text/event-stream response into StreamChunk values delivered over the
// returned channel; the channel is closed once the upstream [DONE]
// sentinel is seen or the stream terminates.
func (a *OpenAICompatAdapter) CallStream(ctx context.Context, deploymentKey string, params map[string]any) (<-chan StreamChunk, error) {
	apiBase, apiKey, body, err := buildRequest(deploymentKey, params, true)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error()).WithProvider(deploymentKey)
	}

	httpReq, err := newHTTPRequest(ctx, apiBase, apiKey, body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err.Error()).WithProvider(deploymentKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamTimeout, err.Error()).WithProvider(deploymentKey).WithRetryable(true)
	}

	if resp.StatusCode >= 300 {
		raw, _ := readAll(resp.Body)
		drainAndClose(resp.Body)
		return nil, MapHTTPError(resp.StatusCode, raw, deploymentKey)
	}

	out := make(chan StreamChunk)
	go streamSSE(ctx, resp, deploymentKey, out)
	return out, nil
}

func streamSSE(ctx context.Context, resp *http.Response, deploymentKey string, out chan<- StreamChunk) {
	defer close(out)
	defer drainAndClose(resp.Body)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}

		var cr compatResponse
		if err := json.Unmarshal([]byte(payload), &cr); err != nil {
			out <- StreamChunk{Err: types.NewError(types.ErrUpstreamError, "malformed stream frame: "+err.Error()).WithProvider(deploymentKey)}
			return
		}

		for _, c := range cr.Choices {
			chunk := StreamChunk{
				ID:           cr.ID,
				Model:        cr.Model,
				Index:        c.Index,
				DeltaRole:    c.Delta.Role,
				DeltaContent: c.Delta.Content,
				FinishReason: c.FinishReason,
			}
			if cr.Usage.TotalTokens > 0 {
				chunk.Usage = &types.TokenUsage{
					PromptTokens:     cr.Usage.PromptTokens,
					CompletionTokens: cr.Usage.CompletionTokens,
					TotalTokens:      cr.Usage.TotalTokens,
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case out <- StreamChunk{Err: types.NewError(types.ErrUpstreamError, err.Error()).WithProvider(deploymentKey).WithRetryable(true)}:
		case <-ctx.Done():
		}
	}
}
