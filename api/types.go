// Package api defines the wire-level request/response shapes the gateway
// exposes: the OpenAI-compatible chat completion contract, the generic
// success/error envelope used by every non-passthrough endpoint, and the
// static model/provider descriptors surfaced by the discovery endpoints.
package api

import (
	"time"

	"github.com/orcest-ai/rainymodel/types"
)

// =============================================================================
// Generic response envelope
// =============================================================================

// Response is the envelope every endpoint other than the OpenAI-compatible
// chat completion route replies with — that route returns the raw
// completion body instead, to stay wire-compatible with OpenAI clients.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the error shape nested in Response.Error.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// =============================================================================
// Chat completion types (OpenAI-compatible)
// =============================================================================

// ChatCompletionRequest is the inbound POST /v1/chat/completions body. Model
// is the alias (coerced to DefaultAlias if unrecognised — see
// internal/pipeline.CoerceAlias); the closed set of pointer/any fields below
// is exactly the passthrough set the Request Pipeline is allowed to overlay
// onto a deployment's upstream params (spec §4.3) — each is forwarded only
// when present and non-null.
type ChatCompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []types.Message `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             any             `json:"stop,omitempty"`
	N                *int            `json:"n,omitempty"`
	Tools            any             `json:"tools,omitempty"`
	ToolChoice       any             `json:"tool_choice,omitempty"`
	ResponseFormat   any             `json:"response_format,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
}

// Passthrough projects the closed passthrough field set into the opaque
// map the pipeline overlays onto a deployment's upstream params. A field is
// included only when the client set it to a non-null value.
func (r *ChatCompletionRequest) Passthrough() map[string]any {
	out := map[string]any{}
	if r.Temperature != nil {
		out["temperature"] = *r.Temperature
	}
	if r.MaxTokens != nil {
		out["max_tokens"] = *r.MaxTokens
	}
	if r.TopP != nil {
		out["top_p"] = *r.TopP
	}
	if r.FrequencyPenalty != nil {
		out["frequency_penalty"] = *r.FrequencyPenalty
	}
	if r.PresencePenalty != nil {
		out["presence_penalty"] = *r.PresencePenalty
	}
	if r.Stop != nil {
		out["stop"] = r.Stop
	}
	if r.N != nil {
		out["n"] = *r.N
	}
	if r.Tools != nil {
		out["tools"] = r.Tools
	}
	if r.ToolChoice != nil {
		out["tool_choice"] = r.ToolChoice
	}
	if r.ResponseFormat != nil {
		out["response_format"] = r.ResponseFormat
	}
	if r.Seed != nil {
		out["seed"] = *r.Seed
	}
	return out
}

// ErrorBody is the raw (non-enveloped) error body the OpenAI-compatible
// routes return, matching the shape OpenAI client SDKs parse directly.
type ErrorBody struct {
	Error ErrorBodyDetail `json:"error"`
}

// ErrorBodyDetail is the nested detail of ErrorBody.
type ErrorBodyDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// =============================================================================
// Discovery types
// =============================================================================

// ModelDescriptor describes one virtual model alias the gateway exposes,
// returned by GET /v1/models and as metadata elsewhere.
type ModelDescriptor struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	OwnedBy     string `json:"owned_by"`
	Description string `json:"description"`
}

// KnownModels is the closed set of virtual model aliases RainyModel
// exposes to clients, surfaced by GET /v1/models.
var KnownModels = []ModelDescriptor{
	{ID: "rainymodel/auto", Object: "model", OwnedBy: "rainymodel", Description: "Automatic tiered routing: free tiers first, paid providers as fallback."},
	{ID: "rainymodel/chat", Object: "model", OwnedBy: "rainymodel", Description: "General-purpose conversational routing, same tier order as auto."},
	{ID: "rainymodel/code", Object: "model", OwnedBy: "rainymodel", Description: "Routing tuned for coding tasks; falls back through the same deployment catalog."},
	{ID: "rainymodel/agent", Object: "model", OwnedBy: "rainymodel", Description: "Routing for tool-using agent workloads."},
}

// ModelListResponse is the OpenAI-compatible GET /v1/models body.
type ModelListResponse struct {
	Object string            `json:"object"`
	Data   []ModelDescriptor `json:"data"`
}

// ProviderInfo is one row of GET /v1/providers' richer per-provider
// listing — a SPEC_FULL.md supplement beyond the base spec's model list.
type ProviderInfo struct {
	Upstream    string `json:"upstream"`
	Tier        string `json:"tier"`
	Route       string `json:"route"`
	Model       string `json:"model"`
	Alias       string `json:"alias"`
	Description string `json:"description,omitempty"`
}

// AutoConfigResponse is the GET /v1/auto/config body: the resolved router
// settings and a summary of each policy's tier order, so operators can
// confirm how ${VAR} expansion and defaulting resolved without reading the
// raw YAML.
type AutoConfigResponse struct {
	NumRetries   int                 `json:"num_retries"`
	TimeoutS     int                 `json:"timeout_s"`
	RetryAfterS  int                 `json:"retry_after_s"`
	AllowedFails int                 `json:"allowed_fails"`
	CooldownS    int                 `json:"cooldown_s"`
	Policies     map[string][]string `json:"policies"`
}

// RootResponse is the GET / service descriptor.
type RootResponse struct {
	Service     string   `json:"service"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Docs        string   `json:"docs,omitempty"`
	Endpoints   []string `json:"endpoints"`
}
