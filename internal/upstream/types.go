// Package upstream abstracts the concrete LLM client the Request Pipeline
// drives through the fallback loop. An Adapter exposes a non-streaming
// call returning a response object and a streaming call returning a
// channel of chunks; both expose a canonical dict view so the Pipeline
// never needs provider-specific knowledge to serialise a result.
package upstream

import (
	"time"

	"github.com/orcest-ai/rainymodel/types"
)

// ChatResponse is the non-streaming result of an upstream call.
type ChatResponse struct {
	ID        string
	Provider  string
	Model     string
	Choices   []ChatChoice
	Usage     types.TokenUsage
	CreatedAt time.Time
}

// ChatChoice is a single completion choice.
type ChatChoice struct {
	Index        int
	FinishReason string
	Message      types.Message
}

// CanonicalDict returns the canonical JSON-serialisable view of the
// response, matching the "model_dump() or dict-like" convention the
// original client library relies on.
func (r *ChatResponse) CanonicalDict() map[string]any {
	choices := make([]map[string]any, 0, len(r.Choices))
	for _, c := range r.Choices {
		choices = append(choices, map[string]any{
			"index":         c.Index,
			"finish_reason": c.FinishReason,
			"message": map[string]any{
				"role":    string(c.Message.Role),
				"content": c.Message.Content,
			},
		})
	}
	return map[string]any{
		"id":      r.ID,
		"model":   r.Model,
		"choices": choices,
		"usage": map[string]any{
			"prompt_tokens":     r.Usage.PromptTokens,
			"completion_tokens": r.Usage.CompletionTokens,
			"total_tokens":      r.Usage.TotalTokens,
		},
	}
}

// StreamChunk is one unit of a streaming response. Err, when set, signals
// the stream terminated abnormally; it is never part of CanonicalDict
// (the Pipeline inspects Err directly to decide whether to emit the
// stream_error frame).
type StreamChunk struct {
	ID           string
	Model        string
	Index        int
	DeltaRole    string
	DeltaContent string
	FinishReason string
	Usage        *types.TokenUsage
	Err          error
}

// CanonicalDict returns the canonical JSON-serialisable view of the chunk.
func (c *StreamChunk) CanonicalDict() map[string]any {
	delta := map[string]any{}
	if c.DeltaRole != "" {
		delta["role"] = c.DeltaRole
	}
	if c.DeltaContent != "" {
		delta["content"] = c.DeltaContent
	}
	out := map[string]any{
		"id": c.ID,
		"choices": []map[string]any{
			{
				"index":         c.Index,
				"delta":         delta,
				"finish_reason": finishReasonOrNull(c.FinishReason),
			},
		},
	}
	if c.Model != "" {
		out["model"] = c.Model
	}
	if c.Usage != nil {
		out["usage"] = map[string]any{
			"prompt_tokens":     c.Usage.PromptTokens,
			"completion_tokens": c.Usage.CompletionTokens,
			"total_tokens":      c.Usage.TotalTokens,
		}
	}
	return out
}

func finishReasonOrNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
