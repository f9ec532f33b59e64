package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/orcest-ai/rainymodel/api"
	"github.com/orcest-ai/rainymodel/internal/pipeline"
	"github.com/orcest-ai/rainymodel/internal/planner"
	"github.com/orcest-ai/rainymodel/internal/upstream"
	"github.com/orcest-ai/rainymodel/types"
	"go.uber.org/zap"
)

// =============================================================================
// Chat completion handler
// =============================================================================

// Header names the Request Pipeline's observability contract attaches to
// every /v1/chat/completions response, success or failure (spec §4.3).
const (
	headerRoute          = "x-rainymodel-route"
	headerUpstream       = "x-rainymodel-upstream"
	headerModel          = "x-rainymodel-model"
	headerLatencyMS      = "x-rainymodel-latency-ms"
	headerFallbackReason = "x-rainymodel-fallback-reason"
	headerTried          = "x-rainymodel-tried"
	headerPolicy         = "X-RainyModel-Policy"
	headerProvider       = "X-RainyModel-Provider"
)

// allowedMessageRoles is the closed set of roles types.Message accepts.
var allowedMessageRoles = []string{
	string(types.RoleSystem), string(types.RoleUser), string(types.RoleAssistant), string(types.RoleTool),
}

// ChatHandler drives the Request Pipeline for the OpenAI-compatible
// /v1/chat/completions route, the one endpoint that replies with a raw
// completion/error body instead of the Response envelope.
type ChatHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewChatHandler builds a ChatHandler bound to the given pipeline.
func NewChatHandler(pl *pipeline.Pipeline, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{pipeline: pl, logger: logger}
}

// HandleCompletion implements POST /v1/chat/completions: unary and
// streaming requests share parsing and plan construction, diverging only
// at the point the pipeline is invoked.
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var body api.ChatCompletionRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	if len(body.Messages) == 0 {
		h.writeChatError(w, types.NewError(types.ErrInvalidRequest, "messages cannot be empty"))
		return
	}

	for _, m := range body.Messages {
		if !ValidateEnum(string(m.Role), allowedMessageRoles) {
			h.writeChatError(w, types.NewError(types.ErrInvalidRequest, "invalid message role: "+string(m.Role)))
			return
		}
	}
	if body.MaxTokens != nil && !ValidateNonNegative(float64(*body.MaxTokens)) {
		h.writeChatError(w, types.NewError(types.ErrInvalidRequest, "max_tokens must be non-negative"))
		return
	}
	if body.N != nil && !ValidateNonNegative(float64(*body.N)) {
		h.writeChatError(w, types.NewError(types.ErrInvalidRequest, "n must be non-negative"))
		return
	}

	req := pipeline.Request{
		Alias:            pipeline.CoerceAlias(body.Model),
		Policy:           planner.NormalizePolicy(r.Header.Get(headerPolicy)),
		ProviderOverride: r.Header.Get(headerProvider),
		Messages:         body.Messages,
		Passthrough:      body.Passthrough(),
		IsStream:         body.Stream,
	}

	if req.IsStream {
		h.handleStream(w, r, req)
		return
	}
	h.handleUnary(w, r, req)
}

func (h *ChatHandler) handleUnary(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	result, failure := h.pipeline.RunUnary(r.Context(), req)
	if failure != nil {
		writeHeaders(w, failure.Headers)
		h.writeChatError(w, types.NewError(types.ErrServiceUnavailable, failure.Message).WithHTTPStatus(http.StatusBadGateway))
		return
	}

	writeHeaders(w, result.Headers)
	WriteJSON(w, http.StatusOK, result.Response.CanonicalDict())
}

// handleStream relays Session.Chunks as SSE frames. A client disconnect
// (ctx.Done fires before the channel closes) is recorded as
// error_type="ClientDisconnect" and never triggers fallback — the stream
// has already committed to one deployment per §4.3.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	session, failure := h.pipeline.OpenStream(r.Context(), req)
	if failure != nil {
		writeHeaders(w, failure.Headers)
		h.writeChatError(w, types.NewError(types.ErrServiceUnavailable, failure.Message).WithHTTPStatus(http.StatusBadGateway))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		session.Finish(pipeline.StreamUsage{}, types.NewError(types.ErrInternalError, "streaming not supported"), false)
		h.writeChatError(w, types.NewError(types.ErrInternalError, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	writeHeaders(w, session.Headers)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var usage pipeline.StreamUsage
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			session.Finish(usage, nil, true)
			return
		case chunk, open := <-session.Chunks:
			if !open {
				session.Finish(usage, nil, false)
				h.writeDone(w, flusher)
				return
			}
			if chunk.Err != nil {
				h.writeStreamError(w, flusher, chunk.Err)
				h.writeDone(w, flusher)
				session.Finish(usage, chunk.Err, false)
				return
			}
			if chunk.Usage != nil {
				usage.InputTokens = chunk.Usage.PromptTokens
				usage.OutputTokens = chunk.Usage.CompletionTokens
			}
			h.writeChunk(w, flusher, &chunk)
		}
	}
}

func writeHeaders(w http.ResponseWriter, h pipeline.Headers) {
	w.Header().Set(headerRoute, h.Route)
	w.Header().Set(headerUpstream, h.Upstream)
	w.Header().Set(headerModel, h.Model)
	w.Header().Set(headerLatencyMS, strconv.Itoa(h.LatencyMS))
	if h.FallbackReason != "" {
		w.Header().Set(headerFallbackReason, h.FallbackReason)
	}
	if len(h.Tried) > 0 {
		w.Header().Set(headerTried, strings.Join(h.Tried, ","))
	}
}

func (h *ChatHandler) writeChunk(w http.ResponseWriter, flusher http.Flusher, chunk *upstream.StreamChunk) {
	w.Write([]byte("data: "))
	_ = json.NewEncoder(w).Encode(chunk.CanonicalDict())
	w.Write([]byte("\n"))
	flusher.Flush()
}

func (h *ChatHandler) writeStreamError(w http.ResponseWriter, flusher http.Flusher, err error) {
	payload, _ := json.Marshal(map[string]any{
		"error": map[string]string{"message": err.Error(), "type": "stream_error"},
	})
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

func (h *ChatHandler) writeDone(w http.ResponseWriter, flusher http.Flusher) {
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err *types.Error) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}
	WriteJSON(w, status, api.ErrorBody{Error: api.ErrorBodyDetail{Message: err.Message, Type: string(err.Code)}})
}
