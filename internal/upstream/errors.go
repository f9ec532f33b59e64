package upstream

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/orcest-ai/rainymodel/types"
)

// MapHTTPError converts an upstream HTTP status and body into the unified
// *types.Error taxonomy, so the rest of the pipeline never branches on raw
// status codes.
func MapHTTPError(status int, body []byte, provider string) *types.Error {
	msg := readErrorMessage(body)

	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrAuthentication, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithProvider(provider).WithRetryable(true)
	case http.StatusBadRequest:
		if containsQuotaKeyword(msg) {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status).WithProvider(provider)
		}
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusNotFound:
		return types.NewError(types.ErrModelNotFound, msg).WithHTTPStatus(status).WithProvider(provider)
	case 529:
		return types.NewError(types.ErrModelOverloaded, msg).WithHTTPStatus(status).WithProvider(provider).WithRetryable(true)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithProvider(provider).WithRetryable(true)
	default:
		e := types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithProvider(provider)
		if status >= 500 {
			e = e.WithRetryable(true)
		}
		return e
	}
}

func containsQuotaKeyword(msg string) bool {
	return containsFold(msg, "quota") || containsFold(msg, "insufficient") || containsFold(msg, "exceeded your current")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	sl, sb := []rune(toLower(s)), []rune(toLower(substr))
	if len(sb) == 0 || len(sl) < len(sb) {
		return -1
	}
	for i := 0; i+len(sb) <= len(sl); i++ {
		match := true
		for j := range sb {
			if sl[i+j] != sb[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + 32
		}
	}
	return string(out)
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// readErrorMessage extracts a human-readable message from an upstream error
// body, falling back to the raw body when it isn't the expected shape.
func readErrorMessage(body []byte) string {
	if len(body) == 0 {
		return "upstream returned an error with no body"
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error.Message != "" {
			return env.Error.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	const maxLen = 500
	if len(body) > maxLen {
		return string(body[:maxLen])
	}
	return string(body)
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
