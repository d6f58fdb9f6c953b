package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/product-image-sampler/internal/util"
)

// errorEnvelope covers the error shapes returned by the upstream APIs this
// module talks to. Unknown fields are ignored.
type errorEnvelope struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// HTTPError is a sanitized summary of a non-2xx upstream response.
//
// Raw response bodies are never included (they can echo keys and PII).
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string

	// Snippet is a redacted, truncated hint for responses without a message.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	parts := []string{
		fmt.Sprintf("upstream api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// Retryable reports whether the status is worth retrying.
func (e *HTTPError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewHTTPError builds an HTTPError from resp and its already-read body.
func NewHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		msg := strings.TrimSpace(env.Message)
		if s, ok := env.Error.(string); ok && strings.TrimSpace(s) != "" {
			msg = strings.TrimSpace(s)
		}
		if msg != "" {
			h.Message = truncate(util.RedactSecrets(msg))
			return h
		}
	}

	h.Snippet = truncate(util.RedactSecrets(string(body)))
	return h
}

func truncate(s string) string {
	const max = 256
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
