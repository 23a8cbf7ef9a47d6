package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPTransport is the default Transport, backed by net/http. Every call
// carries an X-Request-Id header for log correlation across the client and
// the platform, generated with google/uuid.
type HTTPTransport struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *IdentityLimiter // optional; nil disables the courtesy throttle
}

// NewHTTPTransport builds a transport against baseURL with a sane default
// timeout. Pass identityLimiter = nil to skip client-side throttling.
func NewHTTPTransport(baseURL string, identityLimiter *IdentityLimiter) *HTTPTransport {
	return &HTTPTransport{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Limiter:    identityLimiter,
	}
}

type serverErrorEnvelope struct {
	Error   string         `json:"error"`
	Info    string         `json:"info"`
	Context map[string]any `json:"context"`
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx, identityFromContext(ctx)); err != nil {
			return Response{}, &ExecutionError{Cause: err}
		}
	}

	u, err := url.Parse(t.BaseURL + req.Path)
	if err != nil {
		return Response{}, &ExecutionError{Cause: err}
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, &ExecutionError{Cause: fmt.Errorf("encoding request body: %w", err)}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bodyReader)
	if err != nil {
		return Response{}, &ExecutionError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := t.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, &ExecutionError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &ExecutionError{Cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Response{StatusCode: resp.StatusCode, Body: data}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var env serverErrorEnvelope
		_ = json.Unmarshal(data, &env)
		return Response{}, &ClientError{
			StatusCode: resp.StatusCode,
			Code:       env.Error,
			Info:       env.Info,
			Context:    env.Context,
		}
	default:
		return Response{}, &ServerError{StatusCode: resp.StatusCode, Body: string(data)}
	}
}

type identityContextKey struct{}

// WithIdentity attaches the userId/projectId pair the courtesy rate
// limiter should key on. Components call this before issuing a request
// that should be throttled per-identity.
func WithIdentity(ctx context.Context, userID, projectID string) context.Context {
	return context.WithValue(ctx, identityContextKey{}, userID+"\x00"+projectID)
}

func identityFromContext(ctx context.Context) string {
	v, _ := ctx.Value(identityContextKey{}).(string)
	return v
}
