package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_DecodesClientErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "INVALID_ACTIVATION_TOKEN",
			"context": map[string]any{"params": "id"},
		})
	}))
	defer srv.Close()

	tr := transport.NewHTTPTransport(srv.URL, nil)
	_, err := tr.Do(context.Background(), transport.Request{Method: "POST", Path: "/rps/v2/user"})
	require.Error(t, err)

	var clientErr *transport.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "INVALID_ACTIVATION_TOKEN", clientErr.Code)
	assert.Equal(t, "id", clientErr.ParamsContext())
}

func TestHTTPTransport_ServerErrorFor5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := transport.NewHTTPTransport(srv.URL, nil)
	_, err := tr.Do(context.Background(), transport.Request{Method: "GET", Path: "/x"})
	require.Error(t, err)

	var serverErr *transport.ServerError
	require.ErrorAs(t, err, &serverErr)
}

func TestHTTPTransport_SuccessReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	tr := transport.NewHTTPTransport(srv.URL, nil)
	resp, err := tr.Do(context.Background(), transport.Request{Method: "GET", Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
