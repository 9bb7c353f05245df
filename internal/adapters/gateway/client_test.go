package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chatrelay/internal/adapters/gateway"
	"github.com/PabloGalante/chatrelay/internal/domain"
)

func newGatewayServer(t *testing.T, handler http.HandlerFunc) *gateway.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return gateway.NewClient(srv.URL + "/")
}

func TestCompleteSuccess(t *testing.T) {
	client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req gateway.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Message)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reply":"hi there"}`))
	})

	reply, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestCompleteEmptyReplyIsValid(t *testing.T) {
	client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reply":""}`))
	})

	reply, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "", reply)
}

func TestCompleteFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "server error with reply", status: http.StatusInternalServerError, body: `{"reply":"quota exceeded"}`, wantMsg: "quota exceeded"},
		{name: "non-json error", status: http.StatusBadGateway, body: "bad gateway", wantMsg: "bad gateway"},
		{name: "malformed success body", status: http.StatusOK, body: `{"reply":`, wantMsg: "parse response"},
		{name: "missing reply field", status: http.StatusOK, body: `{"answer":"x"}`, wantMsg: "no reply field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Complete(context.Background(), "hello")
			require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestCompleteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := gateway.NewClient(url).Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestCompleteWithCustomHTTPClient(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer srv.Close()

	client := gateway.NewClient(srv.URL, gateway.WithHTTPClient(srv.Client()))
	reply, err := client.Complete(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.True(t, called)
}
