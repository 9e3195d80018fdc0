package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker_StatusRange(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		min, max int
		healthy  bool
	}{
		{name: "ok", status: http.StatusOK, min: 200, max: 399, healthy: true},
		{name: "server error", status: http.StatusInternalServerError, min: 200, max: 399, healthy: false},
		{name: "created in narrow range", status: http.StatusCreated, min: 201, max: 201, healthy: true},
		{name: "ok outside narrow range", status: http.StatusOK, min: 204, max: 204, healthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			result := NewHTTPChecker(server.URL).WithStatusRange(tt.min, tt.max).Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
			assert.Positive(t, result.Duration)
		})
	}
}

func TestHTTPChecker_PostWithBodyAndAuth(t *testing.T) {
	type request struct {
		method      string
		user        string
		contentType string
		body        map[string]string
	}
	received := make(chan request, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := request{method: r.Method, contentType: r.Header.Get("Content-Type")}
		req.user, _, _ = r.BasicAuth()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req.body)
		received <- req
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).
		WithMethod(http.MethodPost).
		WithJSONBody([]byte(`{"ResetType":"ForceOff"}`)).
		WithBasicAuth("admin", "secret").
		Check(context.Background())
	require.True(t, result.Healthy, result.Message)

	got := <-received
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "admin", got.user)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "ForceOff", got.body["ResetType"])
}

func TestHTTPChecker_CustomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Probe") != "warden" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithHeader("X-Probe", "warden").Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithTimeout(20 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestRun_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Run(ctx, NewHTTPChecker(server.URL))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRun_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := Run(context.Background(), NewHTTPChecker(server.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, CheckTypeHTTP, NewHTTPChecker(server.URL).Type())
}
