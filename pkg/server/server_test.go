package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mcpd/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Protocol: config.ProtocolConfig{
			ServerName:    "mcpd-test",
			ServerVersion: "0.0.1",
		},
	}
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mcpd-test", resp.Service)
	assert.Equal(t, "0.0.1", resp.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStart_GracefulShutdown(t *testing.T) {
	srv := NewServer(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Give the listener a moment, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.Equal(t, http.ErrServerClosed, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
