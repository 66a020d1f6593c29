package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/config"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Platform.Driver = config.DriverMemory
	cfg.Kiosk.StateDir = t.TempDir()
	cfg.Health.Enabled = false
	cfg.RateLimit.Enabled = false
	cfg.Server.Port = "0"
	cfg.Logging.Development = true
	return cfg
}

func post(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	defer srv.Close()
	h := srv.Handler()

	w := post(t, h, "/v1/kiosk/commands", map[string]string{"action": "enable", "mode": "apply"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
	assert.True(t, srv.Kiosk().IsPrepared(context.Background()))

	// the session record lands under the own-package namespace
	_, err = os.Stat(filepath.Join(cfg.Kiosk.StateDir, cfg.Kiosk.OwnPackage))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/kiosk", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var status types.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Prepared)

	w = post(t, h, "/v1/kiosk/commands", map[string]string{"action": "disable"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, srv.Kiosk().IsPrepared(context.Background()))
}

func TestServerMetricsCompressed(t *testing.T) {
	srv, err := NewServer(testConfig(t), logging.NewNop())
	require.NoError(t, err)
	defer srv.Close()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

func TestServerProfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kiosk.Profile = filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(cfg.Kiosk.Profile, []byte("defaults:\n  allowlist: [com.example.keyboard]\n  dndMode: none\n"), 0o600))

	srv, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	defer srv.Close()

	w := post(t, srv.Handler(), "/v1/kiosk/commands", map[string]string{"action": "enable"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cfg.Kiosk.Profile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewServer(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestServerRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Platform.Driver = "adb"
	_, err := NewServer(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestServerBridgeDriverHealth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Platform.Driver = config.DriverBridge
	cfg.Platform.BridgeURL = "http://127.0.0.1:1"

	srv, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	defer srv.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	// a closed breaker reports healthy even before the companion answers
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "kiosk.platform")
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv, err := NewServer(testConfig(t), logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
