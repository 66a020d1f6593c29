package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/platform/memory"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// companion serves the bridge API on top of a simulated device
type companion struct {
	dev   *memory.Device
	token string

	mu       sync.Mutex
	requests int
	headers  []http.Header
	// override answers the next n requests with status, when set
	override struct {
		n      int
		status int
	}
}

func newCompanion(t *testing.T, dev *memory.Device, token string) (*companion, *httptest.Server) {
	t.Helper()
	c := &companion{dev: dev, token: token}
	srv := httptest.NewServer(c.routes())
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *companion) failNext(n, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override.n = n
	c.override.status = status
}

func (c *companion) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func (c *companion) lastHeader() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headers) == 0 {
		return nil
	}
	return c.headers[len(c.headers)-1]
}

func (c *companion) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/admin/status", func(w http.ResponseWriter, r *http.Request) {
		owner, err := c.dev.IsDeviceOwner(r.Context())
		reply(w, adminStatus{DeviceOwner: owner}, err)
	})
	mux.HandleFunc("PUT /v1/lock-task/packages", func(w http.ResponseWriter, r *http.Request) {
		var body packagesBody
		decode(r, &body)
		reply(w, nil, c.dev.SetLockTaskPackages(r.Context(), body.Packages))
	})
	mux.HandleFunc("PUT /v1/lock-task/features", func(w http.ResponseWriter, r *http.Request) {
		var body featuresBody
		decode(r, &body)
		reply(w, nil, c.dev.SetLockTaskFeatures(r.Context(), types.Features(body.Features)))
	})
	mux.HandleFunc("PUT /v1/status-bar", func(w http.ResponseWriter, r *http.Request) {
		var body statusBarBody
		decode(r, &body)
		reply(w, nil, c.dev.SetStatusBarDisabled(r.Context(), body.Disabled))
	})
	mux.HandleFunc("POST /v1/preferred-activities/home", func(w http.ResponseWriter, r *http.Request) {
		var body componentBody
		decode(r, &body)
		reply(w, nil, c.dev.AddPersistentPreferredHome(r.Context(), body.Component))
	})
	mux.HandleFunc("DELETE /v1/preferred-activities/{pkg}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, nil, c.dev.ClearPackagePersistentPreferred(r.Context(), r.PathValue("pkg")))
	})
	mux.HandleFunc("GET /v1/notification-policy", func(w http.ResponseWriter, r *http.Request) {
		granted, err := c.dev.PolicyAccessGranted(r.Context())
		reply(w, policyAccess{AccessGranted: granted}, err)
	})
	mux.HandleFunc("PUT /v1/interruption-filter", func(w http.ResponseWriter, r *http.Request) {
		var body filterBody
		decode(r, &body)
		mode, err := types.ParseDNDMode(body.Mode)
		if err == nil {
			err = c.dev.SetInterruptionFilter(r.Context(), mode)
		}
		reply(w, nil, err)
	})
	mux.HandleFunc("GET /v1/home", func(w http.ResponseWriter, r *http.Request) {
		home, found, err := c.dev.CurrentHome(r.Context())
		if err == nil && !found {
			err = platform.ErrNotFound
		}
		reply(w, componentBody{Component: home}, err)
	})
	mux.HandleFunc("POST /v1/activities/start", func(w http.ResponseWriter, r *http.Request) {
		var body startBody
		decode(r, &body)
		opts := platform.StartOptions{LockTask: body.LockTask, NewTask: body.NewTask, ClearTop: body.ClearTop}
		reply(w, nil, c.dev.StartActivity(r.Context(), body.Component, opts))
	})
	mux.HandleFunc("GET /v1/activities/visible", func(w http.ResponseWriter, r *http.Request) {
		comp, err := types.ParseComponent(r.URL.Query().Get("component"))
		if err != nil {
			reply(w, nil, err)
			return
		}
		visible, err := c.dev.ActivityVisible(r.Context(), comp)
		reply(w, visibleBody{Visible: visible}, err)
	})
	mux.HandleFunc("GET /v1/packages/{pkg}/launch-entry", func(w http.ResponseWriter, r *http.Request) {
		entry, found, err := c.dev.LaunchEntry(r.Context(), r.PathValue("pkg"))
		if err == nil && !found {
			err = platform.ErrNotFound
		}
		reply(w, componentBody{Component: entry}, err)
	})
	mux.HandleFunc("GET /v1/packages/{pkg}", func(w http.ResponseWriter, r *http.Request) {
		info, err := c.dev.PackageInfo(r.Context(), r.PathValue("pkg"))
		if err == nil && !info.Installed {
			err = platform.ErrNotFound
		}
		reply(w, info, err)
	})
	mux.HandleFunc("GET /v1/launcher-activities", func(w http.ResponseWriter, r *http.Request) {
		acts, err := c.dev.LauncherActivities(r.Context())
		reply(w, launcherBody{Activities: acts}, err)
	})
	mux.HandleFunc("GET /v1/device", func(w http.ResponseWriter, r *http.Request) {
		info, err := c.dev.DeviceInfo(r.Context())
		reply(w, info, err)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.requests++
		c.headers = append(c.headers, r.Header.Clone())
		status := 0
		if c.override.n > 0 {
			c.override.n--
			status = c.override.status
		}
		c.mu.Unlock()

		if c.token != "" && r.Header.Get("Authorization") != "Bearer "+c.token {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: "bad token"})
			return
		}
		if status != 0 {
			writeJSON(w, status, errorBody{Code: "internal", Message: "injected"})
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func decode(r *http.Request, v interface{}) {
	_ = json.NewDecoder(r.Body).Decode(v)
}

func reply(w http.ResponseWriter, body interface{}, err error) {
	switch {
	case err == nil && body == nil:
		w.WriteHeader(http.StatusNoContent)
	case err == nil:
		writeJSON(w, http.StatusOK, body)
	case errors.Is(err, platform.ErrUnsupported):
		writeJSON(w, http.StatusNotImplemented, errorBody{Code: codeUnsupported, Message: err.Error()})
	case errors.Is(err, platform.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorBody{Code: codePermissionDenied, Message: err.Error()})
	case errors.Is(err, platform.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Code: codeNotFound, Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
