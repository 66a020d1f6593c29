package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kioskhelper/internal/domain/boot"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/kiosk"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/launch"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/health"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/id"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// Callbacker delivers a command result to the caller-supplied URL
type Callbacker interface {
	Post(ctx context.Context, url string, v interface{}) error
}

// Deps are the collaborators the handlers dispatch to
type Deps struct {
	Kiosk   *kiosk.Controller
	Guard   *boot.Guard
	History *launch.History
	Events  kiosk.Publisher
	// Callbacks is optional; without it resultCallback is ignored
	Callbacks Callbacker
	// Health is optional; without it /health only reports liveness
	Health   *health.Server
	Defaults types.CommandDefaults
}

// Handlers contains all HTTP handlers
type Handlers struct {
	deps            Deps
	logger          *zap.Logger
	callbackTimeout time.Duration
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{deps: deps, logger: logger, callbackTimeout: 10 * time.Second}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	v1.POST("/kiosk/commands", h.Command)
	v1.GET("/kiosk", h.Status)
	v1.GET("/kiosk/diagnostics", h.Diagnostics)
	v1.POST("/platform/events", h.PlatformEvent)
	v1.POST("/boot/signals", h.BootSignal)
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "kioskhelper",
		"version": Version,
	})
}

// Health runs the dependency probes
func (h *Handlers) Health(c *gin.Context) {
	if h.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	report := h.deps.Health.Check(c.Request.Context())
	status, code := "healthy", http.StatusOK
	if !report.Healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"checks":  report.Checks,
		"elapsed": report.Duration.String(),
	})
}

// Command runs one enable/disable command and answers with its result code
func (h *Handlers) Command(c *gin.Context) {
	requestID := id.NewRequestID()
	log := h.logger.With(zap.String("request_id", requestID.String()))
	log = log.With(tracing.Fields(c.Request.Context())...)

	if code := h.deps.Kiosk.Authorize(c.Request.Context()); !code.OK() {
		log.Warn("Refused command from unprivileged caller", zap.String("status", string(code)))
		h.respond(c, requestID, code)
		return
	}

	var cmd types.CommandRequest
	if err := c.ShouldBindJSON(&cmd); err != nil {
		log.Warn("Rejected malformed command", zap.Error(err))
		h.respond(c, requestID, types.ResultInvalidRequest)
		return
	}
	if cmd.ResultCallback != "" && !validCallback(cmd.ResultCallback) {
		log.Warn("Rejected command with invalid result callback", zap.String("callback", cmd.ResultCallback))
		h.respond(c, requestID, types.ResultInvalidRequest)
		return
	}

	req, mode, err := cmd.KioskRequest(h.deps.Defaults)
	if err != nil {
		log.Warn("Rejected invalid command", zap.String("action", string(cmd.Action)), zap.Error(err))
		h.respond(c, requestID, types.ResultInvalidRequest)
		h.callback(log, cmd, requestID, types.ResultInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	var code types.ResultCode
	switch {
	case cmd.Action == types.ActionDisable:
		code = h.deps.Kiosk.Clear(ctx)
	case mode == types.ModeApply:
		code = h.deps.Kiosk.Apply(ctx, req)
	default:
		code = h.deps.Kiosk.Prepare(ctx, req)
	}

	log.Info("Command finished",
		zap.String("action", string(cmd.Action)),
		zap.String("mode", string(mode)),
		zap.String("status", string(code)),
	)
	h.respond(c, requestID, code)
	h.callback(log, cmd, requestID, code)
}

func (h *Handlers) respond(c *gin.Context, requestID id.RequestID, code types.ResultCode) {
	c.JSON(httpStatus(code), types.CommandResponse{Status: code, RequestID: requestID.String()})
}

// callback posts the result in the background. Failures are logged only.
func (h *Handlers) callback(log *zap.Logger, cmd types.CommandRequest, requestID id.RequestID, code types.ResultCode) {
	if cmd.ResultCallback == "" || h.deps.Callbacks == nil {
		return
	}
	payload := types.CommandResponse{Status: code, RequestID: requestID.String()}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.callbackTimeout)
		defer cancel()
		if err := h.deps.Callbacks.Post(ctx, cmd.ResultCallback, payload); err != nil {
			log.Warn("Result callback failed", zap.String("callback", cmd.ResultCallback), zap.Error(err))
		}
	}()
}

// Status reports the persisted session
func (h *Handlers) Status(c *gin.Context) {
	state, err := h.deps.Kiosk.State(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read session state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": types.ResultInternal})
		return
	}
	resp := types.StatusResponse{Prepared: state.Applied}
	if state.Applied && state.PreviousHome != nil {
		resp.PreviousHome = state.PreviousHome.String()
	}
	c.JSON(http.StatusOK, resp)
}

// Diagnostics lists recent unresolvable-launch bundles
func (h *Handlers) Diagnostics(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusOK, gin.H{"diagnostics": []launch.Diagnostic{}, "count": 0})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	recent := h.deps.History.Recent(limit, c.Query("package"))
	c.JSON(http.StatusOK, gin.H{
		"diagnostics": recent,
		"count":       len(recent),
		"total":       h.deps.History.Len(),
	})
}

// PlatformEvent accepts lock-task and admin lifecycle reports from the device side
func (h *Handlers) PlatformEvent(c *gin.Context) {
	var ev types.PlatformEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventType := types.EventType(ev.Type)
	switch eventType {
	case types.EventLockTaskEntering:
		if !types.ValidPackageName(ev.Package) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lock-task-entering requires a package"})
			return
		}
	case types.EventLockTaskExiting, types.EventAdminEnabled, types.EventAdminDisabled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform event " + strconv.Quote(ev.Type)})
		return
	}

	h.logger.Info("Platform lifecycle event",
		zap.String("event", ev.Type),
		zap.String("package", ev.Package),
	)
	if h.deps.Events != nil {
		h.deps.Events.Publish(types.Event{Type: eventType, Package: ev.Package})
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// BootSignal hands a restart signal to the relaunch guard
func (h *Handlers) BootSignal(c *gin.Context) {
	var req types.BootSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome := h.deps.Guard.Handle(c.Request.Context(), req.Signal)
	c.JSON(http.StatusOK, gin.H{
		"signal":   req.Signal,
		"outcome":  outcome,
		"launched": h.deps.Guard.Launched(),
	})
}

func httpStatus(code types.ResultCode) int {
	switch code {
	case types.ResultOK:
		return http.StatusOK
	case types.ResultInvalidRequest:
		return http.StatusBadRequest
	case types.ResultNotPrivileged:
		return http.StatusForbidden
	case types.ResultPermissionMissing:
		return http.StatusPreconditionFailed
	case types.ResultTargetUnresolvable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func validCallback(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
