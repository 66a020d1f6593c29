package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/kioskhelper/internal/api/http"
	"github.com/GriffinCanCode/kioskhelper/internal/api/middleware"
	"github.com/GriffinCanCode/kioskhelper/internal/api/ws"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/boot"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/events"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/kiosk"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/launch"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/session"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/config"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/health"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/platform/bridge"
	"github.com/GriffinCanCode/kioskhelper/internal/platform/memory"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// healthInterval is how often the background probe round runs
const healthInterval = 15 * time.Second

// Server wires the agent together and owns its listeners
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	bus     *events.Bus
	kiosk   *kiosk.Controller
	guard   *boot.Guard
	health  *health.Server
	router  *gin.Engine
	device  platform.Device

	httpServer *http.Server
	closeOnce  sync.Once
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Info("Initializing kioskhelper",
		zap.String("addr", cfg.Server.Address()),
		zap.String("driver", cfg.Platform.Driver),
		zap.String("own_package", cfg.Kiosk.OwnPackage),
		zap.String("default_mode", cfg.Kiosk.DefaultMode),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("kioskhelper", logger.Component("tracing"))

	var profile *config.Profile
	if cfg.Kiosk.Profile != "" {
		p, err := config.LoadProfile(cfg.Kiosk.Profile)
		if err != nil {
			tracer.Close()
			return nil, err
		}
		profile = p
		logger.Info("Loaded kiosk profile", zap.String("path", cfg.Kiosk.Profile))
	}
	defaults := types.DefaultCommandDefaults()
	defaults.Mode = types.CommandMode(cfg.Kiosk.DefaultMode)
	defaults = profile.CommandDefaults(defaults)

	device, bridgeClient, err := newDevice(cfg, logger, metrics)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	store, err := session.NewFileStore(cfg.Kiosk.StateDir, cfg.Kiosk.OwnPackage, logger.Component("session"))
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	bus := events.NewBus(logger.Component("events")).WithMetrics(metrics)
	webhook := events.NewWebhook(events.WebhookConfig{
		Timeout:      cfg.Broadcast.Timeout,
		MaxRetries:   cfg.Broadcast.Retries,
		RetryWaitMin: events.DefaultWebhookConfig().RetryWaitMin,
		RetryWaitMax: events.DefaultWebhookConfig().RetryWaitMax,
	}, logger.Component("webhook"))
	if cfg.Broadcast.WebhookURL != "" {
		bus.AddSink(events.NewWebhookSink(webhook, cfg.Broadcast.WebhookURL))
		logger.Info("Broadcast webhook enabled", zap.String("url", cfg.Broadcast.WebhookURL))
	}

	alternates := launch.DefaultAlternates()
	for pkg, classes := range profile.Alternates() {
		alternates[pkg] = classes
	}
	resolver := launch.New(device, alternates, logger.Component("launch")).
		WithMetrics(metrics).
		WithHistory(launch.NewHistory(cfg.Kiosk.DiagnosticsHistory))

	ctrl, err := kiosk.New(kiosk.Config{
		OwnPackage:     cfg.Kiosk.OwnPackage,
		HomeActivity:   cfg.Kiosk.HomeActivity,
		DefaultTarget:  cfg.Kiosk.DefaultTarget,
		CallTimeout:    cfg.Kiosk.CallTimeout,
		ResolveTimeout: cfg.Kiosk.ResolveTimeout,
	}, kiosk.Deps{
		Admin:    device,
		Policy:   device,
		Notify:   device,
		Home:     device,
		Launcher: device,
		Resolver: resolver,
		Store:    store,
		Events:   bus,
	}, logger.Component("kiosk"))
	if err != nil {
		bus.Close()
		tracer.Close()
		return nil, err
	}
	ctrl = ctrl.WithMetrics(metrics)

	guard := boot.NewGuard(device, ctrl, resolver, device, cfg.Kiosk.DefaultTarget, logger.Component("boot")).
		WithMetrics(metrics).
		WithEvents(bus).
		WithTimeout(cfg.Kiosk.ResolveTimeout)

	hs := health.New(logger.Component("health"), tracer)
	hs.Register("kiosk.session", func(ctx context.Context) error {
		_, err := store.Load(ctx)
		return err
	})
	if bridgeClient != nil {
		hs.Register("kiosk.platform", func(context.Context) error {
			if state := bridgeClient.BreakerState(); state == resilience.StateOpen {
				return fmt.Errorf("bridge circuit %s", state)
			}
			return nil
		})
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := api.NewHandlers(api.Deps{
		Kiosk:     ctrl,
		Guard:     guard,
		History:   resolver.History(),
		Events:    bus,
		Callbacks: webhook,
		Health:    hs,
		Defaults:  defaults,
	}, logger.Component("api"))
	handlers.Register(router)

	wsHandler := ws.NewHandler(bus, cfg.Server.CORSOrigins, logger.Component("ws")).WithMetrics(metrics)
	router.GET("/v1/events", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.SetKioskPrepared(ctrl.IsPrepared(context.Background()))
	logger.Info("Server initialized successfully",
		zap.String("state_file", filepath.Clean(store.Path())),
	)

	return &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		bus:     bus,
		kiosk:   ctrl,
		guard:   guard,
		health:  hs,
		router:  router,
		device:  device,
	}, nil
}

// newDevice builds the configured platform driver. The bridge client is
// returned separately so its breaker can be probed.
func newDevice(full *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (platform.Device, *bridge.Client, error) {
	cfg := full.Platform
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("Using the simulated in-memory device", zap.String("target", full.Kiosk.DefaultTarget))
		dev := memory.New().Install(platform.PackageInfo{
			Package:    full.Kiosk.DefaultTarget,
			Enabled:    true,
			Activities: []platform.ActivityInfo{{Class: ".MainActivity", Exported: true, Enabled: true}},
		}, ".MainActivity")
		return dev, nil, nil
	case config.DriverBridge:
		bcfg := bridge.DefaultConfig()
		bcfg.BaseURL = cfg.BridgeURL
		bcfg.Token = cfg.BridgeToken
		bcfg.Timeout = cfg.Timeout
		bcfg.MaxRetries = cfg.Retries
		bcfg.RateLimit = cfg.RateLimit
		client, err := bridge.New(bcfg, logger.Component("bridge"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create bridge client: %w", err)
		}
		return client.WithMetrics(metrics), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown platform driver %q", cfg.Driver)
	}
}

// Handler returns the compressed HTTP handler
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Kiosk returns the controller
func (s *Server) Kiosk() *kiosk.Controller {
	return s.kiosk
}

// Run serves HTTP (and gRPC health when enabled) until ctx is canceled, then
// shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Address()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.config.Health.Enabled {
		lis, err := net.Listen("tcp", s.config.Health.Address)
		if err != nil {
			_ = s.httpServer.Close()
			return fmt.Errorf("failed to listen for gRPC health: %w", err)
		}
		go func() {
			if err := s.health.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}

	probeCtx, stopProbes := context.WithCancel(ctx)
	defer stopProbes()
	go s.health.Run(probeCtx, healthInterval)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.Close()
		return err
	}
	return s.Close()
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
			defer cancel()
			if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
				s.logger.Error("HTTP shutdown failed", zap.Error(shutdownErr))
				err = fmt.Errorf("failed to shut down http server: %w", shutdownErr)
			}
		}
		s.health.Stop()
		s.bus.Close()
		s.tracer.Close()

		// Sync logger before exit
		_ = s.logger.Sync()
	})
	return err
}
