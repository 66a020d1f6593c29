package health

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
)

// Probe reports whether one dependency is usable
type Probe func(ctx context.Context) error

// Report is the outcome of one probe round
type Report struct {
	Healthy  bool              `json:"healthy"`
	Checks   map[string]string `json:"checks"`
	Duration time.Duration     `json:"-"`
}

// Server serves grpc.health.v1 with statuses driven by registered probes.
// The empty service name reflects the conjunction of all probes.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	probes map[string]Probe
	last   Report
}

// New creates a health server. tracer may be nil.
func New(logger *zap.Logger, tracer *tracing.Tracer) *Server {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           10 * time.Second,
		}),
	}
	if tracer != nil {
		opts = append(opts, grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)))
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		grpc:    gs,
		health:  hs,
		logger:  logger,
		timeout: 2 * time.Second,
		probes:  make(map[string]Probe),
	}
}

// Register adds a probe under a service name
func (s *Server) Register(service string, probe Probe) {
	s.mu.Lock()
	s.probes[service] = probe
	s.mu.Unlock()
	s.health.SetServingStatus(service, healthpb.HealthCheckResponse_UNKNOWN)
}

// Check runs every probe and publishes the statuses
func (s *Server) Check(ctx context.Context) Report {
	start := time.Now()

	s.mu.RLock()
	names := make([]string, 0, len(s.probes))
	probes := make(map[string]Probe, len(s.probes))
	for name, probe := range s.probes {
		names = append(names, name)
		probes[name] = probe
	}
	s.mu.RUnlock()
	sort.Strings(names)

	report := Report{Healthy: true, Checks: make(map[string]string, len(names))}
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := probes[name](pctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		report.Checks[name] = "ok"
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			report.Checks[name] = err.Error()
			report.Healthy = false
			s.logger.Warn("Health probe failed", zap.String("service", name), zap.Error(err))
		}
		s.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !report.Healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	report.Duration = time.Since(start)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report
}

// Last returns the most recent report
func (s *Server) Last() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run probes on every tick until ctx is done
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Serve blocks serving gRPC on lis
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC health server", zap.String("addr", lis.Addr().String()))
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop marks everything NOT_SERVING and stops the gRPC server
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
