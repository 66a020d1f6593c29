// Package boot relaunches the kiosk target after a device restart.
//
// One physical boot can deliver up to three restart signals. The guard holds
// a latch that is set by the first successful bring-up and suppresses every
// later signal until the process restarts. Privilege and the persisted
// prepared flag are re-checked on each signal, since either may have changed
// since the session was applied. The guard never writes the session record.
package boot

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"go.uber.org/zap"
)

// Restart signals
const (
	SignalLockedBootCompleted = "LOCKED_BOOT_COMPLETED"
	SignalBootCompleted       = "BOOT_COMPLETED"
	SignalUserUnlocked        = "USER_UNLOCKED"
)

// Outcome describes what a signal led to
type Outcome string

const (
	OutcomeLaunched     Outcome = "launched"
	OutcomeLatched      Outcome = "latched"
	OutcomeNotOwner     Outcome = "not_owner"
	OutcomeNotPrepared  Outcome = "not_prepared"
	OutcomeUnresolvable Outcome = "unresolvable"
	OutcomeFailed       Outcome = "failed"
	OutcomeUnknown      Outcome = "unknown_signal"
)

// Known reports whether signal is one of the restart signals
func Known(signal string) bool {
	switch signal {
	case SignalLockedBootCompleted, SignalBootCompleted, SignalUserUnlocked:
		return true
	}
	return false
}

// SessionReader exposes the persisted prepared flag and the pinned package
type SessionReader interface {
	IsPrepared(ctx context.Context) bool
	SessionTarget(ctx context.Context) string
}

// TargetResolver finds the entry point to bring up
type TargetResolver interface {
	Resolve(ctx context.Context, pkg string) (types.Component, bool)
}

// Publisher receives fire-and-forget announcements
type Publisher interface {
	Publish(event types.Event)
}

// Guard runs the relaunch at most once per process lifetime
type Guard struct {
	admin    platform.Admin
	session  SessionReader
	resolver TargetResolver
	launcher platform.Launcher
	target   string
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	events   Publisher

	mu       sync.Mutex
	launched bool
}

// NewGuard creates a guard that brings up the session's pinned package, or
// target when the record names none
func NewGuard(admin platform.Admin, session SessionReader, resolver TargetResolver, launcher platform.Launcher, target string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		admin:    admin,
		session:  session,
		resolver: resolver,
		launcher: launcher,
		target:   target,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// WithMetrics records signal outcomes
func (g *Guard) WithMetrics(metrics *monitoring.Metrics) *Guard {
	g.metrics = metrics
	return g
}

// WithEvents announces successful relaunches
func (g *Guard) WithEvents(events Publisher) *Guard {
	g.events = events
	return g
}

// WithTimeout bounds each platform call
func (g *Guard) WithTimeout(d time.Duration) *Guard {
	if d > 0 {
		g.timeout = d
	}
	return g
}

// Launched reports whether the latch is set
func (g *Guard) Launched() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.launched
}

// Handle processes one restart signal. Signals are handled one at a time.
func (g *Guard) Handle(ctx context.Context, signal string) (outcome Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	log := g.logger.With(zap.String("signal", signal))
	defer func() {
		if g.metrics == nil {
			return
		}
		label := signal
		if !Known(signal) {
			label = "other"
		}
		g.metrics.RecordBootSignal(label, string(outcome))
	}()

	if !Known(signal) {
		log.Debug("Ignoring unknown signal")
		return OutcomeUnknown
	}
	if g.launched {
		log.Info("Already launched once; ignoring")
		return OutcomeLatched
	}

	ctx = context.WithoutCancel(ctx)
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	owner, err := g.admin.IsDeviceOwner(cctx)
	cancel()
	if err != nil {
		log.Warn("Device owner check failed; skipping launch", zap.Error(err))
		return OutcomeNotOwner
	}
	prepared := g.session.IsPrepared(ctx)
	log.Info("Restart signal received", zap.Bool("device_owner", owner), zap.Bool("prepared", prepared))

	if !owner {
		return OutcomeNotOwner
	}
	if !prepared {
		return OutcomeNotPrepared
	}

	target := g.session.SessionTarget(ctx)
	if target == "" {
		target = g.target
	}
	cctx, cancel = context.WithTimeout(ctx, g.timeout)
	entry, ok := g.resolver.Resolve(cctx, target)
	cancel()
	if !ok {
		log.Warn("Target not found; skipping launch", zap.String("target", target))
		return OutcomeUnresolvable
	}

	cctx, cancel = context.WithTimeout(ctx, g.timeout)
	err = g.launcher.StartActivity(cctx, entry, platform.StartOptions{NewTask: true, ClearTop: true})
	cancel()
	if err != nil {
		log.Warn("Failed to start target", zap.Stringer("component", entry), zap.Error(err))
		return OutcomeFailed
	}

	g.launched = true
	log.Info("Launched target; guard set", zap.Stringer("component", entry))
	if g.events != nil {
		g.events.Publish(types.Event{Type: types.EventRelaunched, Package: entry.Package})
	}
	return OutcomeLaunched
}
