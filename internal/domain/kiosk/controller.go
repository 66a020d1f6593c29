package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"go.uber.org/zap"
)

// Operation names used in logs and metrics
const (
	OpPrepare = "prepare"
	OpApply   = "apply"
	OpClear   = "clear"
)

// SessionStore persists the kiosk session record
type SessionStore interface {
	Load(ctx context.Context) (types.SessionState, error)
	Save(ctx context.Context, state types.SessionState) error
}

// TargetResolver finds the entry point to launch for a package
type TargetResolver interface {
	Resolve(ctx context.Context, pkg string) (types.Component, bool)
}

// Publisher receives fire-and-forget announcements
type Publisher interface {
	Publish(event types.Event)
}

// Config configures the controller
type Config struct {
	// OwnPackage is the agent's package; it is always allow-listed
	OwnPackage string
	// HomeActivity is the agent's home surface class, registered by Apply
	HomeActivity string
	// DefaultTarget is launched by Apply when the request names no target
	DefaultTarget string
	// CallTimeout bounds each gateway call
	CallTimeout time.Duration
	// ResolveTimeout bounds launch resolution including diagnostics
	ResolveTimeout time.Duration
}

// DefaultConfig returns the stock agent identity
func DefaultConfig() Config {
	return Config{
		OwnPackage:     "fi.iki.pnr.kioskhelper",
		HomeActivity:   ".KioskHomeActivity",
		DefaultTarget:  "org.thoughtcrime.securesms",
		CallTimeout:    5 * time.Second,
		ResolveTimeout: 15 * time.Second,
	}
}

// Deps are the collaborators the controller drives
type Deps struct {
	Admin    platform.Admin
	Policy   platform.PolicyGateway
	Notify   platform.NotificationGateway
	Home     platform.HomeResolver
	Launcher platform.Launcher
	Resolver TargetResolver
	Store    SessionStore
	// Events is optional
	Events Publisher
}

// Controller runs the kiosk session state machine. Prepare, Apply and Clear
// are serialized; the persisted record is the only state kept across calls.
type Controller struct {
	cfg      Config
	ownHome  types.Component
	admin    platform.Admin
	policy   platform.PolicyGateway
	notify   platform.NotificationGateway
	home     platform.HomeResolver
	launcher platform.Launcher
	resolver TargetResolver
	store    SessionStore
	events   Publisher
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu sync.Mutex
}

// New creates a controller
func New(cfg Config, deps Deps, logger *zap.Logger) (*Controller, error) {
	defaults := DefaultConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = defaults.ResolveTimeout
	}
	if !types.ValidPackageName(cfg.OwnPackage) {
		return nil, fmt.Errorf("invalid own package %q", cfg.OwnPackage)
	}
	if !types.ValidPackageName(cfg.DefaultTarget) {
		return nil, fmt.Errorf("invalid default target %q", cfg.DefaultTarget)
	}
	ownHome := types.NewComponent(cfg.OwnPackage, cfg.HomeActivity)
	if !ownHome.Valid() {
		return nil, fmt.Errorf("invalid home activity %q", cfg.HomeActivity)
	}
	if deps.Admin == nil || deps.Policy == nil || deps.Notify == nil || deps.Home == nil ||
		deps.Launcher == nil || deps.Resolver == nil || deps.Store == nil {
		return nil, errors.New("kiosk controller: missing dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		cfg:      cfg,
		ownHome:  ownHome,
		admin:    deps.Admin,
		policy:   deps.Policy,
		notify:   deps.Notify,
		home:     deps.Home,
		launcher: deps.Launcher,
		resolver: deps.Resolver,
		store:    deps.Store,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

// WithMetrics records operation outcomes
func (c *Controller) WithMetrics(metrics *monitoring.Metrics) *Controller {
	c.metrics = metrics
	return c
}

// OwnHome returns the agent's home surface component
func (c *Controller) OwnHome() types.Component {
	return c.ownHome
}

// DefaultTarget returns the package Apply launches when none is requested
func (c *Controller) DefaultTarget() string {
	return c.cfg.DefaultTarget
}

// Prepare arms lock-task policy without touching the home surface. The
// target app is expected to pin itself once running.
func (c *Controller) Prepare(ctx context.Context, req types.KioskRequest) types.ResultCode {
	return c.enable(ctx, OpPrepare, req)
}

// Apply arms policy, takes over the home surface and launches the target
// into lock task mode. Any failure after the first mutation is rolled back.
func (c *Controller) Apply(ctx context.Context, req types.KioskRequest) types.ResultCode {
	return c.enable(ctx, OpApply, req)
}

// Clear restores the device. It is idempotent and reports OK once the
// privilege check passes; individual restore failures are only logged.
func (c *Controller) Clear(ctx context.Context) (code types.ResultCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	log := c.logger.With(append(tracing.Fields(ctx), zap.String("operation", OpClear))...)
	defer c.observe(OpClear, time.Now(), &code)

	if rc := c.checkPrivilege(ctx, log); !rc.OK() {
		return rc
	}

	state, err := c.store.Load(ctx)
	if err != nil {
		log.Warn("Failed to load session record; restoring defaults", zap.Error(err))
		state = types.SessionState{}
	}

	c.restore(ctx, log, state, state.DNDAltered)
	if err := c.store.Save(ctx, types.SessionState{}); err != nil {
		log.Error("Failed to persist cleared session", zap.Error(err))
	}
	c.setPrepared(false)
	c.publish(types.Event{Type: types.EventKioskCleared})

	log.Info("Kiosk cleared", zap.Bool("was_applied", state.Applied))
	return types.ResultOK
}

// IsPrepared reports whether a session is recorded as applied. It never mutates.
func (c *Controller) IsPrepared(ctx context.Context) bool {
	state, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("Failed to load session record", zap.Error(err))
		return false
	}
	return state.Applied
}

// Authorize runs the privilege gate alone, for transports that must refuse a
// caller before looking at its command
func (c *Controller) Authorize(ctx context.Context) types.ResultCode {
	ctx = context.WithoutCancel(ctx)
	return c.checkPrivilege(ctx, c.logger.With(tracing.Fields(ctx)...))
}

// SessionTarget returns the package the applied session pinned, or "" when
// no session is applied or the record predates target tracking
func (c *Controller) SessionTarget(ctx context.Context) string {
	state, err := c.store.Load(ctx)
	if err != nil || !state.Applied {
		return ""
	}
	return state.Target
}

// State returns the persisted session record
func (c *Controller) State(ctx context.Context) (types.SessionState, error) {
	return c.store.Load(ctx)
}

func (c *Controller) enable(ctx context.Context, op string, req types.KioskRequest) (code types.ResultCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	log := c.logger.With(append(tracing.Fields(ctx), zap.String("operation", op))...)
	defer c.observe(op, time.Now(), &code)

	if rc := c.checkPrivilege(ctx, log); !rc.OK() {
		return rc
	}
	if err := req.Validate(); err != nil {
		log.Warn("Rejected kiosk request", zap.Error(err))
		return types.ResultInvalidRequest
	}

	if req.DNDMode != types.DNDNone {
		granted, err := c.policyAccess(ctx)
		if err != nil {
			log.Error("Failed to query notification policy access", zap.Error(err))
			return types.ResultInternal
		}
		if !granted {
			log.Warn("DND permission missing; aborting", zap.Stringer("dnd_mode", req.DNDMode))
			return types.ResultPermissionMissing
		}
	}

	prior, err := c.store.Load(ctx)
	if err != nil {
		log.Error("Failed to load session record", zap.Error(err))
		return types.ResultInternal
	}

	target := req.TargetPackage
	if target == "" {
		target = c.cfg.DefaultTarget
	}
	seize := op == OpApply

	extra := []string{c.cfg.OwnPackage}
	if seize {
		extra = append(extra, target)
	}
	allowlist := effectiveAllowlist(req.Allowlist, extra...)

	log.Info("Enabling kiosk",
		zap.Strings("allowlist", allowlist),
		zap.Uint32("features", uint32(req.Features)),
		zap.Bool("suppress_status_bar", req.SuppressStatusBar),
		zap.Stringer("dnd_mode", req.DNDMode),
		zap.String("target", target))

	dndAltered := prior.Applied && prior.DNDAltered
	fail := func(code types.ResultCode) types.ResultCode {
		return c.rollback(ctx, log, prior, dndAltered, code)
	}

	if err := c.call(ctx, func(ctx context.Context) error {
		return c.policy.SetLockTaskPackages(ctx, allowlist)
	}); err != nil {
		log.Error("Failed to set lock task packages", zap.Error(err))
		return fail(types.ResultInternal)
	}
	if err := c.call(ctx, func(ctx context.Context) error {
		return c.policy.SetLockTaskFeatures(ctx, req.Features)
	}); err != nil {
		log.Error("Failed to set lock task features", zap.Error(err))
		return fail(types.ResultInternal)
	}

	if err := c.call(ctx, func(ctx context.Context) error {
		return c.policy.SetStatusBarDisabled(ctx, req.SuppressStatusBar)
	}); err != nil {
		c.logNonFatal(log, "Status bar control failed", err)
	}

	dndActive := false
	if req.DNDMode != types.DNDNone {
		err := c.call(ctx, func(ctx context.Context) error {
			return c.notify.SetInterruptionFilter(ctx, req.DNDMode)
		})
		switch {
		case err == nil:
			dndActive = true
			dndAltered = true
		case platform.IsPermissionDenied(err):
			log.Error("Notification policy access revoked while applying DND", zap.Error(err))
			return fail(types.ResultInternal)
		default:
			c.logNonFatal(log, "Interruption filter not applied", err)
		}
	}

	var previous *types.Component
	if prior.Applied {
		previous = prior.PreviousHome
	}

	if seize {
		if previous == nil {
			previous = c.captureHome(ctx, log)
		}

		if err := c.call(ctx, func(ctx context.Context) error {
			return c.policy.AddPersistentPreferredHome(ctx, c.ownHome)
		}); err != nil {
			log.Error("Failed to register kiosk home", zap.Error(err))
			return fail(types.ResultInternal)
		}

		rctx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
		entry, ok := c.resolver.Resolve(rctx, target)
		cancel()
		if !ok {
			log.Error("Launch target unresolvable; rolling back", zap.String("target", target))
			return fail(types.ResultTargetUnresolvable)
		}

		if err := c.call(ctx, func(ctx context.Context) error {
			return c.launcher.StartActivity(ctx, entry, platform.StartOptions{LockTask: true, NewTask: true})
		}); err != nil {
			log.Error("Failed to launch target into lock task", zap.Stringer("component", entry), zap.Error(err))
			return fail(types.ResultInternal)
		}
	}

	state := types.SessionState{Applied: true, PreviousHome: previous, DNDAltered: dndAltered, Target: target}
	if err := c.store.Save(ctx, state); err != nil {
		log.Error("Failed to persist session record", zap.Error(err))
		return fail(types.ResultInternal)
	}

	c.setPrepared(true)
	c.publish(types.Event{Type: types.EventKioskApplied, DNDActive: &dndActive})

	fields := []zap.Field{zap.Bool("dnd_active", dndActive)}
	if previous != nil {
		fields = append(fields, zap.Stringer("previous_home", previous))
	}
	log.Info("Kiosk enabled", fields...)
	return types.ResultOK
}

// checkPrivilege gates every mutating operation. Only the admin is consulted.
func (c *Controller) checkPrivilege(ctx context.Context, log *zap.Logger) types.ResultCode {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	owner, err := c.admin.IsDeviceOwner(cctx)
	if err != nil {
		log.Error("Device owner check failed", zap.Error(err))
		return types.ResultInternal
	}
	if !owner {
		log.Warn("Caller is not device owner; aborting")
		return types.ResultNotPrivileged
	}
	return types.ResultOK
}

func (c *Controller) policyAccess(ctx context.Context) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.notify.PolicyAccessGranted(cctx)
}

// captureHome returns the current home surface unless it is ours. Failures
// are tolerated; the session then records no previous home.
func (c *Controller) captureHome(ctx context.Context, log *zap.Logger) *types.Component {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	home, found, err := c.home.CurrentHome(cctx)
	switch {
	case err != nil:
		log.Warn("Could not resolve current home", zap.Error(err))
		return nil
	case !found || !home.Valid() || home.Package == c.cfg.OwnPackage:
		return nil
	}
	return &home
}

// restore undoes kiosk policy. Every step is attempted; failures are logged.
func (c *Controller) restore(ctx context.Context, log *zap.Logger, state types.SessionState, dndAltered bool) {
	if err := c.call(ctx, func(ctx context.Context) error {
		return c.policy.SetStatusBarDisabled(ctx, false)
	}); err != nil {
		c.logNonFatal(log, "Failed to re-enable status bar", err)
	}

	if err := c.call(ctx, func(ctx context.Context) error {
		return c.policy.ClearPackagePersistentPreferred(ctx, c.cfg.OwnPackage)
	}); err != nil {
		c.logNonFatal(log, "Failed to clear kiosk home preference", err)
	}
	if prev := state.PreviousHome; state.Applied && prev != nil && prev.Valid() && prev.Package != c.cfg.OwnPackage {
		if err := c.call(ctx, func(ctx context.Context) error {
			return c.policy.AddPersistentPreferredHome(ctx, *prev)
		}); err != nil {
			c.logNonFatal(log, "Failed to restore previous home", err)
		}
	}

	if err := c.call(ctx, func(ctx context.Context) error {
		return c.policy.SetLockTaskPackages(ctx, nil)
	}); err != nil {
		c.logNonFatal(log, "Failed to reset lock task packages", err)
	}
	if err := c.call(ctx, func(ctx context.Context) error {
		return c.policy.SetLockTaskFeatures(ctx, types.FeatureNone)
	}); err != nil {
		c.logNonFatal(log, "Failed to reset lock task features", err)
	}

	if dndAltered {
		if err := c.call(ctx, func(ctx context.Context) error {
			return c.notify.SetInterruptionFilter(ctx, types.DNDNone)
		}); err != nil {
			c.logNonFatal(log, "Failed to restore interruption filter", err)
		}
	}
}

// rollback runs the restore path against the record persisted before the
// failed call and leaves the session Idle
func (c *Controller) rollback(ctx context.Context, log *zap.Logger, prior types.SessionState, dndAltered bool, code types.ResultCode) types.ResultCode {
	log.Warn("Rolling back kiosk policy", zap.String("result", string(code)))

	c.restore(ctx, log, prior, dndAltered)
	if err := c.store.Save(ctx, types.SessionState{}); err != nil {
		log.Error("Failed to persist session after rollback", zap.Error(err))
	}
	c.setPrepared(false)
	return code
}

// call bounds one gateway call by the configured timeout
func (c *Controller) call(ctx context.Context, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return fn(cctx)
}

func (c *Controller) logNonFatal(log *zap.Logger, msg string, err error) {
	if platform.IsUnsupported(err) {
		log.Warn(msg+" (unsupported on this device)", zap.Error(err))
		return
	}
	log.Warn(msg, zap.Error(err))
}

func (c *Controller) publish(event types.Event) {
	if c.events != nil {
		c.events.Publish(event)
	}
}

func (c *Controller) setPrepared(prepared bool) {
	if c.metrics != nil {
		c.metrics.SetKioskPrepared(prepared)
	}
}

func (c *Controller) observe(op string, start time.Time, code *types.ResultCode) {
	if c.metrics != nil {
		c.metrics.RecordKioskOperation(op, string(*code), time.Since(start))
	}
}

// effectiveAllowlist returns list ∪ extra, keeping first-seen order
func effectiveAllowlist(list []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(list)+len(extra))
	out := make([]string, 0, len(list)+len(extra))
	for _, pkg := range append(append([]string(nil), list...), extra...) {
		if _, dup := seen[pkg]; dup {
			continue
		}
		seen[pkg] = struct{}{}
		out = append(out, pkg)
	}
	return out
}
