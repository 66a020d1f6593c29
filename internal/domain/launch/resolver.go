// Package launch resolves a target package to a launchable entry point.
//
// Resolution order:
//  1. the package's declared launcher entry
//  2. known alternate class names for that package, probed for visibility,
//     first match wins
//  3. unresolvable, after logging a diagnostic bundle
//
// On multi-user and restricted-profile devices visibility can differ silently
// from the single-user case, so the bundle records the calling UID, its user
// index and everything the package manager will say about the package.
// Collecting diagnostics never fails the call.
package launch

import (
	"context"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"go.uber.org/zap"
)

// Resolution stages reported to metrics
const (
	StageDeclared     = "declared"
	StageAlternate    = "alternate"
	StageUnresolvable = "unresolvable"
)

// DefaultHistorySize is the number of diagnostics retained by default
const DefaultHistorySize = 32

// Alternates maps a package to its ordered alternate entry-point class names.
// A leading "." expands against the package.
type Alternates map[string][]string

// DefaultAlternates covers the messaging app the agent pins by default
func DefaultAlternates() Alternates {
	return Alternates{
		"org.thoughtcrime.securesms": {".RoutingActivity", ".MainActivity"},
	}
}

// Resolver implements launch resolution against a package manager
type Resolver struct {
	pm         platform.PackageManager
	alternates Alternates
	history    *History
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

// New creates a resolver. A nil alternates map uses DefaultAlternates.
func New(pm platform.PackageManager, alternates Alternates, logger *zap.Logger) *Resolver {
	if alternates == nil {
		alternates = DefaultAlternates()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		pm:         pm,
		alternates: alternates,
		history:    NewHistory(DefaultHistorySize),
		logger:     logger,
	}
}

// WithMetrics records resolution outcomes by stage
func (r *Resolver) WithMetrics(metrics *monitoring.Metrics) *Resolver {
	r.metrics = metrics
	return r
}

// WithHistory replaces the diagnostic ring
func (r *Resolver) WithHistory(h *History) *Resolver {
	r.history = h
	return r
}

// History returns the retained diagnostics
func (r *Resolver) History() *History {
	return r.history
}

// Resolve returns the entry point to launch for pkg, or false when none is
// visible to the calling user
func (r *Resolver) Resolve(ctx context.Context, pkg string) (types.Component, bool) {
	log := r.logger.With(tracing.Fields(ctx)...)

	entry, found, err := r.pm.LaunchEntry(ctx, pkg)
	if err != nil {
		log.Warn("Launch entry query failed", zap.String("package", pkg), zap.Error(err))
	}
	if err == nil && found {
		r.record(StageDeclared)
		return entry, true
	}

	probed := make([]string, 0, len(r.alternates[pkg]))
	for _, class := range r.alternates[pkg] {
		candidate := types.NewComponent(pkg, class)
		if !candidate.Valid() {
			continue
		}
		probed = append(probed, candidate.Class)

		visible, err := r.pm.ActivityVisible(ctx, candidate)
		if err != nil {
			log.Warn("Alternate entry probe failed", zap.Stringer("component", candidate), zap.Error(err))
			continue
		}
		if visible {
			log.Info("Resolved alternate entry point", zap.Stringer("component", candidate))
			r.record(StageAlternate)
			return candidate, true
		}
	}

	diag := r.diagnose(ctx, pkg, err == nil && found, probed)
	if err != nil {
		diag.addError("launch-entry", err)
	}
	log.Warn("Launch target unresolvable", diag.Fields()...)
	r.history.Add(diag)
	r.record(StageUnresolvable)

	return types.Component{}, false
}

func (r *Resolver) diagnose(ctx context.Context, pkg string, launchResolved bool, probed []string) *Diagnostic {
	diag := &Diagnostic{
		Timestamp:            time.Now(),
		Package:              pkg,
		LaunchIntentResolved: launchResolved,
		Probed:               probed,
	}

	if info, err := r.pm.DeviceInfo(ctx); err != nil {
		diag.addError("device-info", err)
	} else {
		diag.Release = info.Release
		diag.SDKInt = info.SDKInt
		diag.UID = info.UID
		diag.UserIndex = info.UserIndex()
	}

	if info, err := r.pm.PackageInfo(ctx, pkg); err != nil {
		diag.addError("package-info", err)
	} else {
		diag.Installed = info.Installed
		diag.Enabled = info.Enabled
		diag.Activities = info.Activities
	}

	if acts, err := r.pm.LauncherActivities(ctx); err != nil {
		diag.addError("launcher-activities", err)
	} else {
		for _, c := range acts {
			if c.Package == pkg {
				diag.LauncherMatches = append(diag.LauncherMatches, c.Class)
			}
		}
	}

	return diag
}

func (r *Resolver) record(stage string) {
	if r.metrics != nil {
		r.metrics.RecordLaunchResolution(stage)
	}
}
