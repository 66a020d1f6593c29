package kiosk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/domain/launch"
	"github.com/GriffinCanCode/kioskhelper/internal/domain/session"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/platform/memory"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	ownPackage = "fi.iki.pnr.kioskhelper"
	signalPkg  = "org.thoughtcrime.securesms"
)

var (
	launcherHome = types.Component{Package: "com.android.launcher3", Class: "com.android.launcher3.Launcher"}
	kioskHome    = types.Component{Package: ownPackage, Class: ownPackage + ".KioskHomeActivity"}
)

type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) Publish(event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

type fixture struct {
	dev     *memory.Device
	store   *session.MemoryStore
	events  *recorder
	metrics *monitoring.Metrics
	ctrl    *Controller
}

func installSignal(dev *memory.Device) *memory.Device {
	return dev.Install(platform.PackageInfo{
		Package: signalPkg,
		Enabled: true,
		Activities: []platform.ActivityInfo{
			{Class: ".RoutingActivity", Exported: true, Enabled: true},
		},
	}, ".RoutingActivity")
}

func newFixture(t *testing.T, dev *memory.Device) *fixture {
	t.Helper()
	f := &fixture{
		dev:     dev,
		store:   session.NewMemoryStore(),
		events:  &recorder{},
		metrics: monitoring.NewMetrics(),
	}
	ctrl, err := New(Config{
		OwnPackage:    ownPackage,
		HomeActivity:  ".KioskHomeActivity",
		DefaultTarget: signalPkg,
		CallTimeout:   time.Second,
	}, Deps{
		Admin:    dev,
		Policy:   dev,
		Notify:   dev,
		Home:     dev,
		Launcher: dev,
		Resolver: launch.New(dev, nil, zap.NewNop()),
		Store:    f.store,
		Events:   f.events,
	}, zap.NewNop())
	require.NoError(t, err)
	f.ctrl = ctrl.WithMetrics(f.metrics)
	return f
}

func defaultDevice() *memory.Device {
	return installSignal(memory.New().SetDefaultHome(launcherHome))
}

func kioskRequest() types.KioskRequest {
	return types.KioskRequest{
		Allowlist:         []string{"com.example.a"},
		Features:          types.FeatureNone,
		SuppressStatusBar: true,
		DNDMode:           types.DNDTotal,
	}
}

func (f *fixture) state(t *testing.T) types.SessionState {
	t.Helper()
	state, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return state
}

func TestNewValidatesConfig(t *testing.T) {
	dev := defaultDevice()
	deps := Deps{Admin: dev, Policy: dev, Notify: dev, Home: dev, Launcher: dev,
		Resolver: launch.New(dev, nil, nil), Store: session.NewMemoryStore()}

	_, err := New(Config{OwnPackage: "bad pkg", HomeActivity: ".Home", DefaultTarget: signalPkg}, deps, nil)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), Deps{}, nil)
	assert.Error(t, err)

	ctrl, err := New(DefaultConfig(), deps, nil)
	require.NoError(t, err)
	assert.Equal(t, "fi.iki.pnr.kioskhelper/fi.iki.pnr.kioskhelper.KioskHomeActivity", ctrl.OwnHome().String())
}

func TestPrivilegeGate(t *testing.T) {
	malformed := kioskRequest()
	malformed.Allowlist = []string{"not a package"}
	badFeatures := kioskRequest()
	badFeatures.Features = 1 << 12
	badDND := kioskRequest()
	badDND.DNDMode = types.DNDMode(7)
	badTarget := kioskRequest()
	badTarget.TargetPackage = "../escape"

	requests := []struct {
		name string
		req  types.KioskRequest
	}{
		{"valid", kioskRequest()},
		{"malformed allowlist", malformed},
		{"unknown features", badFeatures},
		{"invalid dnd mode", badDND},
		{"invalid target", badTarget},
	}

	for _, tt := range requests {
		ops := map[string]func(*Controller) types.ResultCode{
			OpPrepare: func(c *Controller) types.ResultCode { return c.Prepare(context.Background(), tt.req) },
			OpApply:   func(c *Controller) types.ResultCode { return c.Apply(context.Background(), tt.req) },
			OpClear:   func(c *Controller) types.ResultCode { return c.Clear(context.Background()) },
		}
		for name, op := range ops {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				f := newFixture(t, defaultDevice().SetDeviceOwner(false))

				assert.Equal(t, types.ResultNotPrivileged, op(f.ctrl))
				assert.Equal(t, 1, f.dev.Calls(memory.OpIsDeviceOwner))
				assert.Equal(t, 1, f.dev.TotalCalls(), "only the admin may be consulted")
				assert.Zero(t, f.store.Saves())
				assert.Empty(t, f.events.all())
				assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.KioskOperations.WithLabelValues(name, string(types.ResultNotPrivileged))))
			})
		}
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t, defaultDevice())
	assert.Equal(t, types.ResultOK, f.ctrl.Authorize(context.Background()))

	f = newFixture(t, defaultDevice().SetDeviceOwner(false))
	assert.Equal(t, types.ResultNotPrivileged, f.ctrl.Authorize(context.Background()))

	f = newFixture(t, defaultDevice().FailOn(memory.OpIsDeviceOwner, assert.AnError))
	assert.Equal(t, types.ResultInternal, f.ctrl.Authorize(context.Background()))
	assert.Equal(t, 1, f.dev.TotalCalls())
	assert.Zero(t, f.store.Saves())
}

func TestPrivilegeCheckError(t *testing.T) {
	f := newFixture(t, defaultDevice().FailOn(memory.OpIsDeviceOwner, assert.AnError))

	assert.Equal(t, types.ResultInternal, f.ctrl.Apply(context.Background(), kioskRequest()))
	assert.Equal(t, 1, f.dev.TotalCalls())
}

func TestApplyScenario(t *testing.T) {
	f := newFixture(t, defaultDevice())

	code := f.ctrl.Apply(context.Background(), kioskRequest())
	require.Equal(t, types.ResultOK, code)

	state := f.state(t)
	assert.True(t, state.Applied)
	require.NotNil(t, state.PreviousHome)
	assert.Equal(t, launcherHome, *state.PreviousHome)
	assert.True(t, state.DNDAltered)
	assert.Equal(t, signalPkg, state.Target)
	assert.Equal(t, signalPkg, f.ctrl.SessionTarget(context.Background()))

	snap := f.dev.Snapshot()
	assert.Equal(t, []string{"com.example.a", ownPackage, signalPkg}, snap.LockTaskPackages)
	assert.Equal(t, types.FeatureNone, snap.LockTaskFeatures)
	assert.True(t, snap.StatusBarDisabled)
	assert.Equal(t, []types.Component{kioskHome}, snap.PreferredHomes)
	assert.Equal(t, types.DNDTotal, snap.InterruptionFilter)

	starts := f.dev.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, types.NewComponent(signalPkg, ".RoutingActivity"), starts[0].Target)
	assert.True(t, starts[0].Options.LockTask)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, types.EventKioskApplied, events[0].Type)
	require.NotNil(t, events[0].DNDActive)
	assert.True(t, *events[0].DNDActive)

	assert.True(t, f.ctrl.IsPrepared(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.KioskPrepared))
}

func TestDNDPermissionMissing(t *testing.T) {
	for _, op := range []string{OpPrepare, OpApply} {
		for _, priorApplied := range []bool{false, true} {
			t.Run(op, func(t *testing.T) {
				f := newFixture(t, defaultDevice().SetPolicyAccess(false))
				require.NoError(t, f.store.Save(context.Background(), types.SessionState{Applied: priorApplied}))

				var code types.ResultCode
				if op == OpPrepare {
					code = f.ctrl.Prepare(context.Background(), kioskRequest())
				} else {
					code = f.ctrl.Apply(context.Background(), kioskRequest())
				}

				assert.Equal(t, types.ResultPermissionMissing, code)
				assert.Zero(t, f.dev.PolicyMutations())
				assert.Zero(t, f.dev.Calls(memory.OpSetInterruptionFilter))
				assert.Equal(t, priorApplied, f.state(t).Applied)
				assert.Equal(t, 1, f.store.Saves())
				assert.Empty(t, f.events.all())
			})
		}
	}
}

func TestDNDNoneSkipsAccessCheck(t *testing.T) {
	f := newFixture(t, defaultDevice().SetPolicyAccess(false))
	req := kioskRequest()
	req.DNDMode = types.DNDNone

	require.Equal(t, types.ResultOK, f.ctrl.Prepare(context.Background(), req))
	assert.Zero(t, f.dev.Calls(memory.OpPolicyAccessGranted))
	assert.Zero(t, f.dev.Calls(memory.OpSetInterruptionFilter))
	assert.False(t, f.state(t).DNDAltered)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.False(t, *events[0].DNDActive)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t, defaultDevice())
	ctx := context.Background()

	before, found, err := f.dev.CurrentHome(ctx)
	require.NoError(t, err)
	require.True(t, found)

	require.Equal(t, types.ResultOK, f.ctrl.Apply(ctx, kioskRequest()))
	current, _, _ := f.dev.CurrentHome(ctx)
	assert.Equal(t, kioskHome, current)

	require.Equal(t, types.ResultOK, f.ctrl.Clear(ctx))
	after, found, err := f.dev.CurrentHome(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, before, after)

	snap := f.dev.Snapshot()
	assert.Nil(t, snap.LockTaskPackages)
	assert.Equal(t, types.FeatureNone, snap.LockTaskFeatures)
	assert.False(t, snap.StatusBarDisabled)
	assert.Equal(t, types.DNDNone, snap.InterruptionFilter)
	assert.False(t, f.state(t).Applied)
	assert.False(t, f.ctrl.IsPrepared(ctx))

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, types.EventKioskCleared, events[1].Type)
}

func TestApplyRollback(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fixture)
		want  types.ResultCode
	}{
		{
			name:  "unresolvable target",
			setup: func(f *fixture) {},
			want:  types.ResultTargetUnresolvable,
		},
		{
			name: "start failure",
			setup: func(f *fixture) {
				installSignal(f.dev).FailOn(memory.OpStartActivity, assert.AnError)
			},
			want: types.ResultInternal,
		},
		{
			name: "dnd revoked between check and use",
			setup: func(f *fixture) {
				installSignal(f.dev).FailOn(memory.OpSetInterruptionFilter, platform.ErrPermissionDenied)
			},
			want: types.ResultInternal,
		},
		{
			name: "home registration failure",
			setup: func(f *fixture) {
				installSignal(f.dev).FailOn(memory.OpAddPersistentPreferredHome, assert.AnError)
			},
			want: types.ResultInternal,
		},
		{
			name: "session write failure",
			setup: func(f *fixture) {
				installSignal(f.dev)
				f.store.FailSave(assert.AnError)
			},
			want: types.ResultInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no target installed unless setup installs one
			f := newFixture(t, memory.New().SetDefaultHome(launcherHome))
			tt.setup(f)
			before := f.dev.Snapshot()

			code := f.ctrl.Apply(context.Background(), kioskRequest())

			assert.Equal(t, tt.want, code)
			assert.Equal(t, before, f.dev.Snapshot())
			assert.False(t, f.ctrl.IsPrepared(context.Background()))
			assert.Empty(t, f.events.all())
			assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.KioskPrepared))
		})
	}
}

func TestClearIdempotent(t *testing.T) {
	f := newFixture(t, defaultDevice())
	ctx := context.Background()
	before := f.dev.Snapshot()

	require.Equal(t, types.ResultOK, f.ctrl.Clear(ctx))
	first := f.dev.Snapshot()
	require.Equal(t, types.ResultOK, f.ctrl.Clear(ctx))

	assert.Equal(t, before, first)
	assert.Equal(t, first, f.dev.Snapshot())
	assert.Zero(t, f.dev.Calls(memory.OpSetInterruptionFilter), "DND untouched when never altered")
	assert.False(t, f.state(t).Applied)
}

func TestClearIsBestEffort(t *testing.T) {
	f := newFixture(t, defaultDevice())
	ctx := context.Background()
	require.Equal(t, types.ResultOK, f.ctrl.Apply(ctx, kioskRequest()))

	f.dev.SetStatusBarSupported(false).
		FailOn(memory.OpSetInterruptionFilter, assert.AnError).
		FailOn(memory.OpSetLockTaskFeatures, assert.AnError)
	f.store.FailSave(assert.AnError)

	assert.Equal(t, types.ResultOK, f.ctrl.Clear(ctx))
	home, _, _ := f.dev.CurrentHome(ctx)
	assert.Equal(t, launcherHome, home)
}

func TestClearWithUnreadableRecord(t *testing.T) {
	f := newFixture(t, defaultDevice())
	ctx := context.Background()
	require.Equal(t, types.ResultOK, f.ctrl.Apply(ctx, kioskRequest()))
	f.store.FailLoad(assert.AnError)

	assert.Equal(t, types.ResultOK, f.ctrl.Clear(ctx))
	assert.Empty(t, f.dev.Snapshot().PreferredHomes, "own home cleared even without a record")
}

func TestNonFatalFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*memory.Device)
		dndActive bool
	}{
		{
			name:      "status bar unsupported",
			setup:     func(d *memory.Device) { d.SetStatusBarSupported(false) },
			dndActive: true,
		},
		{
			name:      "status bar error",
			setup:     func(d *memory.Device) { d.FailOn(memory.OpSetStatusBarDisabled, assert.AnError) },
			dndActive: true,
		},
		{
			name:  "dnd unsupported",
			setup: func(d *memory.Device) { d.FailOn(memory.OpSetInterruptionFilter, platform.ErrUnsupported) },
		},
		{
			name:      "current home unavailable",
			setup:     func(d *memory.Device) { d.FailOn(memory.OpCurrentHome, assert.AnError) },
			dndActive: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := defaultDevice()
			tt.setup(dev)
			f := newFixture(t, dev)

			require.Equal(t, types.ResultOK, f.ctrl.Apply(context.Background(), kioskRequest()))
			assert.True(t, f.state(t).Applied)

			events := f.events.all()
			require.Len(t, events, 1)
			assert.Equal(t, tt.dndActive, *events[0].DNDActive)
		})
	}
}

func TestPrepareLeavesHomeAlone(t *testing.T) {
	f := newFixture(t, defaultDevice())

	require.Equal(t, types.ResultOK, f.ctrl.Prepare(context.Background(), kioskRequest()))

	snap := f.dev.Snapshot()
	assert.Equal(t, []string{"com.example.a", ownPackage}, snap.LockTaskPackages)
	assert.Empty(t, snap.PreferredHomes)
	assert.Empty(t, f.dev.Starts())
	assert.Zero(t, f.dev.Calls(memory.OpCurrentHome))

	state := f.state(t)
	assert.True(t, state.Applied)
	assert.Nil(t, state.PreviousHome)
}

func TestReapplyKeepsPreviousHome(t *testing.T) {
	f := newFixture(t, defaultDevice())
	ctx := context.Background()

	require.Equal(t, types.ResultOK, f.ctrl.Apply(ctx, kioskRequest()))
	require.Equal(t, types.ResultOK, f.ctrl.Apply(ctx, kioskRequest()))

	state := f.state(t)
	require.NotNil(t, state.PreviousHome)
	assert.Equal(t, launcherHome, *state.PreviousHome)

	require.Equal(t, types.ResultOK, f.ctrl.Clear(ctx))
	home, _, _ := f.dev.CurrentHome(ctx)
	assert.Equal(t, launcherHome, home)
}

func TestInvalidRequest(t *testing.T) {
	f := newFixture(t, defaultDevice())

	req := kioskRequest()
	req.Allowlist = []string{"not a package"}
	assert.Equal(t, types.ResultInvalidRequest, f.ctrl.Apply(context.Background(), req))

	req = kioskRequest()
	req.Features = 1 << 12
	assert.Equal(t, types.ResultInvalidRequest, f.ctrl.Prepare(context.Background(), req))

	assert.Equal(t, 2, f.dev.Calls(memory.OpIsDeviceOwner))
	assert.Equal(t, 2, f.dev.TotalCalls(), "validation follows the privilege gate")
	assert.Zero(t, f.store.Saves())
}

func TestExplicitTarget(t *testing.T) {
	dev := defaultDevice().Install(platform.PackageInfo{
		Package:    "com.example.kiosk",
		Enabled:    true,
		Activities: []platform.ActivityInfo{{Class: ".Main", Exported: true, Enabled: true}},
	}, ".Main")
	f := newFixture(t, dev)

	req := kioskRequest()
	req.TargetPackage = "com.example.kiosk"
	require.Equal(t, types.ResultOK, f.ctrl.Apply(context.Background(), req))

	starts := dev.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "com.example.kiosk", starts[0].Target.Package)
	assert.Contains(t, dev.Snapshot().LockTaskPackages, "com.example.kiosk")
	assert.Equal(t, "com.example.kiosk", f.state(t).Target)
	assert.Equal(t, "com.example.kiosk", f.ctrl.SessionTarget(context.Background()))

	require.Equal(t, types.ResultOK, f.ctrl.Clear(context.Background()))
	assert.Empty(t, f.ctrl.SessionTarget(context.Background()))
}

func TestSerializedOperations(t *testing.T) {
	f := newFixture(t, defaultDevice())
	ctx := context.Background()

	var wg sync.WaitGroup
	codes := make(chan types.ResultCode, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			codes <- f.ctrl.Apply(ctx, kioskRequest())
		}()
		go func() {
			defer wg.Done()
			codes <- f.ctrl.Clear(ctx)
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, types.ResultOK, code)
	}

	require.Equal(t, types.ResultOK, f.ctrl.Clear(ctx))
	home, _, _ := f.dev.CurrentHome(ctx)
	assert.Equal(t, launcherHome, home)
	assert.Nil(t, f.dev.Snapshot().LockTaskPackages)
}

func TestEffectiveAllowlist(t *testing.T) {
	got := effectiveAllowlist([]string{"b.b", "a.a", "b.b"}, ownPackage, "a.a")
	assert.Equal(t, []string{"b.b", "a.a", ownPackage}, got)
}
