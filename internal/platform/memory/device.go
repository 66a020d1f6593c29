// Package memory provides a simulated device implementing every platform
// capability in process. It backs PLATFORM_DRIVER=memory for development and
// serves as the recording double in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// Operation names used for call counting and failure injection
const (
	OpIsDeviceOwner                   = "IsDeviceOwner"
	OpSetLockTaskPackages             = "SetLockTaskPackages"
	OpSetLockTaskFeatures             = "SetLockTaskFeatures"
	OpSetStatusBarDisabled            = "SetStatusBarDisabled"
	OpAddPersistentPreferredHome      = "AddPersistentPreferredHome"
	OpClearPackagePersistentPreferred = "ClearPackagePersistentPreferred"
	OpPolicyAccessGranted             = "PolicyAccessGranted"
	OpSetInterruptionFilter           = "SetInterruptionFilter"
	OpCurrentHome                     = "CurrentHome"
	OpStartActivity                   = "StartActivity"
	OpLaunchEntry                     = "LaunchEntry"
	OpActivityVisible                 = "ActivityVisible"
	OpPackageInfo                     = "PackageInfo"
	OpLauncherActivities              = "LauncherActivities"
	OpDeviceInfo                      = "DeviceInfo"
)

// policyOps are the calls that mutate device-management policy
var policyOps = []string{
	OpSetLockTaskPackages,
	OpSetLockTaskFeatures,
	OpSetStatusBarDisabled,
	OpAddPersistentPreferredHome,
	OpClearPackagePersistentPreferred,
}

type installedPackage struct {
	info        platform.PackageInfo
	launchEntry string
}

// Start records one activity start
type Start struct {
	Target  types.Component
	Options platform.StartOptions
}

// Snapshot is a copy of the policy-visible device state
type Snapshot struct {
	LockTaskPackages   []string
	LockTaskFeatures   types.Features
	StatusBarDisabled  bool
	PreferredHomes     []types.Component
	InterruptionFilter types.DNDMode
}

// Device is a simulated device. The zero value is not usable; call New.
type Device struct {
	mu sync.Mutex

	deviceOwner        bool
	policyAccess       bool
	statusBarSupported bool
	info               platform.DeviceInfo
	defaultHome        types.Component
	packages           map[string]*installedPackage

	lockTaskPackages  []string
	lockTaskFeatures  types.Features
	statusBarDisabled bool
	preferredHomes    []types.Component
	filter            types.DNDMode
	starts            []Start

	failures map[string]error
	calls    map[string]int
}

var _ platform.Device = (*Device)(nil)

// New creates a device that is provisioned as device owner, has notification
// policy access and supports status bar control.
func New() *Device {
	return &Device{
		deviceOwner:        true,
		policyAccess:       true,
		statusBarSupported: true,
		info:               platform.DeviceInfo{Release: "14", SDKInt: 34, UID: 10123},
		packages:           make(map[string]*installedPackage),
		failures:           make(map[string]error),
		calls:              make(map[string]int),
	}
}

// SetDeviceOwner toggles the management role
func (d *Device) SetDeviceOwner(owner bool) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deviceOwner = owner
	return d
}

// SetPolicyAccess toggles notification policy access
func (d *Device) SetPolicyAccess(granted bool) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.policyAccess = granted
	return d
}

// SetStatusBarSupported toggles platform support for status bar control
func (d *Device) SetStatusBarSupported(supported bool) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusBarSupported = supported
	return d
}

// SetDeviceInfo overrides the reported build and UID
func (d *Device) SetDeviceInfo(info platform.DeviceInfo) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = info
	return d
}

// SetDefaultHome sets the home surface used when no persistent preference exists
func (d *Device) SetDefaultHome(home types.Component) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultHome = home
	return d
}

// Install adds a package. launchEntry is the declared launcher class, or
// empty when the package declares none.
func (d *Device) Install(info platform.PackageInfo, launchEntry string) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	info.Installed = true
	if launchEntry != "" {
		launchEntry = types.NewComponent(info.Package, launchEntry).Class
	}
	for i, a := range info.Activities {
		info.Activities[i].Class = types.NewComponent(info.Package, a.Class).Class
	}
	d.packages[info.Package] = &installedPackage{info: info, launchEntry: launchEntry}
	return d
}

// FailOn makes every later call of op return err. A nil err clears the failure.
func (d *Device) FailOn(op string, err error) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
	} else {
		d.failures[op] = err
	}
	return d
}

// Calls returns how many times op was invoked
func (d *Device) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// TotalCalls returns the number of calls across every operation
func (d *Device) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.calls {
		total += n
	}
	return total
}

// PolicyMutations returns the number of policy gateway mutation calls
func (d *Device) PolicyMutations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, op := range policyOps {
		total += d.calls[op]
	}
	return total
}

// ResetCalls zeroes the call counters
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = make(map[string]int)
}

// Snapshot returns a copy of the policy state
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		LockTaskPackages:   append([]string(nil), d.lockTaskPackages...),
		LockTaskFeatures:   d.lockTaskFeatures,
		StatusBarDisabled:  d.statusBarDisabled,
		PreferredHomes:     append([]types.Component(nil), d.preferredHomes...),
		InterruptionFilter: d.filter,
	}
}

// Starts returns every recorded activity start
func (d *Device) Starts() []Start {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Start(nil), d.starts...)
}

// enter counts the call and returns the injected failure, if any.
// Callers hold d.mu.
func (d *Device) enter(op string) error {
	d.calls[op]++
	if err := d.failures[op]; err != nil {
		return platform.Wrap(op, err)
	}
	return nil
}

// IsDeviceOwner implements platform.Admin
func (d *Device) IsDeviceOwner(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpIsDeviceOwner); err != nil {
		return false, err
	}
	return d.deviceOwner, nil
}

// SetLockTaskPackages implements platform.PolicyGateway
func (d *Device) SetLockTaskPackages(ctx context.Context, packages []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetLockTaskPackages); err != nil {
		return err
	}
	if !d.deviceOwner {
		return platform.Wrap(OpSetLockTaskPackages, platform.ErrPermissionDenied)
	}
	if len(packages) == 0 {
		d.lockTaskPackages = nil
		return nil
	}
	d.lockTaskPackages = append([]string(nil), packages...)
	return nil
}

// SetLockTaskFeatures implements platform.PolicyGateway
func (d *Device) SetLockTaskFeatures(ctx context.Context, features types.Features) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetLockTaskFeatures); err != nil {
		return err
	}
	if !d.deviceOwner {
		return platform.Wrap(OpSetLockTaskFeatures, platform.ErrPermissionDenied)
	}
	d.lockTaskFeatures = features
	return nil
}

// SetStatusBarDisabled implements platform.PolicyGateway
func (d *Device) SetStatusBarDisabled(ctx context.Context, disabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetStatusBarDisabled); err != nil {
		return err
	}
	if !d.statusBarSupported {
		return platform.Wrap(OpSetStatusBarDisabled, platform.ErrUnsupported)
	}
	d.statusBarDisabled = disabled
	return nil
}

// AddPersistentPreferredHome implements platform.PolicyGateway. A later
// registration takes precedence over earlier ones.
func (d *Device) AddPersistentPreferredHome(ctx context.Context, home types.Component) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpAddPersistentPreferredHome); err != nil {
		return err
	}
	if !d.deviceOwner {
		return platform.Wrap(OpAddPersistentPreferredHome, platform.ErrPermissionDenied)
	}
	kept := d.preferredHomes[:0]
	for _, c := range d.preferredHomes {
		if c != home {
			kept = append(kept, c)
		}
	}
	d.preferredHomes = append(kept, home)
	return nil
}

// ClearPackagePersistentPreferred implements platform.PolicyGateway
func (d *Device) ClearPackagePersistentPreferred(ctx context.Context, pkg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpClearPackagePersistentPreferred); err != nil {
		return err
	}
	if !d.deviceOwner {
		return platform.Wrap(OpClearPackagePersistentPreferred, platform.ErrPermissionDenied)
	}
	var kept []types.Component
	for _, c := range d.preferredHomes {
		if c.Package != pkg {
			kept = append(kept, c)
		}
	}
	d.preferredHomes = kept
	return nil
}

// PolicyAccessGranted implements platform.NotificationGateway
func (d *Device) PolicyAccessGranted(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpPolicyAccessGranted); err != nil {
		return false, err
	}
	return d.policyAccess, nil
}

// SetInterruptionFilter implements platform.NotificationGateway
func (d *Device) SetInterruptionFilter(ctx context.Context, mode types.DNDMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetInterruptionFilter); err != nil {
		return err
	}
	if !d.policyAccess {
		return platform.Wrap(OpSetInterruptionFilter, platform.ErrPermissionDenied)
	}
	d.filter = mode
	return nil
}

// CurrentHome implements platform.HomeResolver
func (d *Device) CurrentHome(ctx context.Context) (types.Component, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCurrentHome); err != nil {
		return types.Component{}, false, err
	}
	if n := len(d.preferredHomes); n > 0 {
		return d.preferredHomes[n-1], true, nil
	}
	if d.defaultHome.IsZero() {
		return types.Component{}, false, nil
	}
	return d.defaultHome, true, nil
}

// StartActivity implements platform.Launcher. Lock task starts require the
// target package to be allow-listed.
func (d *Device) StartActivity(ctx context.Context, target types.Component, opts platform.StartOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpStartActivity); err != nil {
		return err
	}
	if !d.visible(target) {
		return platform.Wrap(OpStartActivity, platform.ErrNotFound)
	}
	if opts.LockTask && !contains(d.lockTaskPackages, target.Package) {
		return platform.Wrap(OpStartActivity, platform.ErrPermissionDenied)
	}
	d.starts = append(d.starts, Start{Target: target, Options: opts})
	return nil
}

// LaunchEntry implements platform.PackageManager
func (d *Device) LaunchEntry(ctx context.Context, pkg string) (types.Component, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpLaunchEntry); err != nil {
		return types.Component{}, false, err
	}
	p, ok := d.packages[pkg]
	if !ok || !p.info.Enabled || p.launchEntry == "" {
		return types.Component{}, false, nil
	}
	c := types.Component{Package: pkg, Class: p.launchEntry}
	if !d.visible(c) {
		return types.Component{}, false, nil
	}
	return c, true, nil
}

// ActivityVisible implements platform.PackageManager
func (d *Device) ActivityVisible(ctx context.Context, c types.Component) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpActivityVisible); err != nil {
		return false, err
	}
	return d.visible(c), nil
}

// PackageInfo implements platform.PackageManager. Unknown packages report
// Installed=false rather than an error.
func (d *Device) PackageInfo(ctx context.Context, pkg string) (platform.PackageInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpPackageInfo); err != nil {
		return platform.PackageInfo{}, err
	}
	p, ok := d.packages[pkg]
	if !ok {
		return platform.PackageInfo{Package: pkg}, nil
	}
	info := p.info
	info.Activities = append([]platform.ActivityInfo(nil), p.info.Activities...)
	return info, nil
}

// LauncherActivities implements platform.PackageManager
func (d *Device) LauncherActivities(ctx context.Context) ([]types.Component, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpLauncherActivities); err != nil {
		return nil, err
	}
	var out []types.Component
	for name, p := range d.packages {
		if p.launchEntry == "" {
			continue
		}
		c := types.Component{Package: name, Class: p.launchEntry}
		if d.visible(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// DeviceInfo implements platform.PackageManager
func (d *Device) DeviceInfo(ctx context.Context) (platform.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpDeviceInfo); err != nil {
		return platform.DeviceInfo{}, err
	}
	return d.info, nil
}

// visible reports whether c is installed, enabled and exported. Callers hold d.mu.
func (d *Device) visible(c types.Component) bool {
	p, ok := d.packages[c.Package]
	if !ok || !p.info.Enabled {
		return false
	}
	for _, a := range p.info.Activities {
		if a.Class == c.Class {
			return a.Exported && a.Enabled
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
