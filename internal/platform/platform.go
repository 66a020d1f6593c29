// Package platform defines the narrow capability interfaces the kiosk helper
// uses to reach the device-management authority, the notification policy
// service and the package manager.
//
// Concrete drivers live in subpackages:
//   - bridge: HTTP/JSON client for the on-device device-admin companion
//   - memory: simulated device used for development and tests
package platform

import (
	"context"

	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// Admin reports whether the agent holds the device-management role
type Admin interface {
	IsDeviceOwner(ctx context.Context) (bool, error)
}

// PolicyGateway wraps the device-management authority. It holds no state.
type PolicyGateway interface {
	SetLockTaskPackages(ctx context.Context, packages []string) error
	SetLockTaskFeatures(ctx context.Context, features types.Features) error
	SetStatusBarDisabled(ctx context.Context, disabled bool) error
	// AddPersistentPreferredHome registers home as the preferred handler for
	// the MAIN/HOME/DEFAULT intent filter.
	AddPersistentPreferredHome(ctx context.Context, home types.Component) error
	// ClearPackagePersistentPreferred drops every persistent preference owned by pkg
	ClearPackagePersistentPreferred(ctx context.Context, pkg string) error
}

// NotificationGateway wraps the interruption-filter service
type NotificationGateway interface {
	PolicyAccessGranted(ctx context.Context) (bool, error)
	SetInterruptionFilter(ctx context.Context, mode types.DNDMode) error
}

// HomeResolver reports the current default home surface
type HomeResolver interface {
	CurrentHome(ctx context.Context) (types.Component, bool, error)
}

// StartOptions tune an activity start
type StartOptions struct {
	LockTask bool
	NewTask  bool
	ClearTop bool
}

// Launcher starts activities
type Launcher interface {
	StartActivity(ctx context.Context, target types.Component, opts StartOptions) error
}

// ActivityInfo describes one declared activity of a package
type ActivityInfo struct {
	Class    string `json:"class"`
	Exported bool   `json:"exported"`
	Enabled  bool   `json:"enabled"`
}

// PackageInfo is the package manager's view of an installed package
type PackageInfo struct {
	Package    string         `json:"package"`
	Installed  bool           `json:"installed"`
	Enabled    bool           `json:"enabled"`
	Activities []ActivityInfo `json:"activities"`
}

// DeviceInfo identifies the platform build and calling identity
type DeviceInfo struct {
	Release string `json:"release"`
	SDKInt  int    `json:"sdk_int"`
	UID     int    `json:"uid"`
}

// UsersPerUID is the UID range reserved per multi-user index
const UsersPerUID = 100000

// UserIndex returns the multi-user index derived from the UID
func (d DeviceInfo) UserIndex() int {
	return d.UID / UsersPerUID
}

// PackageManager answers launch-resolution queries
type PackageManager interface {
	LaunchEntry(ctx context.Context, pkg string) (types.Component, bool, error)
	// ActivityVisible reports whether the component exists and is exported and enabled
	ActivityVisible(ctx context.Context, c types.Component) (bool, error)
	PackageInfo(ctx context.Context, pkg string) (PackageInfo, error)
	LauncherActivities(ctx context.Context) ([]types.Component, error)
	DeviceInfo(ctx context.Context) (DeviceInfo, error)
}

// Device bundles every capability a driver provides
type Device interface {
	Admin
	PolicyGateway
	NotificationGateway
	HomeResolver
	Launcher
	PackageManager
}
