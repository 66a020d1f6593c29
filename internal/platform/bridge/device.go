package bridge

import (
	"context"
	"net/http"
	"net/url"

	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// Companion API paths
const (
	pathAdminStatus        = "/v1/admin/status"
	pathLockTaskPackages   = "/v1/lock-task/packages"
	pathLockTaskFeatures   = "/v1/lock-task/features"
	pathStatusBar          = "/v1/status-bar"
	pathPreferredHome      = "/v1/preferred-activities/home"
	pathPreferredByPackage = "/v1/preferred-activities/"
	pathNotificationPolicy = "/v1/notification-policy"
	pathInterruptionFilter = "/v1/interruption-filter"
	pathHome               = "/v1/home"
	pathActivityStart      = "/v1/activities/start"
	pathActivityVisible    = "/v1/activities/visible"
	pathPackages           = "/v1/packages/"
	pathLauncherActivities = "/v1/launcher-activities"
	pathDevice             = "/v1/device"
)

type adminStatus struct {
	DeviceOwner bool `json:"deviceOwner"`
}

type packagesBody struct {
	Packages []string `json:"packages"`
}

type featuresBody struct {
	Features uint32 `json:"features"`
}

type statusBarBody struct {
	Disabled bool `json:"disabled"`
}

type policyAccess struct {
	AccessGranted bool `json:"accessGranted"`
}

type filterBody struct {
	Mode string `json:"mode"`
}

type componentBody struct {
	Component types.Component `json:"component"`
}

type startBody struct {
	Component types.Component `json:"component"`
	LockTask  bool            `json:"lockTask"`
	NewTask   bool            `json:"newTask"`
	ClearTop  bool            `json:"clearTop"`
}

type visibleBody struct {
	Visible bool `json:"visible"`
}

type launcherBody struct {
	Activities []types.Component `json:"activities"`
}

func (c *Client) IsDeviceOwner(ctx context.Context) (bool, error) {
	var out adminStatus
	if err := c.call(ctx, "IsDeviceOwner", http.MethodGet, pathAdminStatus, nil, &out); err != nil {
		return false, err
	}
	return out.DeviceOwner, nil
}

func (c *Client) SetLockTaskPackages(ctx context.Context, packages []string) error {
	if packages == nil {
		packages = []string{}
	}
	return c.call(ctx, "SetLockTaskPackages", http.MethodPut, pathLockTaskPackages, packagesBody{Packages: packages}, nil)
}

func (c *Client) SetLockTaskFeatures(ctx context.Context, features types.Features) error {
	return c.call(ctx, "SetLockTaskFeatures", http.MethodPut, pathLockTaskFeatures, featuresBody{Features: uint32(features)}, nil)
}

func (c *Client) SetStatusBarDisabled(ctx context.Context, disabled bool) error {
	return c.call(ctx, "SetStatusBarDisabled", http.MethodPut, pathStatusBar, statusBarBody{Disabled: disabled}, nil)
}

func (c *Client) AddPersistentPreferredHome(ctx context.Context, home types.Component) error {
	return c.call(ctx, "AddPersistentPreferredHome", http.MethodPost, pathPreferredHome, componentBody{Component: home}, nil)
}

func (c *Client) ClearPackagePersistentPreferred(ctx context.Context, pkg string) error {
	return c.call(ctx, "ClearPackagePersistentPreferred", http.MethodDelete, pathPreferredByPackage+url.PathEscape(pkg), nil, nil)
}

func (c *Client) PolicyAccessGranted(ctx context.Context) (bool, error) {
	var out policyAccess
	if err := c.call(ctx, "PolicyAccessGranted", http.MethodGet, pathNotificationPolicy, nil, &out); err != nil {
		return false, err
	}
	return out.AccessGranted, nil
}

func (c *Client) SetInterruptionFilter(ctx context.Context, mode types.DNDMode) error {
	return c.call(ctx, "SetInterruptionFilter", http.MethodPut, pathInterruptionFilter, filterBody{Mode: mode.String()}, nil)
}

// CurrentHome maps a not_found answer to (zero, false, nil)
func (c *Client) CurrentHome(ctx context.Context) (types.Component, bool, error) {
	var out componentBody
	err := c.call(ctx, "CurrentHome", http.MethodGet, pathHome, nil, &out)
	switch {
	case platform.IsNotFound(err):
		return types.Component{}, false, nil
	case err != nil:
		return types.Component{}, false, err
	}
	return out.Component, !out.Component.IsZero(), nil
}

func (c *Client) StartActivity(ctx context.Context, target types.Component, opts platform.StartOptions) error {
	body := startBody{
		Component: target,
		LockTask:  opts.LockTask,
		NewTask:   opts.NewTask,
		ClearTop:  opts.ClearTop,
	}
	return c.call(ctx, "StartActivity", http.MethodPost, pathActivityStart, body, nil)
}

// LaunchEntry maps a not_found answer to (zero, false, nil)
func (c *Client) LaunchEntry(ctx context.Context, pkg string) (types.Component, bool, error) {
	var out componentBody
	err := c.call(ctx, "LaunchEntry", http.MethodGet, pathPackages+url.PathEscape(pkg)+"/launch-entry", nil, &out)
	switch {
	case platform.IsNotFound(err):
		return types.Component{}, false, nil
	case err != nil:
		return types.Component{}, false, err
	}
	return out.Component, !out.Component.IsZero(), nil
}

func (c *Client) ActivityVisible(ctx context.Context, comp types.Component) (bool, error) {
	var out visibleBody
	path := pathActivityVisible + "?component=" + url.QueryEscape(comp.String())
	err := c.call(ctx, "ActivityVisible", http.MethodGet, path, nil, &out)
	switch {
	case platform.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, err
	}
	return out.Visible, nil
}

// PackageInfo reports an unknown package as Installed=false
func (c *Client) PackageInfo(ctx context.Context, pkg string) (platform.PackageInfo, error) {
	var out platform.PackageInfo
	err := c.call(ctx, "PackageInfo", http.MethodGet, pathPackages+url.PathEscape(pkg), nil, &out)
	switch {
	case platform.IsNotFound(err):
		return platform.PackageInfo{Package: pkg}, nil
	case err != nil:
		return platform.PackageInfo{}, err
	}
	if out.Package == "" {
		out.Package = pkg
	}
	return out, nil
}

func (c *Client) LauncherActivities(ctx context.Context) ([]types.Component, error) {
	var out launcherBody
	if err := c.call(ctx, "LauncherActivities", http.MethodGet, pathLauncherActivities, nil, &out); err != nil {
		return nil, err
	}
	return out.Activities, nil
}

func (c *Client) DeviceInfo(ctx context.Context) (platform.DeviceInfo, error) {
	var out platform.DeviceInfo
	if err := c.call(ctx, "DeviceInfo", http.MethodGet, pathDevice, nil, &out); err != nil {
		return platform.DeviceInfo{}, err
	}
	return out, nil
}
