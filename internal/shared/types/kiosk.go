package types

import (
	"fmt"
	"strings"
)

// Component identifies an OS-level launchable entry point
type Component struct {
	Package string `json:"package"`
	Class   string `json:"class"`
}

// NewComponent builds a component, expanding a leading-dot class name against the package
func NewComponent(pkg, class string) Component {
	if strings.HasPrefix(class, ".") {
		class = pkg + class
	}
	return Component{Package: pkg, Class: class}
}

// ParseComponent parses the flattened "package/class" form
func ParseComponent(s string) (Component, error) {
	pkg, class, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || pkg == "" || class == "" {
		return Component{}, fmt.Errorf("malformed component %q", s)
	}
	c := NewComponent(pkg, class)
	if !c.Valid() {
		return Component{}, fmt.Errorf("malformed component %q", s)
	}
	return c, nil
}

// String returns the flattened "package/class" form
func (c Component) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Package + "/" + c.Class
}

// IsZero reports whether the component is unset
func (c Component) IsZero() bool {
	return c.Package == "" && c.Class == ""
}

// Valid reports whether both halves are well-formed
func (c Component) Valid() bool {
	return ValidPackageName(c.Package) && c.Class != "" && !strings.ContainsAny(c.Class, "/ \t\n")
}

// ValidPackageName checks the dotted identifier form used for package names
func ValidPackageName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}

// DNDMode is the interruption filter requested for a kiosk session
type DNDMode int

const (
	DNDNone DNDMode = iota
	DNDAlarmsOnly
	DNDTotal
)

// ParseDNDMode converts the wire form ("none", "alarms", "total")
func ParseDNDMode(s string) (DNDMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off":
		return DNDNone, nil
	case "alarms":
		return DNDAlarmsOnly, nil
	case "total":
		return DNDTotal, nil
	default:
		return DNDNone, fmt.Errorf("unknown dnd mode %q", s)
	}
}

// String returns the wire form
func (m DNDMode) String() string {
	switch m {
	case DNDNone:
		return "none"
	case DNDAlarmsOnly:
		return "alarms"
	case DNDTotal:
		return "total"
	default:
		return "unknown"
	}
}

// Features is the lock task feature bitmask. Bit values match the platform's
// LOCK_TASK_FEATURE_* constants.
type Features uint32

const (
	FeatureNone                     Features = 0
	FeatureSystemInfo               Features = 1 << 0
	FeatureNotifications            Features = 1 << 1
	FeatureHome                     Features = 1 << 2
	FeatureOverview                 Features = 1 << 3
	FeatureGlobalActions            Features = 1 << 4
	FeatureKeyguard                 Features = 1 << 5
	FeatureBlockActivityStartInTask Features = 1 << 6

	featureMask = FeatureSystemInfo | FeatureNotifications | FeatureHome | FeatureOverview |
		FeatureGlobalActions | FeatureKeyguard | FeatureBlockActivityStartInTask
)

// Valid reports whether only known feature bits are set
func (f Features) Valid() bool {
	return f&^featureMask == 0
}

// Has reports whether every bit in other is set
func (f Features) Has(other Features) bool {
	return f&other == other
}

// KioskRequest describes one Prepare/Apply call. It is never mutated after construction.
type KioskRequest struct {
	Allowlist         []string
	Features          Features
	SuppressStatusBar bool
	DNDMode           DNDMode
	// TargetPackage is the app brought to the foreground by Apply. Empty means
	// the controller's configured default.
	TargetPackage string
}

// Validate checks the request shape before any side effect
func (r KioskRequest) Validate() error {
	for _, pkg := range r.Allowlist {
		if !ValidPackageName(pkg) {
			return fmt.Errorf("invalid allowlist package %q", pkg)
		}
	}
	if !r.Features.Valid() {
		return fmt.Errorf("unknown feature bits in %#x", uint32(r.Features))
	}
	if r.DNDMode < DNDNone || r.DNDMode > DNDTotal {
		return fmt.Errorf("invalid dnd mode %d", r.DNDMode)
	}
	if r.TargetPackage != "" && !ValidPackageName(r.TargetPackage) {
		return fmt.Errorf("invalid target package %q", r.TargetPackage)
	}
	return nil
}

// SessionState is the persisted kiosk session record
type SessionState struct {
	Applied bool
	// PreviousHome is only meaningful while Applied is true
	PreviousHome *Component
	// DNDAltered records that the session changed the interruption filter
	DNDAltered bool
	// Target is the package the session pins and the relaunch brings up
	Target string
}

// ResultCode is the terminal outcome of a controller operation
type ResultCode string

const (
	ResultOK                 ResultCode = "OK"
	ResultNotPrivileged      ResultCode = "ERR_NOT_DEVICE_OWNER"
	ResultPermissionMissing  ResultCode = "ERR_DND_PERMISSION_MISSING"
	ResultTargetUnresolvable ResultCode = "ERR_TARGET_UNRESOLVABLE"
	ResultInvalidRequest     ResultCode = "ERR_INVALID_PARAMS"
	ResultInternal           ResultCode = "ERR_INTERNAL"
)

// OK reports whether the code is ResultOK
func (r ResultCode) OK() bool {
	return r == ResultOK
}
