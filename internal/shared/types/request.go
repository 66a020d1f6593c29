package types

import (
	"errors"
	"fmt"
)

// CommandAction is the verb carried by a kiosk command
type CommandAction string

const (
	ActionEnable  CommandAction = "enable"
	ActionDisable CommandAction = "disable"
)

// CommandMode selects which enable variant runs
type CommandMode string

const (
	// ModePrepare arms policy only; the target app pins itself
	ModePrepare CommandMode = "prepare"
	// ModeApply also seizes the home surface and launches the target into lock task
	ModeApply CommandMode = "apply"
)

// CommandRequest is the wire form of an enable/disable command.
// Pointer fields distinguish "absent" from the zero value so transport
// defaults can be applied.
type CommandRequest struct {
	Action            CommandAction `json:"action" binding:"required"`
	Mode              CommandMode   `json:"mode,omitempty"`
	Allowlist         []string      `json:"allowlist,omitempty"`
	Features          *uint32       `json:"features,omitempty"`
	SuppressStatusBar *bool         `json:"suppressStatusBar,omitempty"`
	DNDMode           *string       `json:"dndMode,omitempty"`
	TargetPackage     string        `json:"targetPackage,omitempty"`
	ResultCallback    string        `json:"resultCallback,omitempty"`
}

// CommandDefaults fill the fields a command leaves out
type CommandDefaults struct {
	Mode              CommandMode
	Allowlist         []string
	Features          Features
	SuppressStatusBar bool
	DNDMode           DNDMode
}

// DefaultCommandDefaults returns the stock transport defaults
func DefaultCommandDefaults() CommandDefaults {
	return CommandDefaults{
		Mode:              ModePrepare,
		Features:          FeatureNone,
		SuppressStatusBar: true,
		DNDMode:           DNDTotal,
	}
}

// ErrUnknownAction is returned for a command verb other than enable/disable
var ErrUnknownAction = errors.New("unknown action")

// KioskRequest converts an enable command into a controller request and the
// mode to run it with. Disable commands carry no request.
func (c CommandRequest) KioskRequest(d CommandDefaults) (KioskRequest, CommandMode, error) {
	switch c.Action {
	case ActionEnable:
	case ActionDisable:
		return KioskRequest{}, "", nil
	default:
		return KioskRequest{}, "", fmt.Errorf("%w %q", ErrUnknownAction, c.Action)
	}

	mode := c.Mode
	if mode == "" {
		mode = d.Mode
	}
	if mode != ModePrepare && mode != ModeApply {
		return KioskRequest{}, "", fmt.Errorf("unknown mode %q", mode)
	}

	req := KioskRequest{
		Allowlist:         c.Allowlist,
		Features:          d.Features,
		SuppressStatusBar: d.SuppressStatusBar,
		DNDMode:           d.DNDMode,
		TargetPackage:     c.TargetPackage,
	}
	if req.Allowlist == nil {
		req.Allowlist = append([]string(nil), d.Allowlist...)
	}
	if c.Features != nil {
		req.Features = Features(*c.Features)
	}
	if c.SuppressStatusBar != nil {
		req.SuppressStatusBar = *c.SuppressStatusBar
	}
	if c.DNDMode != nil {
		dnd, err := ParseDNDMode(*c.DNDMode)
		if err != nil {
			return KioskRequest{}, "", err
		}
		req.DNDMode = dnd
	}
	if err := req.Validate(); err != nil {
		return KioskRequest{}, "", err
	}
	return req, mode, nil
}

// CommandResponse carries the single terminal result code
type CommandResponse struct {
	Status    ResultCode `json:"status"`
	RequestID string     `json:"request_id,omitempty"`
}

// StatusResponse reports the persisted kiosk state
type StatusResponse struct {
	Prepared     bool   `json:"prepared"`
	PreviousHome string `json:"previous_home,omitempty"`
}

// PlatformEvent is a lifecycle notification pushed by the device-admin side
type PlatformEvent struct {
	Type    string `json:"type" binding:"required"`
	Package string `json:"package,omitempty"`
}

// BootSignalRequest delivers a restart-lifecycle signal
type BootSignalRequest struct {
	Signal string `json:"signal" binding:"required"`
}

// WSMessage represents an event stream frame
type WSMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Event   *Event `json:"event,omitempty"`
}
