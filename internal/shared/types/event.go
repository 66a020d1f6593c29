package types

import "time"

// EventType names a broadcast announcement
type EventType string

const (
	EventKioskApplied     EventType = "kiosk-applied"
	EventKioskCleared     EventType = "kiosk-cleared"
	EventLockTaskEntering EventType = "lock-task-entering"
	EventLockTaskExiting  EventType = "lock-task-exiting"
	EventAdminEnabled     EventType = "admin-enabled"
	EventAdminDisabled    EventType = "admin-disabled"
	EventRelaunched       EventType = "kiosk-relaunched"
)

// Event is a fire-and-forget broadcast
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"event"`
	DNDActive *bool     `json:"dndActive,omitempty"`
	Package   string    `json:"package,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
