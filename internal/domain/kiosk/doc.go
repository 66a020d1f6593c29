/*
Package kiosk implements the kiosk session controller.

The controller moves the device between two states:

	Idle --Prepare/Apply(OK)--> KioskActive --Clear--> Idle

Prepare arms lock-task policy (allow-list, features, status bar, DND) and
leaves the target app to pin itself. Apply additionally records the current
home surface, registers the agent's own home, resolves the target's entry
point and starts it in lock task mode. A failure after the first mutation
runs the Clear path against the previously persisted record, so a failed call
always ends Idle.

Every mutating operation first checks the device-owner role; without it no
gateway is touched. The session record is written only after all side
effects of a call were attempted.

Error classification at the call sites:

  - status bar control: never fatal
  - interruption filter: permission denial is fatal, anything else is not
  - lock-task packages and features, home registration, activity start: fatal
*/
package kiosk
