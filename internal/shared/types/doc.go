// Package types provides shared data structures for the kiosk helper.
//
// Core Types:
//   - KioskRequest: Allow-list, lock task features, status bar and DND settings
//   - Component: Launchable entry point ("package/class")
//   - SessionState: Persisted kiosk session record
//   - ResultCode: Terminal outcome of a controller operation
//
// Wire Types:
//   - CommandRequest, CommandResponse: enable/disable transport
//   - Event: broadcast announcements
//   - PlatformEvent, BootSignalRequest: device-admin lifecycle notifications
package types
