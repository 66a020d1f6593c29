// Package session persists the kiosk session record.
//
// The record is a flat key-value table scoped to the agent's own package:
//
//	applied       = true
//	previous-home = "com.android.launcher3/com.android.launcher3.Launcher"
//	dnd-altered   = true
//
// It is the durable source of truth across process restarts. The kiosk
// controller is its only writer.
//
// Stores:
//   - FileStore: TOML file, atomic replace on every Save
//   - MemoryStore: in-process, for development and tests
package session
