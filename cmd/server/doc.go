// Package main is the entry point for the kioskhelper device agent.
//
// The agent pins a device to a single messaging app. It takes enable/disable
// commands over HTTP, drives the device-management role through the on-device
// companion bridge, persists the kiosk session, broadcasts state changes and
// relaunches the target after a reboot.
//
// Architecture:
//
//	Operator console → kioskhelper (HTTP) → companion bridge → device policy
//	                                     → session record (TOML)
//	                                     → event stream / webhook
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - CLI flags (override env vars)
//   - KIOSK_PROFILE for per-target YAML settings
//
// Usage:
//
//	# Against the companion on the loopback interface
//	./server -port 8080 -bridge http://127.0.0.1:8765
//
//	# Development mode with the simulated device
//	./server -dev -driver memory
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
