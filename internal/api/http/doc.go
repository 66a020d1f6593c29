// Package http exposes the kiosk controller, the relaunch guard and the
// diagnostics history over a small JSON API.
//
// Routes:
//
//	POST /v1/kiosk/commands     enable/disable, answers {status, request_id}
//	GET  /v1/kiosk              persisted session
//	GET  /v1/kiosk/diagnostics  recent launch diagnostics (?limit=&package=)
//	POST /v1/platform/events    lock-task and admin lifecycle reports
//	POST /v1/boot/signals       restart signals for the relaunch guard
//	GET  /health                dependency probes
package http
