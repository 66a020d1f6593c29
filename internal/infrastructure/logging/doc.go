// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Each subsystem logs through a named child logger (kiosk, launch, boot,
// bridge, events, api) so lines can be filtered by component.
//
// Example Usage:
//
//	logger := logging.NewOrNop(logging.Config{Level: "info"})
//	kioskLog := logger.Component("kiosk")
//	kioskLog.Warn("Status bar control unsupported", zap.Error(err))
package logging
