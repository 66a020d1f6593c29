// Package ws streams kiosk broadcasts (kiosk-applied, kiosk-cleared,
// lock-task and admin lifecycle events, relaunches) to WebSocket clients.
//
// Server frames:
//   - system: greeting after connect
//   - event: one broadcast, under "event"
//   - pong: answer to a client ping
//   - error: malformed or unknown client frame
//
// Clients may send {"type":"ping"}. Everything else is answered with an error
// frame and otherwise ignored.
//
// Example Usage:
//
//	handler := ws.NewHandler(bus, cfg.Server.CORSOrigins, logger)
//	router.GET("/v1/events", handler.HandleConnection)
package ws
