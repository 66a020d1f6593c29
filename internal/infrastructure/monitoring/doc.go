/*
Package monitoring provides Prometheus metrics for the kiosk helper.

# Metrics

- HTTP request metrics (count, latency) per route template
- Kiosk operations by result code, operation latency, prepared gauge
- Launch resolution outcomes by stage (declared, alternate, unresolvable)
- Platform bridge calls by operation and status
- Boot guard signals by outcome
- Broadcast events and event stream connections

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

Each Metrics value owns its registry, so several instances can coexist in
one process (tests build one per case).
*/
package monitoring
