/*
Package tracing carries request-scoped trace and span IDs through the agent.

Inbound HTTP requests and gRPC health probes get a span; the IDs ride the
request context into the kiosk controller (as log fields) and out to the
device bridge (as X-Trace-ID / X-Span-ID headers). Finished spans are logged
by a background collector.

# Usage

	tracer := tracing.New("kioskhelper", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	logger.Info("applied", tracing.Fields(ctx)...)
	tracing.Inject(ctx, req.Header)
*/
package tracing
