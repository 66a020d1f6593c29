package tracing

import (
	"context"
	"strconv"

	"github.com/GriffinCanCode/kioskhelper/internal/shared/id"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID, parentID := Extract(c.Request.Header)
		ctx := WithIDs(c.Request.Context(), traceID, parentID)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, name)
		span.SetTag("http.method", c.Request.Method)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, span.TraceID.String())
		c.Header(HeaderSpanID, span.SpanID.String())

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}

// GRPCUnaryInterceptor creates a gRPC unary interceptor for tracing
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			var traceID id.TraceID
			var parentID id.SpanID
			if vals := md.Get("x-trace-id"); len(vals) > 0 {
				traceID = id.TraceID(vals[0])
			}
			if vals := md.Get("x-span-id"); len(vals) > 0 {
				parentID = id.SpanID(vals[0])
			}
			ctx = WithIDs(ctx, traceID, parentID)
		}

		span, ctx := tracer.StartSpan(ctx, info.FullMethod)
		span.SetTag("rpc.system", "grpc")

		resp, err := handler(ctx, req)
		if err != nil {
			span.SetError(err)
		}

		span.Finish()
		tracer.Submit(span)

		return resp, err
	}
}
