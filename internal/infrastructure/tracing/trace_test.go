package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, SpanIDFrom(childCtx))
}

func TestInjectExtract(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "op")

	h := http.Header{}
	Inject(ctx, h)
	traceID, spanID := Extract(h)

	assert.Equal(t, span.TraceID, traceID)
	assert.Equal(t, span.SpanID, spanID)
	assert.Len(t, Fields(ctx), 2)
	assert.Empty(t, Fields(context.Background()))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	var seen string
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/ping", func(c *gin.Context) {
		seen = TraceIDFrom(c.Request.Context()).String()
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderTraceID, "trc_upstream")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "trc_upstream", seen)
	assert.Equal(t, "trc_upstream", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New("test", zap.NewNop())
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	span.Finish()
	tracer.Submit(span)
}
