package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/shared/id"
	"go.uber.org/zap"
)

// Header names used for propagation
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// Span represents a single operation in a trace
type Span struct {
	TraceID    id.TraceID
	SpanID     id.SpanID
	ParentID   id.SpanID
	Name       string
	Service    string
	StartTime  time.Time
	Duration   time.Duration
	Tags       map[string]string
	Error      error
	StatusCode int
}

// Tracer records finished spans to the log
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}
	close   sync.Once
}

// New creates a tracer and starts its collector
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 256),
		done:    make(chan struct{}),
	}

	go t.collectSpans()

	return t
}

// StartSpan opens a span, continuing the trace in ctx if there is one
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = id.NewTraceID()
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    id.NewSpanID(),
		ParentID:  SpanIDFrom(ctx),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	return span, WithIDs(ctx, traceID, span.SpanID)
}

// Finish stamps the span duration
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	s.Error = err
}

// SetStatus sets the response status code
func (s *Span) SetStatus(code int) {
	s.StatusCode = code
}

// Submit hands a finished span to the collector. Spans are dropped when the
// buffer is full or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	select {
	case <-t.done:
		return
	default:
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", span.TraceID.String()),
			zap.String("span_id", span.SpanID.String()),
		)
	}
}

// Close stops the collector
func (t *Tracer) Close() {
	t.close.Do(func() { close(t.done) })
}

func (t *Tracer) collectSpans() {
	for {
		select {
		case span := <-t.spans:
			t.processSpan(span)
		case <-t.done:
			return
		}
	}
}

func (t *Tracer) processSpan(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", span.TraceID.String()),
		zap.String("span_id", span.SpanID.String()),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID.String()))
	}
	if span.StatusCode != 0 {
		fields = append(fields, zap.Int("status", span.StatusCode))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Error != nil {
		fields = append(fields, zap.Error(span.Error))
		t.logger.Warn("span completed with error", fields...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithIDs stores trace and span IDs in ctx. Empty values are skipped.
func WithIDs(ctx context.Context, traceID id.TraceID, spanID id.SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

// TraceIDFrom retrieves the trace ID from context
func TraceIDFrom(ctx context.Context) id.TraceID {
	traceID, _ := ctx.Value(traceIDKey).(id.TraceID)
	return traceID
}

// SpanIDFrom retrieves the span ID from context
func SpanIDFrom(ctx context.Context) id.SpanID {
	spanID, _ := ctx.Value(spanIDKey).(id.SpanID)
	return spanID
}

// Inject writes the trace context of ctx into outgoing headers
func Inject(ctx context.Context, h http.Header) {
	if traceID := TraceIDFrom(ctx); traceID != "" {
		h.Set(HeaderTraceID, traceID.String())
	}
	if spanID := SpanIDFrom(ctx); spanID != "" {
		h.Set(HeaderSpanID, spanID.String())
	}
}

// Extract reads a trace context from incoming headers
func Extract(h http.Header) (id.TraceID, id.SpanID) {
	return id.TraceID(h.Get(HeaderTraceID)), id.SpanID(h.Get(HeaderSpanID))
}

// Fields returns the trace context of ctx as log fields
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if traceID := TraceIDFrom(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID.String()))
	}
	if spanID := SpanIDFrom(ctx); spanID != "" {
		fields = append(fields, zap.String("span_id", spanID.String()))
	}
	return fields
}
