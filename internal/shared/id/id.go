// Package id generates prefixed ULIDs for requests, traces and spans.
//
// ULIDs sort by creation time, so log lines and diagnostics keyed by them
// read in order. The prefix names the ID's domain (req_*, trc_*, spn_*).
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies one inbound command
type RequestID string

// TraceID identifies a chain of calls across the agent and the device bridge
type TraceID string

// SpanID identifies one step within a trace
type SpanID string

const (
	RequestPrefix = "req"
	TracePrefix   = "trc"
	SpanPrefix    = "spn"
)

// Generator produces ULIDs. Within one millisecond the IDs are monotonic.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// for deterministic tests
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// WithPrefix creates a "prefix_ULID" string
func (g *Generator) WithPrefix(prefix string) string {
	return prefix + "_" + g.Generate().String()
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().WithPrefix(RequestPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().WithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().WithPrefix(SpanPrefix))
}

func (id RequestID) String() string { return string(id) }
func (id TraceID) String() string   { return string(id) }
func (id SpanID) String() string    { return string(id) }

// Valid reports whether s is a ULID, with or without a prefix
func Valid(s string) bool {
	_, err := parse(s)
	return err == nil
}

// Timestamp extracts the creation time from a (possibly prefixed) ID
func Timestamp(s string) (time.Time, error) {
	parsed, err := parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

func parse(s string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	return ulid.Parse(s)
}
