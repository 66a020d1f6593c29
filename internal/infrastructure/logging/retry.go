package logging

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// retryLogger routes go-retryablehttp's leveled output into zap
type retryLogger struct {
	s *zap.SugaredLogger
}

// Retryable adapts l for retryablehttp.Client.Logger. Per-attempt failures
// are logged at Warn; the final error reaches the caller anyway.
func Retryable(l *zap.Logger) retryablehttp.LeveledLogger {
	return retryLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.s.Warnw(msg, keysAndValues...)
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.s.Warnw(msg, keysAndValues...)
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.s.Debugw(msg, keysAndValues...)
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.s.Debugw(msg, keysAndValues...)
}
