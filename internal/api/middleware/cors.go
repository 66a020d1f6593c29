package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins  []string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        time.Duration
}

// DefaultCORSConfig allows the local operator console only.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Accept",
			"Origin",
			tracing.HeaderTraceID,
		},
		ExposeHeaders: []string{tracing.HeaderTraceID, tracing.HeaderSpanID},
		MaxAge:        12 * time.Hour,
	}
}

// WithOrigins returns a copy allowing the given origins. An empty list keeps
// the current ones.
func (c CORSConfig) WithOrigins(origins []string) CORSConfig {
	if len(origins) > 0 {
		c.AllowOrigins = origins
	}
	return c
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  cfg.AllowMethods,
		AllowHeaders:  cfg.AllowHeaders,
		ExposeHeaders: cfg.ExposeHeaders,
		MaxAge:        cfg.MaxAge,
	})
}
