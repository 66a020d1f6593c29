package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"github.com/kelseyhightower/envconfig"
)

// Platform drivers
const (
	DriverBridge = "bridge"
	DriverMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Kiosk     KioskConfig
	Platform  PlatformConfig
	Broadcast BroadcastConfig
	Health    HealthConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Host            string        `envconfig:"HOST" default:"127.0.0.1"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// KioskConfig holds the agent identity and session settings.
type KioskConfig struct {
	OwnPackage         string        `envconfig:"KIOSK_OWN_PACKAGE" default:"fi.iki.pnr.kioskhelper"`
	HomeActivity       string        `envconfig:"KIOSK_HOME_ACTIVITY" default:".KioskHomeActivity"`
	DefaultTarget      string        `envconfig:"KIOSK_DEFAULT_TARGET" default:"org.thoughtcrime.securesms"`
	DefaultMode        string        `envconfig:"KIOSK_DEFAULT_MODE" default:"prepare"`
	StateDir           string        `envconfig:"KIOSK_STATE_DIR" default:"./state"`
	CallTimeout        time.Duration `envconfig:"KIOSK_CALL_TIMEOUT" default:"5s"`
	ResolveTimeout     time.Duration `envconfig:"KIOSK_RESOLVE_TIMEOUT" default:"15s"`
	DiagnosticsHistory int           `envconfig:"KIOSK_DIAGNOSTICS_HISTORY" default:"32"`
	// Profile is an optional YAML file with per-target settings
	Profile string `envconfig:"KIOSK_PROFILE"`
}

// PlatformConfig selects and configures the device driver.
type PlatformConfig struct {
	Driver      string        `envconfig:"PLATFORM_DRIVER" default:"bridge"`
	BridgeURL   string        `envconfig:"PLATFORM_BRIDGE_URL" default:"http://127.0.0.1:8765"`
	BridgeToken string        `envconfig:"PLATFORM_BRIDGE_TOKEN"`
	Timeout     time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"5s"`
	Retries     int           `envconfig:"PLATFORM_RETRIES" default:"2"`
	RateLimit   float64       `envconfig:"PLATFORM_RATE_LIMIT" default:"0"`
}

// BroadcastConfig holds event delivery configuration.
type BroadcastConfig struct {
	WebhookURL string        `envconfig:"BROADCAST_WEBHOOK_URL"`
	Retries    int           `envconfig:"BROADCAST_RETRIES" default:"3"`
	Timeout    time.Duration `envconfig:"BROADCAST_TIMEOUT" default:"5s"`
}

// HealthConfig holds the gRPC health endpoint configuration.
type HealthConfig struct {
	Address string `envconfig:"HEALTH_GRPC_ADDR" default:"127.0.0.1:8081"`
	Enabled bool   `envconfig:"HEALTH_GRPC_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "127.0.0.1",
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
		Kiosk: KioskConfig{
			OwnPackage:         "fi.iki.pnr.kioskhelper",
			HomeActivity:       ".KioskHomeActivity",
			DefaultTarget:      "org.thoughtcrime.securesms",
			DefaultMode:        string(types.ModePrepare),
			StateDir:           "./state",
			CallTimeout:        5 * time.Second,
			ResolveTimeout:     15 * time.Second,
			DiagnosticsHistory: 32,
		},
		Platform: PlatformConfig{
			Driver:    DriverBridge,
			BridgeURL: "http://127.0.0.1:8765",
			Timeout:   5 * time.Second,
			Retries:   2,
		},
		Broadcast: BroadcastConfig{
			Retries: 3,
			Timeout: 5 * time.Second,
		},
		Health: HealthConfig{
			Address: "127.0.0.1:8081",
			Enabled: true,
		},
	}
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	var errs []error
	switch c.Platform.Driver {
	case DriverBridge:
		if c.Platform.BridgeURL == "" {
			errs = append(errs, errors.New("PLATFORM_BRIDGE_URL is required for the bridge driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown platform driver %q", c.Platform.Driver))
	}
	switch types.CommandMode(c.Kiosk.DefaultMode) {
	case types.ModePrepare, types.ModeApply:
	default:
		errs = append(errs, fmt.Errorf("unknown default mode %q", c.Kiosk.DefaultMode))
	}
	if !types.ValidPackageName(c.Kiosk.OwnPackage) {
		errs = append(errs, fmt.Errorf("invalid own package %q", c.Kiosk.OwnPackage))
	}
	if !types.ValidPackageName(c.Kiosk.DefaultTarget) {
		errs = append(errs, fmt.Errorf("invalid default target %q", c.Kiosk.DefaultTarget))
	}
	return errors.Join(errs...)
}

// Address returns the HTTP listen address
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}
