// Package bridge drives the device through the on-device device-admin
// companion, an app that holds the management role and exposes it as a small
// HTTP/JSON API under /v1/.
//
// Every call is rate limited, bounded by a per-call timeout, retried on
// transport errors and gateway statuses, and guarded by a circuit breaker.
// Error bodies {"code": ..., "message": ...} map onto the platform sentinels.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures the bridge client
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit in requests per second, 0 for unlimited
	RateLimit float64
	// TripAfter consecutive transport failures opens the breaker
	TripAfter   uint32
	OpenTimeout time.Duration
}

// DefaultConfig returns settings for a companion on the loopback interface
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://127.0.0.1:8765",
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: time.Second,
		RateLimit:    0,
		TripAfter:    5,
		OpenTimeout:  10 * time.Second,
	}
}

// Client implements platform.Device over the companion API
type Client struct {
	cfg     Config
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

var _ platform.Device = (*Client)(nil)

// New creates a bridge client
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("bridge base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = logging.Retryable(logger)

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", "kioskhelper-bridge/1.0").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	tripAfter := cfg.TripAfter
	if tripAfter == 0 {
		tripAfter = DefaultConfig().TripAfter
	}
	breaker := resilience.New("device-bridge", resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		// A classified platform answer means the companion is healthy
		IsSuccessful: func(err error) bool {
			return err == nil ||
				platform.IsUnsupported(err) ||
				platform.IsPermissionDenied(err) ||
				platform.IsNotFound(err)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		cfg:     cfg,
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// WithMetrics records every bridge call
func (c *Client) WithMetrics(metrics *monitoring.Metrics) *Client {
	c.metrics = metrics
	return c
}

// BreakerState exposes the breaker for health reporting
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// call runs one request through the breaker and wraps the outcome with op
func (c *Client) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	start := time.Now()
	err := c.breaker.Do(func() error {
		return c.send(ctx, method, path, body, out)
	})
	if c.metrics != nil {
		c.metrics.RecordPlatformCall(op, status(err), time.Since(start))
	}
	return platform.Wrap(op, err)
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req := c.resty.R().
		SetContext(ctx).
		SetError(&errorBody{})
	tracing.Inject(ctx, req.Header)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("bridge %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

// checkRetry retries transport errors and gateway statuses only. A
// companion that answered with an error body is not retried.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case platform.IsUnsupported(err):
		return "unsupported"
	case platform.IsPermissionDenied(err):
		return "permission_denied"
	case platform.IsNotFound(err):
		return "not_found"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "error"
	}
}

// errorBody is the companion's error envelope
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	codeUnsupported      = "unsupported"
	codePermissionDenied = "permission_denied"
	codeNotFound         = "not_found"
)

func decodeError(resp *resty.Response) error {
	eb, _ := resp.Error().(*errorBody)
	if eb == nil {
		eb = &errorBody{}
	}

	var sentinel error
	switch eb.Code {
	case codeUnsupported:
		sentinel = platform.ErrUnsupported
	case codePermissionDenied:
		sentinel = platform.ErrPermissionDenied
	case codeNotFound:
		sentinel = platform.ErrNotFound
	}

	msg := eb.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("bridge status %s: %s", strconv.Itoa(resp.StatusCode()), msg)
}
