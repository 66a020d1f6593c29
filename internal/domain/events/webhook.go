package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// WebhookConfig configures outbound JSON posts
type WebhookConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultWebhookConfig returns conservative retry settings
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:      5 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
	}
}

// Webhook posts JSON documents with retries
type Webhook struct {
	client *retryablehttp.Client
}

// NewWebhook creates a poster
func NewWebhook(cfg WebhookConfig, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = logging.Retryable(logger)
	return &Webhook{client: client}
}

// Post sends v as JSON to url. Any non-2xx answer is an error.
func (w *Webhook) Post(ctx context.Context, url string, v interface{}) error {
	body, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "kioskhelper-webhook/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// WebhookSink broadcasts every event to one URL
type WebhookSink struct {
	hook *Webhook
	url  string
}

// NewWebhookSink creates a sink posting to url
func NewWebhookSink(hook *Webhook, url string) *WebhookSink {
	return &WebhookSink{hook: hook, url: url}
}

// Deliver implements Sink
func (s *WebhookSink) Deliver(ctx context.Context, event types.Event) error {
	return s.hook.Post(ctx, s.url, event)
}
