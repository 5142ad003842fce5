// Package httptransport implements remoteconfig.Transport on top of resty.
package httptransport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/florianilch/rconf/internal/remoteconfig"
)

// DefaultUserAgent identifies requests sent by this client.
const DefaultUserAgent = "rconf"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	userAgent string
	limiter   *rate.Limiter
	transport http.RoundTripper
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(userAgent string) Option {
	return func(c *clientConfig) {
		c.userAgent = userAgent
	}
}

// WithRateLimit paces outgoing requests with a token bucket. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRoundTripper sets the underlying HTTP transport (e.g. for proxies or tests).
// If not provided, http.DefaultTransport is used.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.transport = rt
	}
}

// Client sends remote config requests through a single resty client. Non-2xx responses are
// returned as-is; interpreting them is the store's job. Resty's own retries stay disabled.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// Compile-time check to ensure Client implements remoteconfig.Transport
var _ remoteconfig.Transport = (*Client)(nil)

// New creates a Client.
func New(opts ...Option) *Client {
	cfg := &clientConfig{
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.userAgent)
	if cfg.transport != nil {
		client.SetTransport(cfg.transport)
	}

	return &Client{
		client:  client,
		limiter: cfg.limiter,
	}
}

// Do sends req and returns the decoded response. gzip-encoded bodies are decompressed by resty.
func (c *Client) Do(ctx context.Context, req *remoteconfig.Request) (*remoteconfig.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	// W3C Trace Context (traceparent, tracestate) from the caller's span, if any
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))

	r := c.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(header)
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}

	return &remoteconfig.Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}
