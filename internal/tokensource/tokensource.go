package tokensource

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// tokenRequestTimeout bounds each token request. oauth2 uses the context captured at
// construction for refreshes, so the caller's deadline does not apply.
const tokenRequestTimeout = 30 * time.Second

// TokenSourceOption configures token sources created by this package.
type TokenSourceOption func(*tokenSourceConfig)

// tokenSourceConfig holds configuration for NewTokenSource and DefaultCredentials.
type tokenSourceConfig struct {
	baseTransport http.RoundTripper
	endpoint      oauth2.Endpoint
}

// WithTransport sets a custom base transport for token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) TokenSourceOption {
	return func(c *tokenSourceConfig) {
		c.baseTransport = transport
	}
}

// WithEndpoint overrides google.Endpoint for refresh token exchanges.
func WithEndpoint(endpoint oauth2.Endpoint) TokenSourceOption {
	return func(c *tokenSourceConfig) {
		c.endpoint = endpoint
	}
}

func newTokenSourceConfig(opts []TokenSourceOption) *tokenSourceConfig {
	cfg := &tokenSourceConfig{
		baseTransport: http.DefaultTransport,
		endpoint:      google.Endpoint,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// oauthContext returns a context carrying a time-bounded HTTP client for oauth2.
// oauth2 package injects custom HTTP clients via context (oauth2.HTTPClient key).
func (c *tokenSourceConfig) oauthContext(ctx context.Context) context.Context {
	httpClient := &http.Client{
		Timeout:   tokenRequestTimeout,
		Transport: c.baseTransport,
	}
	return context.WithValue(ctx, oauth2.HTTPClient, httpClient)
}

// ClientCredentials identify the OAuth client a refresh token was issued to.
type ClientCredentials struct {
	ID     string
	Secret string
}

// TokenSource provides automatic access token refresh for a Google user refresh token.
type TokenSource struct {
	tokenSource oauth2.TokenSource
}

// Compile-time check to ensure TokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource creates a TokenSource that exchanges refreshToken for access tokens with the
// given scopes. No I/O happens until the first Token call.
func NewTokenSource(refreshToken string, client ClientCredentials, scopes []string, opts ...TokenSourceOption) *TokenSource {
	cfg := newTokenSourceConfig(opts)

	oauth2Config := &oauth2.Config{
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		Scopes:       scopes,
		Endpoint:     cfg.endpoint,
	}

	initialToken := &oauth2.Token{
		RefreshToken: refreshToken,
		// AccessToken populated by first Token() call
	}

	// Since TokenSource.Token() has no context parameter, we store the context
	// at construction time per oauth2's documented API.
	oauthCtx := cfg.oauthContext(context.Background())

	return &TokenSource{
		tokenSource: oauth2Config.TokenSource(oauthCtx, initialToken),
	}
}

// Token returns a valid access token, automatically refreshing if expired.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	return ts.tokenSource.Token()
}
