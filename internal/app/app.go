package app

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/florianilch/rconf/internal/httptransport"
	"github.com/florianilch/rconf/internal/remoteconfig"
	"github.com/florianilch/rconf/internal/tokensource"
)

// App holds the Remote Config client built from configuration.
type App struct {
	cfg   *Config
	store *remoteconfig.Store
}

// New creates a new App instance. No network or credential I/O happens until the store is used.
func New(cfg *Config) (*App, error) {
	return newApp(cfg)
}

func newApp(cfg *Config, opts ...tokensource.TokenSourceOption) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// I/O deferred to first Token() call
	tokens, err := newTokenProvider(cfg.Auth, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create token provider: %w", err)
	}

	transport := httptransport.New(newTransportOptions(cfg.Service)...)

	store, err := remoteconfig.New(cfg.ProjectID, transport, tokens,
		remoteconfig.WithBaseURL(cfg.Service.BaseURL),
		remoteconfig.WithTimeout(cfg.Service.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &App{
		cfg:   cfg,
		store: store,
	}, nil
}

// Store returns the configured Remote Config store.
func (a *App) Store() *remoteconfig.Store {
	return a.store
}

func newTransportOptions(cfg ServiceConfig) []httptransport.Option {
	var opts []httptransport.Option
	if cfg.UserAgent != "" {
		opts = append(opts, httptransport.WithUserAgent(cfg.UserAgent))
	}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, httptransport.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst))
	}
	return opts
}

// newTokenProvider creates a token provider from authentication configuration.
// No I/O is performed - token sources are created on first use.
func newTokenProvider(cfg AuthConfig, opts ...tokensource.TokenSourceOption) (*tokensource.Provider, error) {
	var factory tokensource.Factory

	switch cfg.Method {
	case AuthenticationMethodADC:
		factory = tokensource.DefaultCredentials(cfg.CredentialsFile, opts...)

	case AuthenticationMethodStatic:
		store, err := cfg.NewTokenStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
		factory = tokensource.Static(store)

	case AuthenticationMethodOAuth:
		store, err := cfg.NewTokenStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
		client := tokensource.ClientCredentials{ID: cfg.ClientID, Secret: cfg.ClientSecret}
		factory = func(_ context.Context, scopes []string) (oauth2.TokenSource, error) {
			return NewPersistentTokenSource(func(refreshToken string) oauth2.TokenSource {
				return tokensource.NewTokenSource(refreshToken, client, scopes, opts...)
			}, store)
		}

	default:
		return nil, fmt.Errorf("unsupported authentication method: %s", cfg.Method)
	}

	return tokensource.NewProvider(factory)
}
