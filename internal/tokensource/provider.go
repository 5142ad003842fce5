package tokensource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/rconf/internal/remoteconfig"
)

// Factory creates a token source for a scope set. The context is only valid for the
// duration of the call; sources must not retain it for later refreshes.
type Factory func(ctx context.Context, scopes []string) (oauth2.TokenSource, error)

// Provider adapts a Factory to remoteconfig.TokenProvider.
// Token sources are created lazily, one per distinct scope set, and reused afterwards.
type Provider struct {
	factory Factory

	// creating deduplicates concurrent factory calls without holding mu during I/O
	creating singleflight.Group

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// Compile-time check to ensure Provider implements remoteconfig.TokenProvider
var _ remoteconfig.TokenProvider = (*Provider)(nil)

// NewProvider creates a Provider. No I/O is performed until the first Token call.
func NewProvider(factory Factory) (*Provider, error) {
	if factory == nil {
		return nil, fmt.Errorf("missing token source factory")
	}

	return &Provider{
		factory: factory,
		sources: make(map[string]oauth2.TokenSource),
	}, nil
}

// Token returns an access token for scopes. It returns ctx.Err() as soon as ctx is done, even
// if a refresh is still in flight; the refresh completes in the background and its result is
// cached for the next call.
func (p *Provider) Token(ctx context.Context, scopes []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ts, err := p.source(ctx, scopes)
	if err != nil {
		return "", err
	}

	type result struct {
		token *oauth2.Token
		err   error
	}
	// oauth2.TokenSource.Token() has no context parameter (legacy interface limitation)
	done := make(chan result, 1)
	go func() {
		token, err := ts.Token()
		done <- result{token, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if res.err != nil {
		return "", fmt.Errorf("getting token from token source: %w", res.err)
	}
	if res.token.AccessToken == "" {
		return "", errors.New("token source returned an empty access token")
	}

	return res.token.AccessToken, nil
}

// source returns the cached token source for scopes, creating it on first use.
// Failed creations are not cached so a later call can succeed.
func (p *Provider) source(ctx context.Context, scopes []string) (oauth2.TokenSource, error) {
	key := strings.Join(scopes, " ")

	if ts, ok := p.cached(key); ok {
		return ts, nil
	}

	// Waiters give up at their own deadline while the factory call runs to completion
	created := p.creating.DoChan(key, func() (any, error) {
		if ts, ok := p.cached(key); ok {
			return ts, nil
		}

		ts, err := p.factory(context.WithoutCancel(ctx), scopes)
		if err != nil {
			return nil, fmt.Errorf("creating token source: %w", err)
		}
		ts = oauth2.ReuseTokenSource(nil, ts)

		p.mu.Lock()
		p.sources[key] = ts
		p.mu.Unlock()

		return ts, nil
	})

	select {
	case res := <-created:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(oauth2.TokenSource), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) cached(key string) (oauth2.TokenSource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts, ok := p.sources[key]
	return ts, ok
}
