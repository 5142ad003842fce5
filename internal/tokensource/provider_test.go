package tokensource_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/florianilch/rconf/internal/remoteconfig"
	"github.com/florianilch/rconf/internal/tokensource"
	"github.com/florianilch/rconf/internal/tokenstore"
)

// memoryStore is an in-memory tokenstore.TokenStore.
type memoryStore struct {
	token string
	err   error
}

func (m *memoryStore) Read(context.Context) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.token, nil
}

func (m *memoryStore) Write(_ context.Context, token string) error {
	m.token = token
	return nil
}

func TestNewProvider_RequiresFactory(t *testing.T) {
	_, err := tokensource.NewProvider(nil)
	assert.Error(t, err)
}

func TestProvider_CachesSourcePerScopeSet(t *testing.T) {
	created := map[string]int{}
	factory := func(_ context.Context, scopes []string) (oauth2.TokenSource, error) {
		created[scopes[0]]++
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-for-" + scopes[0]}), nil
	}

	p, err := tokensource.NewProvider(factory)
	require.NoError(t, err)

	for range 3 {
		token, err := p.Token(context.Background(), []string{"scope-a"})
		require.NoError(t, err)
		assert.Equal(t, "token-for-scope-a", token)
	}

	token, err := p.Token(context.Background(), []string{"scope-b"})
	require.NoError(t, err)
	assert.Equal(t, "token-for-scope-b", token)

	assert.Equal(t, map[string]int{"scope-a": 1, "scope-b": 1}, created)
}

func TestProvider_FactoryErrorIsNotCached(t *testing.T) {
	calls := 0
	factory := func(context.Context, []string) (oauth2.TokenSource, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("no credentials yet")
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "late"}), nil
	}

	p, err := tokensource.NewProvider(factory)
	require.NoError(t, err)

	_, err = p.Token(context.Background(), []string{"s"})
	require.Error(t, err)

	token, err := p.Token(context.Background(), []string{"s"})
	require.NoError(t, err)
	assert.Equal(t, "late", token)
}

func TestProvider_EmptyAccessToken(t *testing.T) {
	p, err := tokensource.NewProvider(func(context.Context, []string) (oauth2.TokenSource, error) {
		return oauth2.StaticTokenSource(&oauth2.Token{}), nil
	})
	require.NoError(t, err)

	_, err = p.Token(context.Background(), []string{"s"})
	assert.Error(t, err)
}

func TestProvider_CancelledContext(t *testing.T) {
	called := false
	p, err := tokensource.NewProvider(func(context.Context, []string) (oauth2.TokenSource, error) {
		called = true
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"}), nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Token(ctx, []string{"s"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestProvider_FactoryContextOutlivesCaller(t *testing.T) {
	var factoryCtx context.Context
	p, err := tokensource.NewProvider(func(ctx context.Context, _ []string) (oauth2.TokenSource, error) {
		factoryCtx = ctx
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"}), nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = p.Token(ctx, []string{"s"})
	require.NoError(t, err)
	cancel()

	assert.NoError(t, factoryCtx.Err())
}

func TestStatic(t *testing.T) {
	p, err := tokensource.NewProvider(tokensource.Static(&memoryStore{token: "ya29.static"}))
	require.NoError(t, err)

	token, err := p.Token(context.Background(), []string{"any"})
	require.NoError(t, err)
	assert.Equal(t, "ya29.static", token)
}

func TestStatic_StoreError(t *testing.T) {
	p, err := tokensource.NewProvider(tokensource.Static(&memoryStore{err: errors.New("keyring locked")}))
	require.NoError(t, err)

	_, err = p.Token(context.Background(), []string{"any"})
	assert.ErrorContains(t, err, "keyring locked")
}

// blockingSource hands out a token only after release is closed.
type blockingSource struct {
	release chan struct{}
}

func (b *blockingSource) Token() (*oauth2.Token, error) {
	<-b.release
	return &oauth2.Token{AccessToken: "late"}, nil
}

// countingTransport answers every request with an empty template.
type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) Do(context.Context, *remoteconfig.Request) (*remoteconfig.Response, error) {
	c.calls.Add(1)
	return &remoteconfig.Response{StatusCode: http.StatusOK, Header: http.Header{"Etag": {"v1"}}, Body: []byte(`{}`)}, nil
}

func TestProvider_SlowRefreshHonoursStoreTimeout(t *testing.T) {
	src := &blockingSource{release: make(chan struct{})}
	t.Cleanup(func() { close(src.release) })

	p, err := tokensource.NewProvider(func(context.Context, []string) (oauth2.TokenSource, error) {
		return src, nil
	})
	require.NoError(t, err)

	transport := &countingTransport{}
	store, err := remoteconfig.New("demo-project", transport, p, remoteconfig.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = store.Read(context.Background())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, remoteconfig.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)
	assert.Zero(t, transport.calls.Load())
}

func TestProvider_SlowFactoryDoesNotBlockOtherScopes(t *testing.T) {
	release := make(chan struct{})
	var slowCreations atomic.Int32

	p, err := tokensource.NewProvider(func(_ context.Context, scopes []string) (oauth2.TokenSource, error) {
		if scopes[0] == "slow" {
			slowCreations.Add(1)
			<-release
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-for-" + scopes[0]}), nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Token(ctx, []string{"slow"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The slow factory is still running; other scope sets are served meanwhile
	token, err := p.Token(context.Background(), []string{"fast"})
	require.NoError(t, err)
	assert.Equal(t, "token-for-fast", token)

	close(release)

	require.Eventually(t, func() bool {
		token, err := p.Token(context.Background(), []string{"slow"})
		return err == nil && token == "token-for-slow"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), slowCreations.Load(), "the abandoned creation is reused, not repeated")
}

func TestStatic_EmptyKeyringSurfacesAsAuthError(t *testing.T) {
	keyring.MockInit()

	store, err := tokenstore.NewKeyringStore(tokenstore.DefaultKeyringService, "nobody")
	require.NoError(t, err)
	p, err := tokensource.NewProvider(tokensource.Static(store))
	require.NoError(t, err)

	transport := &countingTransport{}
	rc, err := remoteconfig.New("demo-project", transport, p)
	require.NoError(t, err)

	_, err = rc.Read(context.Background())
	require.ErrorIs(t, err, remoteconfig.ErrAuth)
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
	assert.Zero(t, transport.calls.Load())
}
