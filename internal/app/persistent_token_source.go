package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/rconf/internal/tokenstore"
)

// persistTimeout bounds writing a rotated refresh token back to the store.
const persistTimeout = 10 * time.Second

// RefreshFunc creates an oauth2.TokenSource from a stored refresh token.
type RefreshFunc func(refreshToken string) oauth2.TokenSource

// PersistentTokenSource reads a refresh token from a TokenStore on first use and writes
// rotated refresh tokens back, so later runs start from the newest one.
type PersistentTokenSource struct {
	refresh RefreshFunc
	store   tokenstore.TokenStore

	source func() (oauth2.TokenSource, error)

	persisted atomic.Pointer[string]
	writeMu   sync.Mutex
}

// Compile-time check to ensure PersistentTokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*PersistentTokenSource)(nil)

// NewPersistentTokenSource creates a PersistentTokenSource.
// No I/O is performed until the first Token call.
func NewPersistentTokenSource(refresh RefreshFunc, store tokenstore.TokenStore) (*PersistentTokenSource, error) {
	if refresh == nil {
		return nil, fmt.Errorf("missing refresh func")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	p := &PersistentTokenSource{
		refresh: refresh,
		store:   store,
	}
	p.source = sync.OnceValues(p.load)

	return p, nil
}

// load reads the stored refresh token once. A failed read is final for this instance.
func (p *PersistentTokenSource) load() (oauth2.TokenSource, error) {
	// oauth2.TokenSource.Token() carries no context; the read is local I/O
	refreshToken, err := p.store.Read(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading stored refresh token: %w", err)
	}

	// Known-persisted value, so the first Token call does not write it back again
	p.persisted.Store(&refreshToken)

	return p.refresh(refreshToken), nil
}

// Token returns a valid token and persists its refresh token if the server rotated it.
func (p *PersistentTokenSource) Token() (*oauth2.Token, error) {
	ts, err := p.source()
	if err != nil {
		return nil, err
	}

	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}

	if token.RefreshToken != "" && token.RefreshToken != p.lastPersisted() {
		p.persist(token.RefreshToken)
	}

	return token, nil
}

func (p *PersistentTokenSource) lastPersisted() string {
	if last := p.persisted.Load(); last != nil {
		return *last
	}
	return ""
}

// persist writes refreshToken to the store. Failures are logged, not returned: the access
// token is still usable and the write is retried on the next Token call.
func (p *PersistentTokenSource) persist(refreshToken string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// Another caller may have persisted the same value while we waited
	if refreshToken == p.lastPersisted() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.store.Write(ctx, refreshToken); err != nil {
		slog.ErrorContext(ctx, "failed to persist rotated refresh token", "error", err)
		return
	}
	p.persisted.Store(&refreshToken)
	slog.DebugContext(ctx, "persisted rotated refresh token")
}
