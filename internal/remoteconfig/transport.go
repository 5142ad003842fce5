package remoteconfig

import (
	"context"
	"net/http"
)

// TokenProvider supplies bearer credentials for the given OAuth scopes.
type TokenProvider interface {
	Token(ctx context.Context, scopes []string) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context, scopes []string) (string, error)

// Token calls f.
func (f TokenProviderFunc) Token(ctx context.Context, scopes []string) (string, error) {
	return f(ctx, scopes)
}

// Request is a single HTTP request issued by the store.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the raw result of a Request. Body is already decompressed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs HTTP requests. Non-2xx statuses are returned as responses, not errors.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
