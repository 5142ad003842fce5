package tokenstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when the backend holds no token, or only whitespace.
	ErrNotFound = errors.New("no token stored")

	// ErrReadOnly is returned by Write on backends that cannot persist tokens.
	ErrReadOnly = errors.New("token store is read-only")
)

// TokenStore reads and writes a single credential string.
type TokenStore interface {
	// Read returns the stored token. Returns an error wrapping ErrNotFound if it is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the token. Returns ErrReadOnly for backends that cannot be written.
	Write(ctx context.Context, token string) error
}
