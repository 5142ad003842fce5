package tokenstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to a token held in an environment variable.
type EnvStore struct {
	envKey    string
	lookupEnv func(string) (string, bool)
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
// Returns error if the variable name is empty or not set in the environment.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	return &EnvStore{
		envKey:    envKey,
		lookupEnv: os.LookupEnv,
	}, nil
}

// Read returns the token from the environment variable, trimmed of whitespace.
func (e *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, _ := e.lookupEnv(e.envKey)
	token := strings.TrimSpace(value)
	if token == "" {
		return "", fmt.Errorf("%w: environment variable %s is empty", ErrNotFound, e.envKey)
	}
	return token, nil
}

// Write always fails: environment variables are read-only.
func (e *EnvStore) Write(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}
