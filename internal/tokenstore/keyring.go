package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service name tokens are stored under.
const DefaultKeyringService = "rconf-token"

// KeyringStore keeps a token in the OS credential store (macOS Keychain, Windows Credential
// Manager, Secret Service on Linux), addressed by service and user.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore. Nothing is read until the first Read.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	service, user = strings.TrimSpace(service), strings.TrimSpace(user)
	if service == "" || user == "" {
		return nil, fmt.Errorf("keyring service and user are required (got %q, %q)", service, user)
	}

	return &KeyringStore{service: service, user: user}, nil
}

func (k *KeyringStore) entry() string {
	return k.service + "/" + k.user
}

// Read returns the stored token, trimmed. A missing or blank entry wraps ErrNotFound.
func (k *KeyringStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret, err := keyring.Get(k.service, k.user)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("%w: keyring entry %s", ErrNotFound, k.entry())
	case err != nil:
		return "", fmt.Errorf("reading keyring entry %s: %w", k.entry(), err)
	}

	token := strings.TrimSpace(secret)
	if token == "" {
		return "", fmt.Errorf("%w: keyring entry %s is blank", ErrNotFound, k.entry())
	}
	return token, nil
}

// Write replaces the stored token. Blank tokens are refused.
func (k *KeyringStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to write empty token to keyring entry %s", k.entry())
	}

	if err := keyring.Set(k.service, k.user, token); err != nil {
		if errors.Is(err, keyring.ErrSetDataTooBig) {
			return fmt.Errorf("token too large for keyring entry %s: %w", k.entry(), err)
		}
		return fmt.Errorf("writing keyring entry %s: %w", k.entry(), err)
	}
	return nil
}
