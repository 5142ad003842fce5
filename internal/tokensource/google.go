package tokensource

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/florianilch/rconf/internal/tokenstore"
)

// DefaultCredentials returns a Factory backed by Google credentials. With an empty
// credentialsFile, Application Default Credentials are used (GOOGLE_APPLICATION_CREDENTIALS,
// gcloud user credentials, or the metadata server). Otherwise credentialsFile must hold a
// service account key.
func DefaultCredentials(credentialsFile string, opts ...TokenSourceOption) Factory {
	cfg := newTokenSourceConfig(opts)

	return func(ctx context.Context, scopes []string) (oauth2.TokenSource, error) {
		ctx = cfg.oauthContext(ctx)

		if credentialsFile != "" {
			data, err := os.ReadFile(credentialsFile)
			if err != nil {
				return nil, fmt.Errorf("reading credentials file: %w", err)
			}
			jwtConfig, err := google.JWTConfigFromJSON(data, scopes...)
			if err != nil {
				return nil, fmt.Errorf("parsing service account key %s: %w", credentialsFile, err)
			}
			return jwtConfig.TokenSource(ctx), nil
		}

		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("finding default credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
}

// Static returns a Factory serving the bearer token held in store as-is. Scopes are whatever
// the token was issued with.
func Static(store tokenstore.TokenStore) Factory {
	return func(ctx context.Context, _ []string) (oauth2.TokenSource, error) {
		token, err := store.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading stored token: %w", err)
		}
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}), nil
	}
}
