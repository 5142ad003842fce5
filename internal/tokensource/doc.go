// Package tokensource provides Google OAuth2 token acquisition for the Remote Config API.
//
// Three kinds of sources are supported, all exposed as oauth2.TokenSource factories:
//   - DefaultCredentials: Application Default Credentials, or an explicit service account key file
//   - Static: a pre-issued bearer token held in a tokenstore.TokenStore
//   - NewTokenSource: a Google user refresh token, refreshed against google.Endpoint
//
// # Provider
//
// Provider adapts a factory to remoteconfig.TokenProvider, creating one cached token source per
// scope set on first use:
//
//	p, err := tokensource.NewProvider(tokensource.DefaultCredentials(""))
//	token, err := p.Token(ctx, []string{remoteconfig.Scope})
//
// # Custom Base Transport
//
// Configure a custom base transport for token requests (e.g., for proxies or custom timeouts):
//
//	ts := tokensource.NewTokenSource(
//		refreshToken,
//		credentials,
//		scopes,
//		tokensource.WithTransport(customTransport),
//	)
package tokensource
