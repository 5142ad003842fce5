// Package tokenstore provides persistent storage for credentials that are not managed by
// Google's own credential discovery: pre-issued bearer tokens and user refresh tokens.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Env: Read-only environment variable access (CI, containers with injected secrets)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// Refresh tokens may be rotated by the identity provider and therefore need writable storage
// (file or keyring); static bearer tokens can use any backend.
package tokenstore
