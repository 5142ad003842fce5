package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/rconf/internal/observability"
	"github.com/florianilch/rconf/internal/remoteconfig"
	"github.com/florianilch/rconf/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for stored tokens.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// AuthenticationMethod represents the different ways of obtaining an access token.
type AuthenticationMethod string

const (
	// AuthenticationMethodADC uses Google Application Default Credentials or a service account key.
	AuthenticationMethodADC AuthenticationMethod = "adc"
	// AuthenticationMethodStatic sends a stored access token as-is.
	AuthenticationMethodStatic AuthenticationMethod = "static"
	// AuthenticationMethodOAuth exchanges a stored Google refresh token for access tokens.
	AuthenticationMethodOAuth AuthenticationMethod = "oauth"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigLogExporter     = observability.ExporterNone
	DefaultConfigServiceBaseURL  = remoteconfig.DefaultBaseURL
	DefaultConfigServiceTimeout  = remoteconfig.DefaultTimeout
	DefaultConfigAuthMethod      = AuthenticationMethodADC
	DefaultConfigAuthStorage     = TokenStorageTypeFile
	DefaultConfigEmulatorHost    = "127.0.0.1"
	DefaultConfigEmulatorPort    = 9300
	DefaultConfigShutdownTimeout = 5 * time.Second
)

// ServiceConfig describes the Remote Config API endpoint and client behaviour.
type ServiceConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// Timeout bounds every store call, token acquisition included.
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" validate:"gte=0"`
	Burst             int     `json:"burst" validate:"gte=0"`
	UserAgent         string  `json:"user_agent,omitempty"`
}

// AuthConfig represents the configuration for obtaining access tokens.
// Describes how to construct TokenStore and token source components.
type AuthConfig struct {
	// Authentication method - how an access token is obtained
	Method AuthenticationMethod `json:"method" validate:"required,oneof=adc static oauth"`

	// For adc: optional service account key; empty means Application Default Credentials
	CredentialsFile string `json:"credentials_file,omitempty"`

	// Storage configuration for static and oauth - where the stored token comes from
	Storage TokenStorageType `json:"storage,omitempty" validate:"omitempty,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier

	// OAuth client the refresh token was issued to
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// usesTokenStore reports whether the method reads its credential from a TokenStore.
func (a *AuthConfig) usesTokenStore() bool {
	return a.Method == AuthenticationMethodStatic || a.Method == AuthenticationMethodOAuth
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(a.EnvKey)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(tokenstore.DefaultKeyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// EmulatorConfig holds settings for the local emulator.
type EmulatorConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
	// SeedFile preloads the template of ProjectID from a JSON or YAML file.
	SeedFile  string `json:"seed_file,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level             `json:"log_level"`
	LogFormat   LogFormat              `json:"log_format" validate:"oneof=text json"`
	LogExporter observability.Exporter `json:"log_exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`

	// ProjectID selects the Firebase project. Empty falls back to FIREBASE_PROJECT_ID when the
	// store is built.
	ProjectID string `json:"project_id,omitempty"`

	Service  ServiceConfig  `json:"service"`
	Auth     AuthConfig     `json:"auth"`
	Emulator EmulatorConfig `json:"emulator"`
	Shutdown ShutdownConfig `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = DefaultConfigServiceBaseURL
	}
	if c.Service.Timeout == 0 {
		c.Service.Timeout = DefaultConfigServiceTimeout
	}
	if c.Service.RequestsPerSecond > 0 && c.Service.Burst == 0 {
		c.Service.Burst = 1
	}
	if c.Auth.Method == "" {
		c.Auth.Method = DefaultConfigAuthMethod
	}
	if c.Emulator.Host == "" {
		c.Emulator.Host = DefaultConfigEmulatorHost
	}
	if c.Emulator.Port == 0 {
		c.Emulator.Port = DefaultConfigEmulatorPort
	}
	if c.Emulator.ProjectID == "" {
		c.Emulator.ProjectID = c.ProjectID
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	if !c.Auth.usesTokenStore() {
		return nil
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "rconf", "token")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Emulator.SeedFile != "" && c.Emulator.ProjectID == "" {
		return errors.New("emulator.seed_file requires emulator.project_id or project_id")
	}

	if !c.Auth.usesTokenStore() {
		return nil
	}

	if c.Auth.Storage == "" {
		return fmt.Errorf("auth.storage required for %s authentication", c.Auth.Method)
	}

	if c.Auth.Method == AuthenticationMethodOAuth {
		// Rotated refresh tokens are written back (env is read-only)
		if c.Auth.Storage == TokenStorageTypeEnv {
			return errors.New("oauth authentication requires writable storage, env is read-only")
		}
		if c.Auth.ClientID == "" {
			return errors.New("auth.client_id required for oauth authentication")
		}
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
