package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/rconf/internal/app"
	"github.com/florianilch/rconf/internal/remoteconfig"
)

// envPrefix is stripped from environment variables during config loading (e.g., RCONF_SERVICE__BASE_URL → service.base_url)
const envPrefix = "RCONF_"

// loadConfig loads application configuration from various sources with precedence:
// config file → env file → environment variables → CLI flags → defaults
func loadConfig(configPath, envFile string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	// 1. Load from config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// 2. Merge the env file underneath the real environment
	if envFile != "" {
		fileEnv, err := readEnvFile(envFile)
		if err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
		environFunc = withFallbackEnv(environFunc, fileEnv)
	}

	// 3. Load from environment variables; the prefixed form wins over FIREBASE_PROJECT_ID
	projectProvider := env.Provider(".", env.Opt{
		Prefix: remoteconfig.ProjectIDEnv,
		TransformFunc: func(key, value string) (string, any) {
			if key != remoteconfig.ProjectIDEnv || value == "" {
				return "", nil
			}
			return "project_id", value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(projectProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	// 4. Load from CLI flags if provided
	if cmd != nil {
		flagValues := extractAndTransformFlags(cmd)
		if err := k.Load(confmap.Provider(flagValues, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// readEnvFile parses KEY=VALUE lines from a dotenv file.
func readEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	parsed, err := dotenv.Parser().Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	values := make(map[string]string, len(parsed))
	for key, value := range parsed {
		values[key] = fmt.Sprint(value)
	}
	return values, nil
}

// withFallbackEnv appends fallback variables that the wrapped environment does not define.
func withFallbackEnv(environFunc func() []string, fallback map[string]string) func() []string {
	return func() []string {
		environ := environFunc()

		defined := make(map[string]struct{}, len(environ))
		for _, kv := range environ {
			key, _, _ := strings.Cut(kv, "=")
			defined[key] = struct{}{}
		}

		for key, value := range fallback {
			if _, ok := defined[key]; !ok {
				environ = append(environ, key+"="+value)
			}
		}
		return environ
	}
}

// extractAndTransformFlags transforms CLI flag names to match config structure.
// Includes parent flags. Examples: --service--base-url → service.base_url, --log-level → log_level
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		// Skip unset flags to preserve precedence from earlier config sources
		if !cmd.IsSet(name) {
			continue
		}
		if _, ok := commandOnlyFlags[name]; ok {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}

// commandOnlyFlags steer a single command and never map to configuration.
var commandOnlyFlags = map[string]struct{}{
	flagConfig:  {},
	flagEnvFile: {},
	flagOutput:  {},
	flagFile:    {},
	flagETag:    {},
	flagYes:     {},
}
