package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/rconf/internal/app"
	"github.com/florianilch/rconf/internal/observability"
	"github.com/florianilch/rconf/internal/remoteconfig"
)

// Flag names that do not map to configuration keys.
const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
	flagOutput  = "output"
	flagFile    = "file"
	flagETag    = "etag"
	flagYes     = "yes"
)

// Exit codes returned by ExitCode.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitConflict = 3
	ExitAuth     = 4
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Environ).Run(ctx, args)
}

// ExitCode maps an error returned by Execute to a process exit status. A version conflict
// gets its own status so scripts can re-read and retry.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, remoteconfig.ErrVersionConflict):
		return ExitConflict
	case errors.Is(err, remoteconfig.ErrAuth):
		return ExitAuth
	default:
		return ExitFailure
	}
}

func newRootCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "rconf",
		Usage: "Read and write Firebase Remote Config templates with ETag concurrency control",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  flagEnvFile,
				Usage: "path to a .env file; variables already set in the environment win",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigLogExporter),
			},
			&cli.StringFlag{
				Name:    "project-id",
				Aliases: []string{"p"},
				Usage:   "Firebase project ID (defaults to $FIREBASE_PROJECT_ID)",
			},
			&cli.StringFlag{
				Name:  "service--base-url",
				Usage: "Remote Config API base URL",
				Value: app.DefaultConfigServiceBaseURL,
			},
			&cli.DurationFlag{
				Name:  "service--timeout",
				Usage: "timeout per request, token acquisition included",
				Value: app.DefaultConfigServiceTimeout,
			},
			&cli.StringFlag{
				Name:  "auth--method",
				Usage: "authentication method (adc|static|oauth)",
				Value: string(app.DefaultConfigAuthMethod),
			},
			&cli.StringFlag{
				Name:  "auth--credentials-file",
				Usage: "service account key file for adc authentication",
			},
			&cli.StringFlag{
				Name:    flagOutput,
				Aliases: []string{"o"},
				Usage:   "output format (json|yaml)",
				Value:   "json",
			},
		},
		Commands: []*cli.Command{
			tokenCommand(environFunc),
			getCommand(environFunc),
			etagCommand(environFunc),
			documentCommand(environFunc),
			updateCommand(environFunc),
			forceUpdateCommand(environFunc),
			emulateCommand(environFunc),
		},
	}
}

// setup loads configuration and installs logging. The returned func flushes logs.
func setup(ctx context.Context, cmd *cli.Command, environFunc func() []string) (*app.Config, func(), error) {
	cfg, err := loadConfig(cmd.String(flagConfig), cmd.String(flagEnvFile), cmd, environFunc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.LogExporter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	flush := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
		}
	}

	return cfg, flush, nil
}

// storeAction wraps a command body that needs a configured store.
func storeAction(environFunc func() []string, run func(ctx context.Context, cmd *cli.Command, store *remoteconfig.Store) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, flush, err := setup(ctx, cmd, environFunc)
		if err != nil {
			return err
		}
		defer flush()

		application, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		return run(ctx, cmd, application.Store())
	}
}

func emulateCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "emulate",
		Usage: "run a local in-memory Remote Config server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "emulator--host",
				Usage: "emulator host",
				Value: app.DefaultConfigEmulatorHost,
			},
			&cli.IntFlag{
				Name:  "emulator--port",
				Usage: "emulator port",
				Value: app.DefaultConfigEmulatorPort,
			},
			&cli.StringFlag{
				Name:  "emulator--seed-file",
				Usage: "JSON or YAML template to preload for the project",
			},
			&cli.DurationFlag{
				Name:  "shutdown--timeout",
				Usage: "graceful shutdown timeout",
				Value: app.DefaultConfigShutdownTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, flush, err := setup(ctx, cmd, environFunc)
			if err != nil {
				return err
			}
			defer flush()

			slog.InfoContext(ctx, "starting")
			start := time.Now()

			if err := app.Serve(ctx, cfg); err != nil {
				return fmt.Errorf("emulator failed: %w", err)
			}

			slog.InfoContext(ctx, "stopped gracefully", "uptime", time.Since(start).Round(time.Second))
			return nil
		},
	}
}
