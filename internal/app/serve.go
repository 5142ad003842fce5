package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/rconf/internal/docfile"
	"github.com/florianilch/rconf/internal/emulator"
)

// Serve runs the local emulator and blocks until ctx is cancelled or the server fails.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func Serve(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var opts []emulator.Option
	if cfg.Emulator.SeedFile != "" {
		doc, err := docfile.Load(cfg.Emulator.SeedFile)
		if err != nil {
			return fmt.Errorf("loading seed template: %w", err)
		}
		opts = append(opts, emulator.WithTemplate(cfg.Emulator.ProjectID, doc))
	}

	emu, err := emulator.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create emulator: %w", err)
	}

	return serve(ctx, cfg, emu)
}

func serve(ctx context.Context, cfg *Config, emu *emulator.Emulator) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := cfg.Emulator.Host + ":" + strconv.FormatUint(uint64(cfg.Emulator.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting emulator", "address", address)
	emuErrCh, err := emu.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("emulator startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, emu.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-emuErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "emulator runtime error", "error", err)
				return fmt.Errorf("emulator: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "emulator ready", "address", emu.Addr(), "base_url", "http://"+emu.Addr())

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("emulator stopped")
	return nil
}
