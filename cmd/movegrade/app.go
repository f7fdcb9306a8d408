package main

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/discochess/movegrade"
	"github.com/discochess/movegrade/fx/gormgradefx"
	"github.com/discochess/movegrade/fx/memorygradefx"
	"github.com/discochess/movegrade/internal/config"
	"github.com/discochess/movegrade/internal/engine"
	"github.com/discochess/movegrade/internal/engine/uciengine"
)

// clientModule selects the client module for the configured store driver.
func clientModule(cfg *config.Config) fx.Option {
	if cfg.Store.Driver == config.DriverMemory {
		return fx.Options(
			fx.Provide(func(log *zap.Logger) engine.Factory {
				return uciengine.Factory(uciengine.Config{
					Path:    cfg.Engine.Path,
					Depth:   cfg.Engine.Depth,
					HashMB:  cfg.Engine.HashMB,
					Threads: cfg.Engine.Threads,
					Logger:  log.Named("engine"),
				})
			}),
			memorygradefx.Module,
		)
	}
	return gormgradefx.Module
}

// appOptions wires the configuration, logger and client.
func appOptions(cfg *config.Config, log *zap.Logger, extra ...fx.Option) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		clientModule(cfg),
		fx.Options(extra...),
	)
}

// withClient starts a client for a one-shot command and stops it when fn
// returns.
func withClient(ctx context.Context, cfg *config.Config, fn func(context.Context, *movegrade.Client) error) error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	var client *movegrade.Client
	app := fx.New(appOptions(cfg, log), fx.Populate(&client))
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting: %w", err)
	}
	defer func() {
		if err := app.Stop(context.Background()); err != nil {
			log.Warn("shutdown failed", zap.Error(err))
		}
	}()

	return fn(ctx, client)
}
