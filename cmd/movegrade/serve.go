package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/movegrade"
	"github.com/discochess/movegrade/fx/gormgradefx"
	"github.com/discochess/movegrade/internal/config"
	"github.com/discochess/movegrade/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the HTTP API and sweep orphaned claims in the background.

Endpoints:
  POST /api/v1/analyze-moves
  GET  /api/v1/analysis/jobs/current
  GET  /api/v1/analysis/jobs/{id}
  GET  /api/v1/game-move-analysis/{game_id}
  POST /api/v1/players/{username}
  GET  /api/v1/players/{username}
  POST /api/v1/players/{username}/fetch-and-store-games
  GET  /api/v1/players/{username}/games
  GET  /healthz
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"server.addr": "addr"})
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	app := fx.New(appOptions(cfg, log,
		fx.Invoke(registerServer),
		fx.Invoke(registerSweeper),
	))
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

type serverParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Client    *movegrade.Client
	Metrics   gormgradefx.Metrics `optional:"true"`
	Lifecycle fx.Lifecycle
}

func registerServer(p serverParams) {
	var opts []httpapi.Option
	opts = append(opts, httpapi.WithLogger(p.Logger))
	if p.Metrics != nil {
		opts = append(opts, httpapi.WithMetrics(p.Metrics))
	}
	srv := &http.Server{
		Addr:              p.Config.Server.Addr,
		Handler:           httpapi.New(p.Client, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			p.Logger.Info("listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func registerSweeper(client *movegrade.Client, lc fx.Lifecycle) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = client.RunSweeper(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
