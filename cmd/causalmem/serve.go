package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/config"
	"github.com/causalmem/causalmem/internal/server"
	"github.com/causalmem/causalmem/internal/telemetry"
	"github.com/causalmem/causalmem/internal/version"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Port = servePort
		}
		if cfg.Port == 0 {
			cfg.Port = 8000
		}

		log, err := newLogger()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := telemetry.Init(ctx, "causalmem", version.Version); err != nil {
			log.Warn("telemetry disabled", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				log.Warn("telemetry shutdown", zap.Error(err))
			}
		}()

		eng, err := buildEngine(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := eng.Close(); err != nil {
				log.Error("closing engine", zap.Error(err))
			}
		}()

		srv := server.New(eng, cfg, log)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case <-ctx.Done():
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (default: $PORT or 8000)")
}
