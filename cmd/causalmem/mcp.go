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
	"github.com/causalmem/causalmem/internal/mcpserver"
	"github.com/causalmem/causalmem/internal/telemetry"
	"github.com/causalmem/causalmem/internal/version"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server (stdio, or HTTP+SSE with --port)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if mcpPort != 0 {
			cfg.Port = mcpPort
		}

		log, err := newLogger()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := telemetry.Init(ctx, "causalmem-mcp", version.Version); err != nil {
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

		return mcpserver.New(eng, cfg, log).Run(ctx)
	},
}

func init() {
	mcpCmd.Flags().IntVar(&mcpPort, "port", 0, "HTTP port for SSE transport (default: stdio)")
}
