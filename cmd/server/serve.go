package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/container"
	httpapi "github.com/sust-cse/approval-engine/internal/interfaces/http"
	"github.com/sust-cse/approval-engine/pkg/telemetry"
	"github.com/sust-cse/approval-engine/pkg/utils"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withContainer(ctx, command, func(rt *runtime, c *container.Container) error {
				rt.logger.Info("Starting approval engine",
					zap.String("version", version),
					zap.Int("port", rt.cfg.Server.Port))

				shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
					Enabled:     rt.cfg.Tracing.Enabled,
					Endpoint:    rt.cfg.Tracing.Endpoint,
					Insecure:    rt.cfg.Tracing.Insecure,
					ServiceName: rt.cfg.Tracing.ServiceName,
				})
				if err != nil {
					return fmt.Errorf("failed to set up tracing: %w", err)
				}
				defer func() {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdownTracing(flushCtx); err != nil {
						rt.logger.Error("Failed to flush traces", zap.Error(err))
					}
				}()

				server := httpapi.NewServer(c.HTTPServerConfig(), c.HTTPServices(), utils.NewKVLogger(rt.logger))
				if err := server.Start(ctx); err != nil {
					return err
				}

				rt.logger.Info("Server exited successfully")
				return nil
			})
		},
	}
}
