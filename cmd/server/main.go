package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/config"
	"github.com/sust-cse/approval-engine/internal/container"
	"github.com/sust-cse/approval-engine/pkg/utils"
)

const version = "1.0.0"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "approval-engine",
		Usage:                 "Multi-stage approval workflows with public verification codes",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file (empty to use defaults and environment only)",
				Value:   "configs/config.yaml",
				Sources: cli.EnvVars("APPROVAL_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newMigrateCommand(),
			newIdentitiesCommand(),
			newSignaturesCommand(),
			newInspectCommand(),
			newVerifyCommand(),
		},
	}
}

// runtime is the loaded configuration plus the process logger
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadRuntime(command *cli.Command) (*runtime, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger}, nil
}

// withContainer starts a container for the duration of fn
func withContainer(ctx context.Context, command *cli.Command, fn func(*runtime, *container.Container) error) error {
	rt, err := loadRuntime(command)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	c, err := container.NewContainer(rt.cfg.ToContainerConfig(), rt.logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			rt.logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	return fn(rt, c)
}
