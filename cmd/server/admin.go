package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/container"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/migrations"
	"github.com/sust-cse/approval-engine/pkg/database"
)

// identityFile is the YAML document accepted by "identities import"
type identityFile struct {
	Identities []entity.Identity `yaml:"identities"`
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := loadRuntime(command)
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Sync() }()

			db, err := database.New(database.Config{
				Path:        rt.cfg.Database.Path,
				BusyTimeout: rt.cfg.Database.BusyTimeout,
			}, rt.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.NewMigrator(db, rt.logger).Run(migrations.FS)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func newIdentitiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "identities",
		Usage: "Manage the identity directory snapshot",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Upsert identities from a YAML file",
				ArgsUsage: "<file.yaml>",
				Action: func(ctx context.Context, command *cli.Command) error {
					path := command.Args().First()
					if path == "" {
						return fmt.Errorf("identity file is required")
					}

					identities, err := readIdentityFile(path)
					if err != nil {
						return err
					}

					return withContainer(ctx, command, func(rt *runtime, c *container.Container) error {
						count, err := importIdentities(ctx, c.Repositories().Identity, identities)
						if err != nil {
							return err
						}
						rt.logger.Info("Identities imported", zap.Int("count", count))
						fmt.Printf("Imported %d identities\n", count)
						return nil
					})
				},
			},
		},
	}
}

// readIdentityFile parses an identity snapshot and rejects entries without an id
func readIdentityFile(path string) ([]entity.Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var file identityFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, identity := range file.Identities {
		if strings.TrimSpace(identity.ID) == "" {
			return nil, fmt.Errorf("identity #%d has no id", i+1)
		}
	}
	return file.Identities, nil
}

func importIdentities(ctx context.Context, repo port.IdentityRepository, identities []entity.Identity) (int, error) {
	for i := range identities {
		if err := repo.Upsert(ctx, &identities[i]); err != nil {
			return i, fmt.Errorf("failed to import %s: %w", identities[i].ID, err)
		}
	}
	return len(identities), nil
}

func newSignaturesCommand() *cli.Command {
	return &cli.Command{
		Name:  "signatures",
		Usage: "Manage reviewer signature images",
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Store a signature image for an identity",
				ArgsUsage: "<identity-id> <file>",
				Action: func(ctx context.Context, command *cli.Command) error {
					if command.Args().Len() != 2 {
						return fmt.Errorf("usage: signatures upload <identity-id> <file>")
					}
					identityID, path := command.Args().Get(0), command.Args().Get(1)

					content, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}

					return withContainer(ctx, command, func(rt *runtime, c *container.Container) error {
						store := c.SignatureStore()
						if store == nil {
							return fmt.Errorf("signatures backend is disabled")
						}
						ref, err := store.Save(ctx, identityID, content)
						if err != nil {
							return err
						}
						fmt.Printf("Stored signature %s\n", ref)
						return nil
					})
				},
			},
		},
	}
}

func newInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print an instance with its trail",
		ArgsUsage: "<instance-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format (yaml or json)",
				Value:   "yaml",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return fmt.Errorf("instance id is required")
			}
			return withContainer(ctx, command, func(rt *runtime, c *container.Container) error {
				instance, err := c.Services().Queries.GetInstance(ctx, id)
				if err != nil {
					return err
				}
				if command.String("output") == "json" {
					return printJSON(os.Stdout, instance)
				}
				return printYAML(os.Stdout, instance)
			})
		},
	}
}

func newVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Resolve a verification code to its public view",
		ArgsUsage: "<code>",
		Action: func(ctx context.Context, command *cli.Command) error {
			code := command.Args().First()
			if code == "" {
				return fmt.Errorf("verification code is required")
			}
			return withContainer(ctx, command, func(rt *runtime, c *container.Container) error {
				view, err := c.Services().Verification.Lookup(ctx, code)
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, view)
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printYAML renders v through its JSON form so field names match the API
func printYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return encoder.Close()
}
