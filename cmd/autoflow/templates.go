package main

import (
	"context"
	"fmt"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/config"
	"github.com/dukex/autoflow/pkg/log"
	"github.com/dukex/autoflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewTemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "Manage workflow templates",
		Commands: []*cli.Command{
			{
				Name:  "seed",
				Usage: "Upsert the templates found in a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "database-url",
						Usage:    "Database connection URL for persistence",
						Required: true,
						Sources:  cli.EnvVars("DATABASE_URL"),
					},
					&cli.StringFlag{
						Name:     "templates-path",
						Usage:    "Directory of YAML workflow templates",
						Required: true,
						Sources:  cli.EnvVars("TEMPLATES_PATH"),
					},
				},
				Action: seedTemplates,
			},
		},
	}
}

func seedTemplates(ctx context.Context, command *cli.Command) error {
	logger := log.New(command.Root().ErrWriter, command.String("log-level"), "text").With("module", "autoflow-cli")

	templates, err := config.LoadTemplates(command.String("templates-path"))
	if err != nil {
		return err
	}

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), "")
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	service := services.NewTemplates(store, services.NewDefinitions(store), logger)

	if err := service.Seed(ctx, templates); err != nil {
		return err
	}

	for _, template := range templates {
		fmt.Fprintf(command.Root().Writer, "seeded %s (%s)\n", template.ID, template.Name)
	}

	return nil
}
