package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/autoflow/pkg/config"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var ErrNoFiles = errors.New("at least one definition file is required")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate workflow definition files",
		ArgsUsage: "<file.yaml|file.json>...",
		Action: func(ctx context.Context, command *cli.Command) error {
			paths := command.Args().Slice()
			if len(paths) == 0 {
				return ErrNoFiles
			}

			var errs []error

			for _, path := range paths {
				err := validateFile(path)
				if err != nil {
					fmt.Fprintf(command.Root().Writer, "%s: invalid: %v\n", path, err)
					errs = append(errs, fmt.Errorf("%s: %w", path, err))

					continue
				}

				fmt.Fprintf(command.Root().Writer, "%s: ok\n", path)
			}

			return errors.Join(errs...)
		},
	}
}

// validateFile checks a definition file the way the API checks a create
// request. Files usually omit the owner and status, so neutral ones are
// assumed.
func validateFile(path string) error {
	definition, err := config.LoadDefinitionFile(path)
	if err != nil {
		return err
	}

	if definition.OwnerID == "" {
		definition.OwnerID = "cli"
	}

	if definition.Status == "" {
		definition.Status = models.DefinitionStatusDraft
	}

	return services.ValidateDefinition(definition)
}
