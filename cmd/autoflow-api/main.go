package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "autoflow-api",
		Usage:                 "Manage workflows and receive triggers over HTTP",
		EnableShellCompletion: true,
		Flags: slices.Concat([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.RuntimeFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Autoflow API")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, cmd.ConfigFromCommand("autoflow-api", command), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			err = NewAPI(logger, runtime).Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return err
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
