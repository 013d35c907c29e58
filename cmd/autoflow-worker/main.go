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
	"github.com/dukex/autoflow/pkg/schedule"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "autoflow-worker",
		Usage:                 "Run workflows from domain events and schedules",
		EnableShellCompletion: true,
		Flags: slices.Concat([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.DurationFlag{
				Name:    "schedule-refresh",
				Usage:   "How often schedule-triggered workflows are reloaded",
				Value:   schedule.DefaultRefreshInterval,
				Sources: cli.EnvVars("SCHEDULE_REFRESH_INTERVAL"),
			},
		}, cmd.RuntimeFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("autoflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Autoflow worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, cmd.ConfigFromCommand("autoflow-worker", command), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			return NewWorker(workerID, runtime, command.Duration("schedule-refresh"), logger).Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
