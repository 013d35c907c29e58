// Package main provides the autoflow command line tool.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := NewCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewCommand() *cli.Command {
	return &cli.Command{
		Name:                  "autoflow",
		Usage:                 "Validate workflow files and manage templates",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewTemplatesCommand(),
		},
	}
}
