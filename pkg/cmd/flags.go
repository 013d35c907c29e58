package cmd

import (
	"github.com/dukex/autoflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

// RuntimeFlags are the flags every engine process accepts.
func RuntimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://path or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "continuation-store",
			Usage:   "Store for delayed executions (redis://...); defaults to the database",
			Sources: cli.EnvVars("CONTINUATION_STORE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "templates-path",
			Usage:   "Directory of YAML workflow templates to seed on startup",
			Sources: cli.EnvVars("TEMPLATES_PATH"),
		},
		&cli.DurationFlag{
			Name:    "resume-interval",
			Usage:   "How often delayed executions are checked for resumption",
			Value:   workflow.DefaultResumeInterval,
			Sources: cli.EnvVars("RESUME_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "dispatch-concurrency",
			Usage:   "Maximum workflows started in parallel for one stimulus",
			Value:   workflow.DefaultDispatchConcurrency,
			Sources: cli.EnvVars("DISPATCH_CONCURRENCY"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// ConfigFromCommand reads the runtime flags of command.
func ConfigFromCommand(serviceName string, command *cli.Command) Config {
	return Config{
		ServiceName:         serviceName,
		DatabaseURL:         command.String("database-url"),
		ContinuationURL:     command.String("continuation-store"),
		EventBus:            command.String("event-bus"),
		KafkaBrokers:        command.String("kafka-brokers"),
		OtelEnabled:         command.Bool("otel-enabled"),
		DispatchConcurrency: command.Int("dispatch-concurrency"),
		ResumeInterval:      command.Duration("resume-interval"),
		TemplatesPath:       command.String("templates-path"),
	}
}
