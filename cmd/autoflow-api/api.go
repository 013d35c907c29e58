// Package main provides the autoflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const readinessTimeout = 2 * time.Second

type API struct {
	logger   *slog.Logger
	runtime  *cmd.Runtime
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, runtime *cmd.Runtime) *API {
	return &API{
		logger:   logger,
		runtime:  runtime,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.runtime.Definitions,
		a.runtime.Executions,
		a.runtime.Templates,
		a.runtime.Dispatcher,
		a.runtime.Executor,
		a.runtime.Registry,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: a.ready,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Autoflow API")
	})

	handlers.Mount(app)

	return app
}

func (a *API) ready(c fiber.Ctx) bool {
	ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
	defer cancel()

	err := a.runtime.Persistence.HealthCheck(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "readiness probe failed", "error", err)

		return false
	}

	return true
}

// Start resumes delayed executions in the background and serves HTTP until
// the listener fails or ctx ends.
func (a *API) Start(ctx context.Context, port int) error {
	a.runtime.Resumer.Start(ctx)

	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shutdown HTTP server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
