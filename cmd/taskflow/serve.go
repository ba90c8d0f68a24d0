package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/taskflow/pkg/cmd"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 10 * time.Second
)

var ErrNoPipelines = errors.New("at least one pipeline file is required")

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Host pipeline definitions behind an HTTP API",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Pipeline definition file (YAML or JSON), repeatable",
				Sources: cli.EnvVars("PIPELINE_FILE"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("taskflow").With("action", "serve")

			files := command.StringSlice("file")
			if len(files) == 0 {
				return ErrNoPipelines
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := newEnvironment(ctx, command, logger)
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			catalog := web.NewCatalog()

			for _, file := range files {
				p, def, execCtx, err := env.load(ctx, file)
				if err != nil {
					return err
				}

				if err := catalog.Add(p, def.Description, execCtx); err != nil {
					return err
				}

				logger.InfoContext(ctx, "Hosting pipeline", "pipeline", p.Name(), "file", file)
			}

			if env.eventBus != nil {
				if err := cmd.LogEvents(ctx, env.eventBus, logger); err != nil {
					return err
				}
			}

			return NewAPI(logger, catalog, env.registry).Start(ctx, command.Int("port"))
		},
	}
}

type API struct {
	logger   *slog.Logger
	catalog  *web.Catalog
	registry *registry.Registry
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, catalog *web.Catalog, registry *registry.Registry) *API {
	return &API{
		logger:   logger,
		catalog:  catalog,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.catalog, a.validate, a.registry)

	app := fiber.New()
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Taskflow API")
	})

	handlers.Register(app)

	return app
}

// Start serves until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	}
}
