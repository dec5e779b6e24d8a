// Package main provides the Caster API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/eventbus"
	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/progress"
	"github.com/casthq/caster/pkg/services"
	"github.com/casthq/caster/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	vault       *crypto.Vault
	cache       *progress.Cache
	uploadDir   string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	vault *crypto.Vault,
	cache *progress.Cache,
	uploadDir string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		vault:       vault,
		cache:       cache,
		uploadDir:   uploadDir,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	templateService := services.NewTemplate(a.persistence)
	executionService := services.NewExecution(a.logger, a.persistence, a.eventBus, a.cache)
	integrationService := services.NewIntegration(a.persistence, a.vault)

	handlers := web.NewAPIHandlers(templateService, executionService, integrationService, a.validate, a.uploadDir)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Caster API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.ListTemplates)
	t.Post("/", handlers.SaveTemplate)
	t.Get("/published/:logicalId", handlers.GetPublishedTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Post("/:id/publish", handlers.PublishTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)

	i := app.Group("/integrations")
	i.Get("/", handlers.ListIntegrations)
	i.Post("/", handlers.CreateIntegration)
	i.Delete("/:id", handlers.DeactivateIntegration)

	e := app.Group("/executions")
	e.Get("/", handlers.ListExecutions)
	e.Post("/", handlers.CreateExecution)
	e.Post("/validate", handlers.ValidateExecution)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/progress", handlers.GetExecutionProgress)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Get("/:id/logs", handlers.GetExecutionOutcomes)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
