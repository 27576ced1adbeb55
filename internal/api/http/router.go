package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Incidents *handlers.IncidentsHandler
	Units     *handlers.UnitsHandler
	Queue     *handlers.QueueHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	incidents := app.Group("/incidents")
	incidents.Post("", cfg.Incidents.SubmitReport)
	incidents.Get("", cfg.Incidents.ListIncidents)
	incidents.Get("/:id", cfg.Incidents.GetIncident)
	incidents.Get("/:id/allocation", cfg.Incidents.GetAllocation)
	incidents.Post("/:id/reprioritize", cfg.Incidents.Reprioritize)
	incidents.Post("/:id/resolve", cfg.Incidents.Resolve)
	incidents.Post("/:id/cancel", cfg.Incidents.Cancel)

	units := app.Group("/units")
	units.Post("", cfg.Units.RegisterUnit)
	units.Get("", cfg.Units.ListUnits)
	units.Get("/:id", cfg.Units.GetUnit)
	units.Post("/:id/status", cfg.Units.UpdateStatus)
	units.Post("/:id/reinstate", cfg.Units.Reinstate)

	app.Get("/queue", cfg.Queue.GetQueue)
	app.Get("/stats", cfg.Queue.GetStats)
}
