package controller

import (
	"github.com/gofiber/fiber/v2"
)

type IHealthController interface {
	RegisterRoutes(app fiber.Router)
	Health(ctx *fiber.Ctx) error
}

type healthController struct {
	historyConfigured bool
}

func NewHealthController(historyConfigured bool) IHealthController {
	return &healthController{historyConfigured: historyConfigured}
}

func (c *healthController) RegisterRoutes(app fiber.Router) {
	app.Get("/health", c.Health)
}

// Health never touches upstream dependencies.
func (c *healthController) Health(ctx *fiber.Ctx) error {
	history := "unconfigured"
	if c.historyConfigured {
		history = "configured"
	}
	return ctx.JSON(fiber.Map{
		"status":  "healthy",
		"history": history,
	})
}
