package webui

import (
	"net/http"

	"github.com/blaxing/gateway/core/registry"
	fiber "github.com/gofiber/fiber/v2"
)

func (a *App) Health() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "blaxing-gateway",
			"mode":    a.config.Mode,
			"dry_run": a.config.Dispatcher.DryRun(),
		})
	}
}

func (a *App) ListAgents() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agents, err := a.config.Registry.List(c.Context(), callOpts(c))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{
			"agents": agents,
			"count":  len(agents),
		})
	}
}

func (a *App) RegisterAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var in registry.RegisterInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		rec, err := a.config.Registry.Register(c.Context(), in, callOpts(c))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"status": "registered",
			"state":  rec.State,
			"agent":  rec,
		})
	}
}

func (a *App) ActivateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		rec, err := a.config.Registry.Activate(c.Context(), c.Params("id"), callOpts(c))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{
			"agent_id": rec.AgentID,
			"state":    rec.State,
			"agent":    rec,
		})
	}
}

func (a *App) DeactivateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		rec, err := a.config.Registry.Deactivate(c.Context(), c.Params("id"), callOpts(c))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{
			"agent_id": rec.AgentID,
			"state":    rec.State,
			"agent":    rec,
		})
	}
}

func (a *App) AgentStatus() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		result, err := a.config.Registry.Status(c.Context(), c.Params("id"), callOpts(c))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(result)
	}
}

func (a *App) ActivateAll() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		count, err := a.config.Registry.ActivateAll(c.Context(), callOpts(c))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{"state": "active", "count": count})
	}
}

func (a *App) DeactivateAll() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		count, err := a.config.Registry.DeactivateAll(c.Context(), callOpts(c))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{"state": "sleep", "count": count})
	}
}
