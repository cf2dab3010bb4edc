package webui

import (
	"net/http"

	"github.com/blaxing/gateway/core/types"
	fiber "github.com/gofiber/fiber/v2"
)

func (a *App) GetHooks() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		cfg, err := a.config.Store.Hooks().Get(c.Context())
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(cfg)
	}
}

func (a *App) UpdateHooks() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var cfg types.HooksConfig
		if err := c.BodyParser(&cfg); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		if err := a.config.Store.Hooks().Put(c.Context(), cfg); err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{"status": "updated", "config": cfg})
	}
}

func (a *App) NotifyHook() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var body struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		if body.Event == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "event required"})
		}

		result, err := a.config.Dispatcher.DispatchEvent(c.Context(), body.Event, body.Data)
		if err != nil {
			return errorJSON(c, err)
		}
		if result == nil {
			return c.JSON(fiber.Map{"status": "skipped", "event": body.Event})
		}
		return c.JSON(result)
	}
}
