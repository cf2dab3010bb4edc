package webui

import (
	"net/http"

	"github.com/blaxing/gateway/services/notify"
	fiber "github.com/gofiber/fiber/v2"
)

func (a *App) TriggerURL() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var body struct {
			URL   string         `json:"url"`
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		result, err := a.config.Dispatcher.Dispatch(c.Context(), notify.DispatchRequest{
			URL:   body.URL,
			Event: body.Event,
			Data:  body.Data,
		})
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(result)
	}
}

func (a *App) TriggerFlow() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var body struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		// The body is optional for flow triggers.
		_ = c.BodyParser(&body)
		if body.Event == "" {
			body.Event = "manual"
		}

		result, err := a.config.Dispatcher.Dispatch(c.Context(), notify.DispatchRequest{
			Flow:  c.Params("flow"),
			Event: body.Event,
			Data:  body.Data,
		})
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(result)
	}
}

func (a *App) ListFlows() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		flows, err := a.config.Store.Flows().All(c.Context())
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{"flows": flows, "count": len(flows)})
	}
}

func (a *App) RegisterFlow() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var body struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		flow, err := a.config.Dispatcher.RegisterFlow(c.Context(), body.Name, body.URL)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.Status(http.StatusCreated).JSON(flow)
	}
}

func (a *App) DeleteFlow() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := a.config.Store.Flows().Delete(c.Context(), c.Params("name")); err != nil {
			return errorJSON(c, err)
		}
		return statusJSONMessage(c, "deleted")
	}
}

func (a *App) Diagnostics() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var body struct {
			URL  string         `json:"url"`
			Flow string         `json:"flow"`
			Data map[string]any `json:"data"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		target := body.URL
		if target == "" && body.Flow != "" {
			flow, err := a.config.Store.Flows().Get(c.Context(), body.Flow)
			if err != nil {
				return errorJSON(c, err)
			}
			target = flow.URL
		}
		if target == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "url or flow required"})
		}

		result, err := a.config.Dispatcher.Diagnostics(c.Context(), target, body.Data)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(result)
	}
}
