package webui

import (
	"errors"
	"net/http"

	"github.com/blaxing/gateway/core/types"
	"github.com/blaxing/gateway/pkg/llm"
	fiber "github.com/gofiber/fiber/v2"
)

func (a *App) Ask() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var body struct {
			Prompt string `json:"prompt"`
			Model  string `json:"model"`
			Agent  string `json:"agent"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}
		if body.Prompt == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "prompt required"})
		}

		answer, err := a.config.LLM.Ask(c.Context(), body.Prompt, body.Model, body.Agent)
		if err != nil {
			if errors.Is(err, llm.ErrNoEngine) {
				return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
			}
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{"answer": answer})
	}
}

// AskHistory returns past relay questions and answers, newest first,
// read back from the audit trail. An agent filter narrows it to one
// agent's conversations.
func (a *App) AskHistory() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agent := c.Query("agent")
		limit := c.QueryInt("limit", 50)
		if limit < 1 {
			limit = 50
		}

		entries, _, err := a.config.Audit.List(c.Context(), 1, 200)
		if err != nil {
			return errorJSON(c, err)
		}

		history := []types.AuditEntry{}
		for _, entry := range entries {
			if entry.Action != "llm_ask" {
				continue
			}
			if agent != "" && entry.Target != agent {
				continue
			}
			history = append(history, entry)
			if len(history) == limit {
				break
			}
		}
		return c.JSON(fiber.Map{"history": history, "count": len(history)})
	}
}

func (a *App) ListAudit() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		page := c.QueryInt("page", 1)
		limit := c.QueryInt("limit", 50)

		entries, total, err := a.config.Audit.List(c.Context(), page, limit)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{
			"entries": entries,
			"total":   total,
			"page":    page,
			"limit":   limit,
		})
	}
}
