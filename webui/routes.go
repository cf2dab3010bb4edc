package webui

import (
	fiber "github.com/gofiber/fiber/v2"
)

func (app *App) registerRoutes(webapp *fiber.App) {
	api := webapp.Group("/api")

	api.Get("/health", app.Health())

	api.Get("/agents/list", app.ListAgents())
	api.Post("/agents/register", app.RegisterAgent())
	api.Post("/agents/activate-all", app.ActivateAll())
	api.Post("/agents/deactivate-all", app.DeactivateAll())
	api.Post("/agents/:id/activate", app.ActivateAgent())
	api.Post("/agents/:id/deactivate", app.DeactivateAgent())
	api.Get("/agents/:id/status", app.AgentStatus())

	api.Get("/hooks/config", app.GetHooks())
	api.Post("/hooks/config", app.UpdateHooks())
	api.Post("/hooks/notify", app.NotifyHook())

	api.Post("/n8n/trigger-url", app.TriggerURL())
	api.Post("/n8n/trigger/:flow", app.TriggerFlow())
	api.Get("/n8n/flows", app.ListFlows())
	api.Post("/n8n/flows", app.RegisterFlow())
	api.Delete("/n8n/flows/:name", app.DeleteFlow())
	api.Post("/n8n/diagnostics", app.Diagnostics())

	api.Post("/llm/ask", app.Ask())
	api.Get("/llm/history", app.AskHistory())

	api.Get("/audit", app.ListAudit())
}
