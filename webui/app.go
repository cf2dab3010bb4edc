package webui

import (
	"errors"
	"net/http"

	"github.com/blaxing/gateway/core/registry"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/core/types"
	"github.com/blaxing/gateway/pkg/proxy"
	"github.com/blaxing/gateway/services/notify"
	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type (
	App struct {
		config *Config
		*fiber.App
	}
)

func NewApp(opts ...Option) *App {
	config := NewConfig(opts...)

	webapp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webapp.Use(recover.New())
	webapp.Use(cors.New())

	a := &App{
		config: config,
		App:    webapp,
	}

	a.registerRoutes(webapp)

	return a
}

// callOpts reads the per-request routing headers. X-Agent-Source picks
// the deployment tier, X-Api-Key and X-Base-Url override process-level
// upstream credentials for this call only.
func callOpts(c *fiber.Ctx) proxy.CallOpts {
	return proxy.CallOpts{
		Source:  types.ParseSource(c.Get("X-Agent-Source")),
		APIKey:  c.Get("X-Api-Key"),
		BaseURL: c.Get("X-Base-Url"),
	}
}

func errorJSONMessage(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusInternalServerError).JSON(struct {
		Error string `json:"error"`
	}{Error: message})
}

func statusJSONMessage(c *fiber.Ctx, message string) error {
	return c.JSON(struct {
		Status string `json:"status"`
	}{Status: message})
}

// errorJSON maps domain errors to HTTP statuses. Upstream failures keep
// their body so the caller can see what the remote manager said.
func errorJSON(c *fiber.Ctx, err error) error {
	var upstream *proxy.UpstreamError
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, proxy.ErrUnauthorized):
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, registry.ErrInvalidInput),
		errors.Is(err, notify.ErrInvalidInput),
		errors.Is(err, proxy.ErrConfigMissing),
		errors.Is(err, notify.ErrConfigMissing):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, proxy.ErrUpstreamTimeout):
		return c.Status(http.StatusGatewayTimeout).JSON(fiber.Map{
			"error": err.Error(),
			"hint":  "upstream timed out",
		})
	case errors.As(err, &upstream):
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{
			"error":           "upstream error",
			"upstream_status": upstream.StatusCode,
			"upstream_body":   upstream.Body,
			"hint":            notify.ClassifyOutcome(upstream.StatusCode, upstream.Body),
		})
	case errors.Is(err, proxy.ErrUpstreamUnavailable):
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
			"hint":  "upstream unreachable",
		})
	}
	return errorJSONMessage(c, err.Error())
}
