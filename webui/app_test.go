package webui_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/blaxing/gateway/core/audit"
	"github.com/blaxing/gateway/core/registry"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/pkg/llm"
	"github.com/blaxing/gateway/pkg/proxy"
	"github.com/blaxing/gateway/services/notify"
	"github.com/blaxing/gateway/webui"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestApp(dryRun bool) *webui.App {
	mem := store.NewMemoryStore()
	sink := audit.NewStoreSink(mem.Audit())
	adapter := proxy.NewAdapter("", "", "", "", 0)
	dispatcher := notify.NewDispatcher(mem.Flows(), mem.Hooks(), sink, notify.Config{DryRun: dryRun})
	reg := registry.New(mem, adapter, dispatcher, sink, registry.Config{})
	gateway := llm.NewGateway(llm.Config{}, sink)

	return webui.NewApp(
		webui.WithStore(mem),
		webui.WithRegistry(reg),
		webui.WithDispatcher(dispatcher),
		webui.WithLLM(gateway),
		webui.WithAudit(sink),
		webui.WithMode("memory"),
	)
}

func doJSON(app *webui.App, method, path string, body any) (*http.Response, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
	}
	return resp, decoded
}

var _ = Describe("API", func() {
	var app *webui.App

	BeforeEach(func() {
		app = newTestApp(true)
	})

	It("reports liveness with mode and dry-run flag", func() {
		resp, body := doJSON(app, http.MethodGet, "/api/health", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["status"]).To(Equal("ok"))
		Expect(body["mode"]).To(Equal("memory"))
		Expect(body["dry_run"]).To(Equal(true))
	})

	It("lists the seeded default agents", func() {
		resp, body := doJSON(app, http.MethodGet, "/api/agents/list", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["count"]).To(BeNumerically("==", 3))
	})

	It("walks an agent through its lifecycle", func() {
		resp, body := doJSON(app, http.MethodPost, "/api/agents/register", map[string]any{"agent_id": "trader-bot"})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		Expect(body["state"]).To(Equal("sleep"))

		resp, body = doJSON(app, http.MethodPost, "/api/agents/trader-bot/activate", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal("active"))

		resp, body = doJSON(app, http.MethodGet, "/api/agents/trader-bot/status", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal("active"))
		Expect(body["uptime"]).To(BeNumerically(">=", 0))

		resp, body = doJSON(app, http.MethodPost, "/api/agents/trader-bot/deactivate", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal("sleep"))
	})

	It("rejects registration without an agent id", func() {
		resp, body := doJSON(app, http.MethodPost, "/api/agents/register", map[string]any{"name": "No ID"})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(body["error"]).To(ContainSubstring("agent_id"))
	})

	It("returns 404 for transitions on unknown agents", func() {
		resp, _ := doJSON(app, http.MethodPost, "/api/agents/ghost/activate", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

		resp, _ = doJSON(app, http.MethodGet, "/api/agents/ghost/status", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("transitions all agents at once", func() {
		doJSON(app, http.MethodGet, "/api/agents/list", nil)

		resp, body := doJSON(app, http.MethodPost, "/api/agents/activate-all", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["count"]).To(BeNumerically("==", 3))
		Expect(body["state"]).To(Equal("active"))
	})

	It("returns 401 for remote calls without credentials", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/agents/ghost/activate", nil)
		req.Header.Set("X-Agent-Source", "prod")
		resp, err := app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("attaches a hint to upstream failure responses", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("maintenance"))
		}))
		defer server.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/agents/x/activate", nil)
		req.Header.Set("X-Agent-Source", "prod")
		req.Header.Set("X-Api-Key", "key")
		req.Header.Set("X-Base-Url", server.URL)

		resp, err := app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

		var body map[string]any
		raw, _ := io.ReadAll(resp.Body)
		Expect(json.Unmarshal(raw, &body)).To(Succeed())
		Expect(body["hint"]).To(Equal("service unavailable"))
		Expect(body["upstream_status"]).To(BeNumerically("==", http.StatusServiceUnavailable))
		Expect(body["upstream_body"]).To(Equal("maintenance"))
	})

	It("attaches a hint when the upstream is unreachable", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/agents/x/activate", nil)
		req.Header.Set("X-Agent-Source", "prod")
		req.Header.Set("X-Api-Key", "key")
		req.Header.Set("X-Base-Url", "http://127.0.0.1:1")

		resp, err := app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

		var body map[string]any
		raw, _ := io.ReadAll(resp.Body)
		Expect(json.Unmarshal(raw, &body)).To(Succeed())
		Expect(body["hint"]).To(Equal("upstream unreachable"))
	})

	It("falls back to the local store for remote list failures", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/agents/list", nil)
		req.Header.Set("X-Agent-Source", "prod")
		resp, err := app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	Describe("hooks", func() {
		It("round-trips the hooks configuration", func() {
			resp, body := doJSON(app, http.MethodGet, "/api/hooks/config", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["activation"]).To(BeNil())

			resp, _ = doJSON(app, http.MethodPost, "/api/hooks/config", map[string]any{"activation": "deploy-flow"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, body = doJSON(app, http.MethodGet, "/api/hooks/config", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["activation"]).To(Equal("deploy-flow"))
		})

		It("skips notifications for unmapped events", func() {
			resp, body := doJSON(app, http.MethodPost, "/api/hooks/notify", map[string]any{"event": "deactivation"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["status"]).To(Equal("skipped"))
		})

		It("requires an event name", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/hooks/notify", map[string]any{"data": map[string]any{}})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("flows", func() {
		It("registers, lists and deletes flows", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/n8n/flows", map[string]any{
				"name": "deploy",
				"url":  "https://automation.example.com/webhook/deploy",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp, body := doJSON(app, http.MethodGet, "/api/n8n/flows", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["count"]).To(BeNumerically("==", 1))

			resp, _ = doJSON(app, http.MethodDelete, "/api/n8n/flows/deploy", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, _ = doJSON(app, http.MethodDelete, "/api/n8n/flows/deploy", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rejects flow registrations with bad URLs", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/n8n/flows", map[string]any{
				"name": "bad",
				"url":  "ftp://nope",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("echoes the payload for dry-run URL triggers", func() {
			resp, body := doJSON(app, http.MethodPost, "/api/n8n/trigger-url", map[string]any{
				"url":   "https://automation.example.com/webhook/deploy",
				"event": "manual",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["dry_run"]).To(Equal(true))
			Expect(body["payload"]).NotTo(BeNil())
		})

		It("rejects triggers without a target", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/n8n/trigger-url", map[string]any{"event": "manual"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("runs diagnostics against a registered flow by name", func() {
			doJSON(app, http.MethodPost, "/api/n8n/flows", map[string]any{
				"name": "deploy",
				"url":  "https://automation.example.com/webhook/deploy",
			})

			resp, body := doJSON(app, http.MethodPost, "/api/n8n/diagnostics", map[string]any{"flow": "deploy"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["dry_run"]).To(Equal(true))
		})
	})

	Describe("llm", func() {
		It("requires a prompt", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/llm/ask", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports when no engine is configured", func() {
			resp, _ := doJSON(app, http.MethodPost, "/api/llm/ask", map[string]any{"prompt": "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("serves the ask history from the audit trail", func() {
			doJSON(app, http.MethodPost, "/api/agents/register", map[string]any{"agent_id": "trader-bot"})
			doJSON(app, http.MethodPost, "/api/llm/ask", map[string]any{"prompt": "hi", "agent": "trader-bot"})
			doJSON(app, http.MethodPost, "/api/llm/ask", map[string]any{"prompt": "hi", "agent": "other-bot"})

			resp, body := doJSON(app, http.MethodGet, "/api/llm/history", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["count"]).To(BeNumerically("==", 2))

			resp, body = doJSON(app, http.MethodGet, "/api/llm/history?agent=trader-bot", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["count"]).To(BeNumerically("==", 1))
		})
	})

	It("exposes the audit trail", func() {
		doJSON(app, http.MethodPost, "/api/agents/register", map[string]any{"agent_id": "trader-bot"})
		doJSON(app, http.MethodPost, "/api/agents/trader-bot/activate", nil)

		resp, body := doJSON(app, http.MethodGet, "/api/audit?page=1&limit=10", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["total"]).To(BeNumerically(">=", 1))
		Expect(body["entries"]).NotTo(BeEmpty())
	})
})
