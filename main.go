package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blaxing/gateway/core/audit"
	"github.com/blaxing/gateway/core/registry"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/pkg/llm"
	"github.com/blaxing/gateway/pkg/proxy"
	"github.com/blaxing/gateway/services/healthcheck"
	"github.com/blaxing/gateway/services/notify"
	"github.com/blaxing/gateway/webui"
	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
)

var (
	port                string
	mongoURL            string
	mongoDB             string
	managerURL          string
	managerStagingURL   string
	managerKey          string
	n8nBaseURL          string
	n8nAuthEnabled      bool
	n8nToken            string
	dryRun              bool
	notifyOnBulk        bool
	healthcheckEnabled  bool
	healthcheckInterval time.Duration
	inferURL            string
	universalKey        string
	openAIKey           string
	openAIModel         string
	telegramToken       string
	telegramChatID      string
)

func init() {
	_ = godotenv.Load()

	port = os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	mongoURL = os.Getenv("MONGO_URL")
	mongoDB = os.Getenv("MONGO_DB")
	if mongoDB == "" {
		mongoDB = "blaxing"
	}
	managerURL = os.Getenv("AGENT_MANAGER_URL")
	managerStagingURL = os.Getenv("AGENT_MANAGER_URL_STAGING")
	managerKey = os.Getenv("AGENT_MANAGER_KEY")
	n8nBaseURL = os.Getenv("N8N_BASE_URL")
	n8nAuthEnabled = os.Getenv("N8N_AUTH_ENABLED") == "true"
	n8nToken = os.Getenv("N8N_TOKEN")
	dryRun = os.Getenv("DRY_RUN") == "true"
	notifyOnBulk = os.Getenv("NOTIFY_ON_BULK") == "true"
	healthcheckEnabled = os.Getenv("HEALTHCHECK_ENABLED") == "true"
	healthcheckInterval = 900 * time.Second
	if raw := os.Getenv("HEALTHCHECK_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			healthcheckInterval = parsed
		} else {
			xlog.Warn("Invalid HEALTHCHECK_INTERVAL, using default", "value", raw)
		}
	}
	inferURL = os.Getenv("INFER_URL")
	universalKey = os.Getenv("UNIVERSAL_KEY")
	openAIKey = os.Getenv("OPENAI_API_KEY")
	openAIModel = os.Getenv("OPENAI_MODEL")
	telegramToken = os.Getenv("TELEGRAM_TOKEN")
	telegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
}

func main() {
	ctx := context.Background()

	var (
		st   store.Store
		mode string
		err  error
	)
	if mongoURL != "" {
		mode = "mongo"
		st, err = store.NewMongoStore(ctx, store.MongoConfig{URL: mongoURL, Database: mongoDB})
		if err != nil {
			xlog.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
	} else {
		mode = "memory"
		st = store.NewMemoryStore()
	}
	xlog.Info("Store initialized", "mode", mode)

	sink := audit.NewStoreSink(st.Audit())

	adapter := proxy.NewAdapter(managerURL, managerStagingURL, managerURL, managerKey, 0)

	dispatcher := notify.NewDispatcher(st.Flows(), st.Hooks(), sink, notify.Config{
		BaseURL:     n8nBaseURL,
		AuthEnabled: n8nAuthEnabled,
		Token:       n8nToken,
		DryRun:      dryRun,
	})

	reg := registry.New(st, adapter, dispatcher, sink, registry.Config{
		DryRun:       dryRun,
		NotifyOnBulk: notifyOnBulk,
	})

	gateway := llm.NewGateway(llm.Config{
		InferURL:      inferURL,
		UniversalKey:  universalKey,
		OpenAIKey:     openAIKey,
		FallbackModel: openAIModel,
	}, sink)

	var checker *healthcheck.Checker
	if healthcheckEnabled {
		var alerter healthcheck.Alerter
		if telegramToken != "" && telegramChatID != "" {
			tg, err := healthcheck.NewTelegramAlerter(telegramToken, telegramChatID)
			if err != nil {
				xlog.Warn("Telegram alerter unavailable, health checks run without alerts", "error", err)
			} else {
				alerter = tg
			}
		}
		checker = healthcheck.NewChecker(st.Flows(), st.StatusChecks(), dispatcher, alerter, healthcheckInterval)
		if err := checker.Start(); err != nil {
			xlog.Error("Failed to start health checker", "error", err)
			os.Exit(1)
		}
	}

	app := webui.NewApp(
		webui.WithStore(st),
		webui.WithRegistry(reg),
		webui.WithDispatcher(dispatcher),
		webui.WithLLM(gateway),
		webui.WithAudit(sink),
		webui.WithMode(mode),
	)

	go func() {
		if err := app.Listen(":" + port); err != nil {
			xlog.Error("Server stopped", "error", err)
			os.Exit(1)
		}
	}()
	xlog.Info("Gateway listening", "port", port, "dry_run", dryRun)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	xlog.Info("Shutting down")
	if checker != nil {
		checker.Stop()
	}
	if err := app.Shutdown(); err != nil {
		xlog.Error("Server shutdown failed", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Close(shutdownCtx); err != nil {
		xlog.Error("Store close failed", "error", err)
	}
}
