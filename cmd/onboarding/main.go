package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/agents"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/anthropic"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/api"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/auth"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/cache"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/chat"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/config"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/curation"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/hermes"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/progress"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	slog.Info("onboarding engine starting", "port", cfg.Port, "broker", cfg.ProgressBroker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Redis: run cache, locks and progress snapshots
	rc, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rc.Close()
	slog.Info("redis connected")

	// NATS/Hermes, required only when it carries progress events
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, lifecycle events disabled")
	}

	redisBroker := progress.NewRedisBroker(rc.Client())
	var bus progress.Broadcaster = redisBroker
	if cfg.ProgressBroker == config.BrokerNATS {
		bus = hermesClient
	}
	publisher := progress.NewPublisher(redisBroker, bus, slog.Default())
	subscriber := progress.NewSubscriber(redisBroker, bus, slog.Default())

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Curation pipeline
	curator := curation.New(curation.Agents{
		Planner:    agents.NewPlanner(llm, slog.Default()),
		Policy:     agents.NewPolicyResearcher(llm, db, cfg.PolicySearchLimit, slog.Default()),
		Researcher: agents.NewResearcher(llm, slog.Default()),
		Roadmap:    agents.NewRoadmapBuilder(llm, slog.Default()),
	}, publisher, rc, cfg.AgentWorkers, slog.Default())
	if hermesClient != nil {
		curator.WithNotifier(hermesClient)
	}

	chats := chat.NewService(db, llm, llm.Model(), curator, rc, cfg.MaxClarifyingQuestions, slog.Default())

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL)
	if err != nil {
		slog.Error("invalid token configuration", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, api.Deps{
		Users:       db,
		Chats:       chats,
		Progress:    subscriber,
		Tokens:      tokens,
		CORSOrigins: cfg.CORSOrigins(),
		Checks: map[string]api.HealthCheck{
			"database": db.Ping,
			"redis":    rc.Ping,
		},
		Logger: slog.Default(),
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Announce registration
	if hermesClient != nil {
		if err := hermesClient.Register(cfg.ProgressBroker); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("onboarding engine ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	if err := curator.Shutdown(shutdownCtx); err != nil {
		slog.Warn("curation runs did not finish in time", "error", err)
	}
	cancel()
	slog.Info("onboarding engine stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
