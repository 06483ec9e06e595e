package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/leadline-hq/leadline/internal/api/router"
	"github.com/leadline-hq/leadline/internal/campaigns"
	"github.com/leadline-hq/leadline/internal/classify"
	appconfig "github.com/leadline-hq/leadline/internal/config"
	"github.com/leadline-hq/leadline/internal/contacts"
	"github.com/leadline-hq/leadline/internal/dedupe"
	"github.com/leadline-hq/leadline/internal/http/handlers"
	"github.com/leadline-hq/leadline/internal/ingest"
	"github.com/leadline-hq/leadline/internal/interactions"
	"github.com/leadline-hq/leadline/internal/llm"
	"github.com/leadline-hq/leadline/internal/observability/metrics"
	"github.com/leadline-hq/leadline/internal/outbound"
	"github.com/leadline-hq/leadline/internal/sms"
	"github.com/leadline-hq/leadline/internal/triggers"
	"github.com/leadline-hq/leadline/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadline API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Redis only accelerates dedup and campaign lookups; run without it.
			logger.Warn("redis unavailable, continuing without cache", "error", err)
			redisClient = nil
		}
	}

	// Gemini is optional: without a key, classification and trigger
	// evaluation degrade gracefully instead of blocking ingestion.
	var llmClient llm.Client
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		llmClient = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set; classification and trigger evaluation disabled")
	}

	campaignStore := campaigns.NewStore(pool)
	campaignResolver := campaigns.NewCachedResolver(campaignStore, redisClient, cfg.CampaignCacheTTL, logger)
	triggerStore := triggers.NewStore(pool)
	contactRegistry := contacts.NewRegistry(pool)
	interactionStore := interactions.NewStore(pool)
	outboundStore := outbound.NewStore(pool)

	dispatcher := sms.NewDispatcher(cfg.SMSAPIKey, cfg.SMSProfileID, logger)
	if cfg.SMSBaseURL != "" {
		dispatcher = dispatcher.WithBaseURL(cfg.SMSBaseURL)
	}

	var classifier *classify.Classifier
	var evaluator *triggers.Evaluator
	if llmClient != nil {
		classifier = classify.NewClassifier(llmClient, cfg.GeminiModelID, logger)
		evaluator = triggers.NewEvaluator(llmClient, cfg.GeminiModelID, logger)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(nil)

	pipelineCfg := ingest.Config{
		Campaigns:    campaignResolver,
		Triggers:     triggerStore,
		Contacts:     contactRegistry,
		Interactions: interactionStore,
		Sender:       dispatcher,
		Dedupe:       dedupe.NewCache(redisClient, cfg.DedupWindow, logger),
		DedupWindow:  cfg.DedupWindow,
		Logger:       logger,
	}
	if classifier != nil {
		pipelineCfg.Classifier = classifier
	}
	if evaluator != nil {
		pipelineCfg.Evaluator = evaluator
	}
	pipeline := ingest.New(pipelineCfg)

	resultCfg := outbound.ResultHandlerConfig{
		Store:             outboundStore,
		Triggers:          triggerStore,
		Sender:            dispatcher,
		Completion:        outbound.NewCompletionMonitor(outboundStore, logger),
		DefaultMaxRetries: cfg.OutboundMaxRetries,
		DefaultRetryDelay: cfg.OutboundRetryDelay,
		Logger:            logger,
	}
	if classifier != nil {
		resultCfg.Summarizer = classifier
	}
	if evaluator != nil {
		resultCfg.Evaluator = evaluator
	}
	resultHandler := outbound.NewResultHandler(resultCfg)

	r := router.New(&router.Config{
		Logger: logger,
		InboundWebhook: handlers.NewInboundWebhookHandler(handlers.InboundWebhookConfig{
			Pipeline: pipeline,
			Metrics:  pipelineMetrics,
			Logger:   logger,
		}),
		CallResults: handlers.NewCallResultHandler(handlers.CallResultConfig{
			Results: resultHandler,
			Keys:    outboundStore,
			Metrics: pipelineMetrics,
			Logger:  logger,
		}),
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
