package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"pioneer-chat/handler"
	"pioneer-chat/internal/config"
	"pioneer-chat/internal/integrations/openai"
	"pioneer-chat/internal/integrations/paramstore"
	"pioneer-chat/internal/integrations/pioneer"
	"pioneer-chat/internal/observability"
	"pioneer-chat/internal/repository"
	"pioneer-chat/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load configuration", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// ---- AWS SDK config (only when SSM or DynamoDB is used) ----
	var awsCfg *aws.Config
	loadAWS := func() aws.Config {
		if awsCfg == nil {
			c, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				fatal("failed to load AWS config", err)
			}
			awsCfg = &c
		}
		return *awsCfg
	}

	if cfg.NeedsSecrets() && cfg.ParamPrefix != "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(loadAWS()))
		if err != nil {
			fatal("failed to create SSM client", err)
		}
		cfg, err = cfg.ResolveSecrets(ctx, ssmClient.Secret)
		if err != nil {
			fatal("failed to resolve secrets", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	// ---- Clients ----
	pioneerClient, err := pioneer.NewClient(cfg.PioneerAPIKey,
		pioneer.WithBaseURL(cfg.PioneerBaseURL),
		pioneer.WithTimeouts(pioneer.Timeouts{
			Read:     cfg.PioneerReadTimeout,
			Ingest:   cfg.PioneerIngestTimeout,
			Register: cfg.PioneerRegisterTimeout,
			Query:    cfg.PioneerQueryTimeout,
		}),
	)
	if err != nil {
		fatal("failed to create personalization client", err)
	}

	openaiOpts := []openai.Option{openai.WithModel(cfg.OpenAIModel), openai.WithTimeout(cfg.OpenAITimeout)}
	if cfg.OpenAIBaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	openaiClient, err := openai.NewClient(cfg.OpenAIAPIKey, openaiOpts...)
	if err != nil {
		fatal("failed to create OpenAI client", err)
	}

	var failures usecase.FailureRecorder
	if cfg.IngestFailureTable != "" {
		failureLog, err := repository.New(awsdynamodb.NewFromConfig(loadAWS()), cfg.IngestFailureTable)
		if err != nil {
			fatal("failed to create ingest failure log", err)
		}
		failures = failureLog
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	// ---- Handler ----
	chatService, err := usecase.NewChatService(pioneerClient, openaiClient, usecase.ChatOptions{
		SummaryMaxChars: cfg.SummaryMaxChars,
		ContextChunksK:  cfg.ContextChunksK,
		KnowledgeTool:   cfg.KnowledgeToolEnabled,
		Failures:        failures,
		Metrics:         metrics,
	})
	if err != nil {
		fatal("failed to create chat service", err)
	}
	registerService, err := usecase.NewRegisterService(pioneerClient, metrics)
	if err != nil {
		fatal("failed to create register service", err)
	}

	h, err := handler.NewHandler(chatService, registerService, metrics)
	if err != nil {
		fatal("failed to create handler", err)
	}

	slog.Info("starting",
		"mode", cfg.RuntimeMode,
		"model", openaiClient.Model(),
		"knowledge_tool", cfg.KnowledgeToolEnabled,
		"ingest_failure_log", cfg.IngestFailureTable != "",
	)

	if cfg.RuntimeMode == config.RuntimeLambda {
		lambda.Start(h.HandleAPIGateway)
		return
	}
	serve(cfg, h.Router())
}

func serve(cfg config.Config, router http.Handler) {
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("listen error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
