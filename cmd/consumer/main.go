// Command consumer runs the conversation ingestion service: the SQS FIFO
// poll loop, the classification worker pool, the billing schedule and the
// internal read API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/weni-ai/nexus-conversations/internal/adapter/awsconn"
	"github.com/weni-ai/nexus-conversations/internal/adapter/billing"
	"github.com/weni-ai/nexus-conversations/internal/adapter/classifier/lambdafn"
	rediscounter "github.com/weni-ai/nexus-conversations/internal/adapter/counter/redis"
	"github.com/weni-ai/nexus-conversations/internal/adapter/datalake/kafka"
	"github.com/weni-ai/nexus-conversations/internal/adapter/hotstore/dynamo"
	"github.com/weni-ai/nexus-conversations/internal/adapter/httpserver"
	"github.com/weni-ai/nexus-conversations/internal/adapter/observability"
	"github.com/weni-ai/nexus-conversations/internal/adapter/queue/sqs"
	"github.com/weni-ai/nexus-conversations/internal/adapter/repo/postgres"
	"github.com/weni-ai/nexus-conversations/internal/config"
	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Infra: AWS clients, one credential chain for queue, hot store and
	// classifier.
	awsCfg, err := awsconn.Load(ctx, cfg.QueueRegion, cfg.AssumeRoleARN)
	if err != nil {
		slog.Error("aws config failed", slog.Any("error", err))
		os.Exit(1)
	}
	queue := sqs.New(awsCfg, cfg.QueueURL)
	hot := dynamo.New(awsconn.WithRegion(awsCfg, cfg.DynamoRegion), cfg.DynamoMessageTable)
	classifier := lambdafn.New(awsCfg, cfg.ClassificationLambdaName)

	// Data lake producer
	sender, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.DataLakeTopic)
	if err != nil {
		slog.Error("data lake producer failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = sender.Close() }()

	// Repositories
	projects := postgres.NewProjectRepo(pool)
	convs := postgres.NewConversationRepo(pool)
	archive := postgres.NewArchiveRepo(pool)
	classifications := postgres.NewClassificationRepo(pool)
	topics := postgres.NewTopicRepo(pool)

	// Usecases
	migrator := usecase.NewMigrator(hot, archive)
	classify := usecase.NewClassifyWorker(convs, hot, archive, topics, classifier, classifications, cfg.ClassificationLanguage, cfg.ClassifyWorkers)
	registry := usecase.NewRegistry(projects, convs, migrator, classify)
	satisfaction := usecase.NewSatisfaction(registry, sender, cfg.AgentUUIDCSAT, cfg.AgentUUIDNPS)
	ingest := usecase.NewIngestor(registry, hot, satisfaction, cfg.MessageTTLHours)
	dispatcher := usecase.NewDispatcher(queue, ingest, cfg.GroupWorkers)

	classify.Start(ctx)

	// Billing: pre-computed counts from Redis when configured, otherwise a
	// grouped scan of the durable store.
	var counter domain.ResolutionCounter = postgres.NewResolutionCounterRepo(pool)
	if cfg.RedisAddr != "" {
		rc := rediscounter.New(cfg.RedisAddr)
		defer func() { _ = rc.Close() }()
		counter = rc
		slog.Info("billing counter using pre-computed counts", slog.String("redis", cfg.RedisAddr))
	}
	billingSvc := usecase.NewBilling(counter, billing.New(cfg.BillingBaseURL, cfg.BillingToken), cfg.BillingProjects)

	sched := cron.New()
	if len(cfg.BillingProjects) > 0 && cfg.BillingBaseURL != "" {
		if _, err := sched.AddFunc(cfg.BillingCron, func() {
			if err := billingSvc.RunYesterday(context.Background()); err != nil {
				slog.Error("scheduled billing run failed", slog.Any("error", err))
			}
		}); err != nil {
			slog.Error("billing schedule invalid", slog.String("cron", cfg.BillingCron), slog.Any("error", err))
			os.Exit(1)
		}
		sched.Start()
		slog.Info("billing schedule started",
			slog.String("cron", cfg.BillingCron),
			slog.Int("projects", len(cfg.BillingProjects)))
	}

	// Internal read API + health + metrics
	api := httpserver.NewServer(cfg.APITokens(), projects, convs, hot)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.Router(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.Any("error", err))
		}
	}()

	// Consumer loop blocks until the context is cancelled by a signal.
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer loop error", slog.Any("error", err))
	}

	slog.Info("shutting down", slog.Duration("deadline", cfg.ServerShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	sched.Stop()
	classify.Wait()
}
