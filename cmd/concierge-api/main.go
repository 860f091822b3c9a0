// Concierge API — HTTP-сервис диалогового provisioning'а автоматизаций.
//
// Принимает реплики пользователей, ведёт сессии, закрепляет слоты
// и разворачивает workflows во внешнем execution engine.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Concierge/internal/allocator"
	"github.com/shaiso/Concierge/internal/api"
	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/config"
	"github.com/shaiso/Concierge/internal/conversation"
	"github.com/shaiso/Concierge/internal/deploy"
	"github.com/shaiso/Concierge/internal/engineapi"
	"github.com/shaiso/Concierge/internal/llm"
	"github.com/shaiso/Concierge/internal/mq"
	"github.com/shaiso/Concierge/internal/repo"
	"github.com/shaiso/Concierge/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_api_http_requests_total",
		Help: "Total HTTP requests handled by concierge_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting concierge-api")

	cfg := config.Load()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Миграции и матрица слотов P×S
	if err := repo.Migrate(context.Background(), pool); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	sessionRepo := repo.NewSessionRepo(pool)
	slotRepo := repo.NewSlotRepo(pool)
	workflowRepo := repo.NewWorkflowRepo(pool)

	if err := slotRepo.Seed(context.Background(), cfg.ProjectCount, cfg.SlotsPerProject); err != nil {
		logger.Error("failed to seed slot pool", "error", err)
		os.Exit(1)
	}
	logger.Info("slot pool ready", "capacity", cfg.PoolCapacity())

	// RabbitMQ: без брокера работаем в degraded-режиме, события не публикуются
	var publisher *mq.Publisher
	mqURL := mq.DefaultURL()
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events will not be published", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(context.Background(), mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Клиент execution engine'а
	engineClient := engineapi.NewClient(engineapi.Config{
		BaseURL: cfg.EngineURL,
		APIKey:  cfg.EngineAPIKey,
		Logger:  logger,
	})

	// Аллокатор слотов
	alloc := allocator.New(allocator.Config{
		Store:      slotRepo,
		Engine:     engineClient,
		Publisher:  publisher,
		Logger:     logger,
		StaleGrace: cfg.StaleMetadataGrace,
	})

	// Координатор деплоя
	caps := catalog.Default()
	coordinator := deploy.New(deploy.Config{
		Store:     workflowRepo,
		Engine:    engineClient,
		Releaser:  alloc,
		Validator: catalog.NewValidator(caps),
		Retry: engineapi.RetryPolicy{
			MaxAttempts: cfg.EngineRetryAttempts,
			BaseDelay:   cfg.EngineRetryBaseDelay,
		},
		Publisher: publisher,
		Logger:    logger,
	})

	// Диалоговый оркестратор
	orchestrator := conversation.New(conversation.Config{
		Sessions:    sessionRepo,
		Catalog:     caps,
		Slots:       alloc,
		Deployer:    coordinator,
		Completer:   llm.New(logger),
		Publisher:   publisher,
		Logger:      logger,
		IdleTimeout: cfg.SessionIdleTimeout,
	})

	// API handler
	handler := api.NewHandler(api.Config{
		Orchestrator: orchestrator,
		Coordinator:  coordinator,
		SessionRepo:  sessionRepo,
		SlotRepo:     slotRepo,
		WorkflowRepo: workflowRepo,
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// HTTP сервер с graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
