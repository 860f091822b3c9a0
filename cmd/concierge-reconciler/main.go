// Concierge Reconciler — фоновая сверка пула слотов.
//
// Reconciler:
//   - По cron-расписанию сверяет AVAILABLE-слоты с фактическим
//     состоянием engine'а и метаданными
//   - Исправляет occupied-слоты, помечает подозрительные
//   - Отменяет диалоговые сессии, брошенные дольше idle-таймаута
//
// Лидерство между репликами разыгрывается через pg advisory lock.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Concierge/internal/allocator"
	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/config"
	"github.com/shaiso/Concierge/internal/conversation"
	"github.com/shaiso/Concierge/internal/engineapi"
	"github.com/shaiso/Concierge/internal/mq"
	"github.com/shaiso/Concierge/internal/repo"
	"github.com/shaiso/Concierge/internal/telemetry"
)

const reconcileLockKey int64 = 771331

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting concierge-reconciler")

	cfg := config.Load()

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	slotRepo := repo.NewSlotRepo(pool)
	sessionRepo := repo.NewSessionRepo(pool)

	// RabbitMQ (опционально)
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.DefaultURL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events will not be published", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	engineClient := engineapi.NewClient(engineapi.Config{
		BaseURL: cfg.EngineURL,
		APIKey:  cfg.EngineAPIKey,
		Logger:  logger,
	})

	reconciler := allocator.NewReconciler(slotRepo, engineClient, publisher, cfg.StaleMetadataGrace, logger)

	// Для отмены брошенных сессий достаточно оркестратора без
	// деплой-зависимостей: sweep не трогает слоты и workflows.
	orchestrator := conversation.New(conversation.Config{
		Sessions:    sessionRepo,
		Catalog:     catalog.Default(),
		Publisher:   publisher,
		Logger:      logger,
		IdleTimeout: cfg.SessionIdleTimeout,
	})

	// Лидерство: только одна реплика выполняет sweep
	acquireLeadership := func() bool {
		var ok bool
		if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", reconcileLockKey).Scan(&ok); err != nil {
			logger.Error("leadership lock error", "error", err)
			return false
		}
		return ok
	}
	var isLeader bool
	defer func() {
		if isLeader {
			_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", reconcileLockKey)
		}
	}()

	sweep := func() {
		if !isLeader {
			isLeader = acquireLeadership()
		}
		if !isLeader {
			logger.Debug("not the leader, skipping sweep")
			return
		}

		report, err := reconciler.Tick(ctx)
		if err != nil {
			logger.Error("reconcile sweep failed", "error", err)
		} else {
			logger.Info("reconcile sweep done",
				"scanned", report.Scanned,
				"corrected", report.Corrected,
				"flagged", report.Flagged)
		}

		cancelled, err := orchestrator.CancelIdle(ctx, time.Now())
		if err != nil {
			logger.Error("idle session sweep failed", "error", err)
		} else if cancelled > 0 {
			logger.Info("idle sessions cancelled", "count", cancelled)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.ReconcileCron, sweep); err != nil {
		logger.Error("invalid reconcile cron expression", "cron", cfg.ReconcileCron, "error", err)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()
	logger.Info("reconcile schedule active", "cron", cfg.ReconcileCron)

	// Один sweep сразу при старте: после деплоя или падения
	// пул не должен ждать следующего cron-тика.
	sweep()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("RECONCILER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("concierge-reconciler stopped")
}
