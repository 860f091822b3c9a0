// Concierge Notifier — потребитель потока доменных событий.
//
// Notifier:
//   - Читает события из RabbitMQ (сессии, слоты, workflows)
//   - Пишет их в structured log для операторов
//   - Считает метрики по типам событий
//
// Точка расширения для внешних уведомлений (email, chat webhooks).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Concierge/internal/mq"
	"github.com/shaiso/Concierge/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting concierge-notifier")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ обязателен: notifier без брокера бесполезен
	mqConn, err := mq.NewConnection(mq.DefaultURL(), logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	handler := func(ctx context.Context, event *mq.Event) error {
		telemetry.EventsConsumed.WithLabelValues(string(event.Type)).Inc()
		logger.Info("event",
			"type", event.Type,
			"tenant_id", event.TenantID,
			"payload", event.Payload,
			"at", event.Timestamp)
		return nil
	}

	consumer := mq.NewConsumer(mqConn, mq.QueueEvents, handler, logger)

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("consumer stopped", "error", err)
			cancel()
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("NOTIFIER_PORT"); v != "" {
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
	logger.Info("concierge-notifier stopped")
}
