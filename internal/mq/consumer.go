package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно событие из очереди.
//
// Возврат ошибки означает nack с requeue; nil — ack.
type Handler func(ctx context.Context, event *Event) error

// Consumer читает события из очереди и передаёт их в Handler.
//
// При разрыве соединения consumer переподписывается после
// уведомления от Connection.
type Consumer struct {
	conn    *Connection
	queue   Queue
	handler Handler
	logger  *slog.Logger
}

// NewConsumer создаёт Consumer для очереди.
func NewConsumer(conn *Connection, queue Queue, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		conn:    conn,
		queue:   queue,
		handler: handler,
		logger:  logger,
	}
}

// Run блокирует до отмены ctx, потребляя события из очереди.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("consume loop interrupted", "queue", c.queue, "error", err)
		}

		// Ждём переподключения или остановки.
		select {
		case <-ctx.Done():
			return nil
		case <-c.conn.ReconnectNotify():
			c.logger.Info("resubscribing after reconnect", "queue", c.queue)
		case <-time.After(5 * time.Second):
		}
	}
}

// consume подписывается на очередь и обрабатывает сообщения
// до закрытия канала доставки или отмены ctx.
func (c *Consumer) consume(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto)
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consuming", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, delivery)
		}
	}
}

// handle разбирает и обрабатывает одну доставку.
func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	event, err := ParseEvent(delivery.Body)
	if err != nil {
		// Неразбираемое сообщение повторять бессмысленно.
		c.logger.Error("malformed event, dropping", "error", err)
		_ = delivery.Nack(false, false)
		return
	}

	if err := c.handler(ctx, event); err != nil {
		c.logger.Warn("handler failed, requeueing",
			"type", event.Type,
			"event_id", event.ID,
			"error", err,
		)
		_ = delivery.Nack(false, true)
		return
	}

	_ = delivery.Ack(false)
}
