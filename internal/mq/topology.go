package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeEvents — topic-exchange всех доменных событий.
const ExchangeEvents Exchange = "concierge.events"

// QueueEvents — очередь notifier'а, подписанная на все события.
const QueueEvents Queue = "events.stream"

// Routing keys событий.
const (
	KeySessionAdvanced  RoutingKey = "session.advanced"
	KeySlotAssigned     RoutingKey = "slot.assigned"
	KeySlotReleased     RoutingKey = "slot.released"
	KeySlotFlagged      RoutingKey = "slot.flagged"
	KeyWorkflowDeployed RoutingKey = "workflow.deployed"
	KeyWorkflowFailed   RoutingKey = "workflow.failed"
)

// SetupTopology объявляет exchange, очередь и привязку.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeEvents), // name
			"topic",                // type
			true,                   // durable
			false,                  // auto-deleted
			false,                  // internal
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueEvents), // name
			true,                // durable
			false,               // delete when unused
			false,               // exclusive
			false,               // no-wait
			nil,                 // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueEvents, err)
		}

		// Одна очередь на все события: notifier фильтрует по типу.
		err = ch.QueueBind(
			string(QueueEvents),
			"#", // все routing keys
			string(ExchangeEvents),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueEvents, err)
		}

		return nil
	})
}
