package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventType — тип доменного события.
type EventType string

// Типы событий (совпадают с routing keys).
const (
	EventSessionAdvanced  EventType = "session.advanced"
	EventSlotAssigned     EventType = "slot.assigned"
	EventSlotReleased     EventType = "slot.released"
	EventSlotFlagged      EventType = "slot.flagged"
	EventWorkflowDeployed EventType = "workflow.deployed"
	EventWorkflowFailed   EventType = "workflow.failed"
)

// Event — доменное событие в потоке.
type Event struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// TenantID — tenant, к которому относится событие (может быть пуст).
	TenantID string `json:"tenant_id,omitempty"`

	// Payload — полезная нагрузка.
	Payload map[string]any `json:"payload,omitempty"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует доменные события.
//
// Nil-safe: методы на nil-publisher'е — no-op, сервисы работают
// без брокера.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует событие в exchange событий.
//
// Ошибки публикации логируются, но не прерывают основной сценарий:
// поток событий — вспомогательный.
func (p *Publisher) Publish(ctx context.Context, eventType EventType, tenantID string, payload map[string]any) {
	if p == nil {
		return
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TenantID:  tenantID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event", "type", eventType, "error", err)
		return
	}

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(
			ctx,
			string(ExchangeEvents),
			string(eventType), // routing key = тип события
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.ID,
				Timestamp:    event.Timestamp,
				Body:         body,
			},
		)
	})
	if err != nil {
		p.logger.Warn("publish event failed",
			"type", eventType,
			"tenant_id", tenantID,
			"error", err,
		)
		return
	}

	p.logger.Debug("published event", "type", eventType, "event_id", event.ID)
}

// SlotPayload формирует payload событий слота.
func SlotPayload(slotID string, extra map[string]any) map[string]any {
	payload := map[string]any{"slot_id": slotID}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// ParseEvent разбирает тело AMQP-сообщения в Event.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &event, nil
}
