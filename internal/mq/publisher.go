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

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeAutomationEnrolled MessageType = "automation.enrolled"
	MessageTypeDeliveryQueued     MessageType = "delivery.queued"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// AutomationEnrolledPayload — payload для события подписки контакта на flow.
type AutomationEnrolledPayload struct {
	ContactID uuid.UUID `json:"contact_id"`
	FlowID    uuid.UUID `json:"flow_id"`
}

// DeliveryQueuedPayload — payload для события нового задания доставки.
type DeliveryQueuedPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishAutomationEnrolled публикует событие подписки контакта на flow.
// Потребитель: Engine — первый шаг выполняется без ожидания polling-цикла.
func (p *Publisher) PublishAutomationEnrolled(ctx context.Context, contactID, flowID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeAutomationEnrolled,
		Payload:   AutomationEnrolledPayload{ContactID: contactID, FlowID: flowID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeAutomations, RoutingKeyEnrolled, msg)
}

// PublishDeliveryQueued публикует событие нового задания доставки.
// Потребитель: Delivery worker.
func (p *Publisher) PublishDeliveryQueued(ctx context.Context, jobID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeDeliveryQueued,
		Payload:   DeliveryQueuedPayload{JobID: jobID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeDeliveries, RoutingKeyQueued, msg)
}

// NotifyDeliveryQueued — алиас PublishDeliveryQueued под интерфейс
// уведомителя движка.
func (p *Publisher) NotifyDeliveryQueued(ctx context.Context, jobID uuid.UUID) error {
	return p.PublishDeliveryQueued(ctx, jobID)
}
