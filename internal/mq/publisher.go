package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Pipewright/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeBuildRequested MessageType = "build.requested"
	MessageTypeBuildCompleted MessageType = "build.completed"
	MessageTypeTemplateChanged MessageType = "template.changed"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// CorrelationID — ID сборки, к которой относится сообщение.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload — полезная нагрузка.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с сериализованным payload.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// BuildRequestedPayload — payload сообщения о новой сборке.
type BuildRequestedPayload struct {
	BuildID uuid.UUID `json:"build_id"`
}

// BuildCompletedPayload — payload сообщения о завершённой сборке.
type BuildCompletedPayload struct {
	BuildID  uuid.UUID          `json:"build_id"`
	Status   domain.BuildStatus `json:"status"` // SUCCEEDED или FAILED
	Errors   int                `json:"errors"`
	Warnings int                `json:"warnings"`
	Error    string             `json:"error,omitempty"`
}

// TemplateChangedPayload — payload сообщения об изменении шаблона
// или фрагмента в БД.
type TemplateChangedPayload struct {
	Name string `json:"name"`
}

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

// Publish публикует сообщение в указанный exchange с routing key и ждёт
// подтверждения брокера. Отказ брокера — ErrNotConfirmed.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				MessageId:     msg.ID,
				CorrelationId: msg.CorrelationID,
				Type:          string(msg.Type),
				Timestamp:     msg.Timestamp,
				Body:          body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm %s: %w", msg.ID, err)
		}
		if !acked {
			return fmt.Errorf("%w: %s to %s/%s", ErrNotConfirmed, msg.ID, exchange, routingKey)
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

// PublishBuildRequested публикует событие о сборке, ожидающей воркера.
// Потребитель: Worker.
func (p *Publisher) PublishBuildRequested(ctx context.Context, buildID uuid.UUID) error {
	msg, err := NewMessage(MessageTypeBuildRequested, BuildRequestedPayload{BuildID: buildID})
	if err != nil {
		return err
	}
	msg.CorrelationID = buildID.String()
	return p.Publish(ctx, ExchangeBuilds, RoutingKeyRequested, msg)
}

// PublishBuildCompleted публикует итог сборки.
func (p *Publisher) PublishBuildCompleted(ctx context.Context, payload BuildCompletedPayload) error {
	msg, err := NewMessage(MessageTypeBuildCompleted, payload)
	if err != nil {
		return err
	}
	msg.CorrelationID = payload.BuildID.String()
	return p.Publish(ctx, ExchangeBuilds, RoutingKeyCompleted, msg)
}

// PublishTemplateChanged сообщает воркерам, что шаблон name сохранён
// или удалён. Потребители: все Worker.
func (p *Publisher) PublishTemplateChanged(ctx context.Context, name string) error {
	msg, err := NewMessage(MessageTypeTemplateChanged, TemplateChangedPayload{Name: name})
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeBuilds, RoutingKeyTemplatesChanged, msg)
}
