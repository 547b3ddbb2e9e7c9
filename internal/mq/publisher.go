package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Fleet/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobExecute   MessageType = "job.execute"
	MessageTypeJobProgress  MessageType = "job.progress"
	MessageTypeJobCompleted MessageType = "job.completed"
	MessageTypeDeviceEvent  MessageType = "device.event"
	MessageTypeAlert        MessageType = "alert"
)

// Message — JSON-конверт всех сообщений Fleet.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// JobProgressPayload — payload job.progress.
type JobProgressPayload struct {
	ExecutionID string `json:"executionId"`
	Progress    int    `json:"progress"`
}

// DeviceEventPayload — payload device.event.
type DeviceEventPayload struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// AlertPayload — payload alert.
type AlertPayload struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Data     any    `json:"data,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
//
// Реализует lifecycle.EventPublisher и aggregator.ResultPublisher.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
		now:    time.Now,
	}
}

// NewMessage создаёт конверт с новым ID.
func NewMessage(msgType MessageType, payload any, now time.Time) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: now.UTC(),
	}
}

// Publish отправляет persistent-сообщение в exchange с ключом key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, key RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, string(exchange), string(key), false, false, publishing)
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s/%s: %w", msg.Type, exchange, key, err)
	}

	p.logger.Debug("message published",
		"type", msg.Type,
		"message_id", msg.ID,
		"routing_key", key,
	)
	return nil
}

// send оборачивает payload в конверт и публикует его.
func (p *Publisher) send(ctx context.Context, exchange Exchange, key RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, exchange, key, NewMessage(msgType, payload, p.now()))
}

// PublishJobExecute ставит job в очередь jobs.execute.
func (p *Publisher) PublishJobExecute(ctx context.Context, req domain.JobRequest) error {
	return p.send(ctx, ExchangeJobs, RoutingKeyExecute, MessageTypeJobExecute, req)
}

// PublishJobProgress публикует прогресс job'а.
func (p *Publisher) PublishJobProgress(ctx context.Context, executionID string, percent int) error {
	return p.send(ctx, ExchangeJobs, RoutingKeyProgress, MessageTypeJobProgress,
		JobProgressPayload{ExecutionID: executionID, Progress: percent})
}

// PublishJobCompleted публикует итог job'а.
func (p *Publisher) PublishJobCompleted(ctx context.Context, result *domain.JobExecutionResult) error {
	return p.send(ctx, ExchangeJobs, RoutingKeyCompleted, MessageTypeJobCompleted, result)
}

// PublishEvent публикует событие устройства с ключом device.<name>.
func (p *Publisher) PublishEvent(ctx context.Context, name string, payload any) error {
	return p.send(ctx, ExchangeEvents, DeviceEventKey(name), MessageTypeDeviceEvent,
		DeviceEventPayload{Event: name, Data: payload})
}

// PublishAlert публикует алерт с ключом alert.<severity>.
func (p *Publisher) PublishAlert(ctx context.Context, severity, message string, payload any) error {
	return p.send(ctx, ExchangeEvents, AlertKey(severity), MessageTypeAlert,
		AlertPayload{Severity: severity, Message: message, Data: payload})
}
