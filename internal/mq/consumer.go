package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Fleet/internal/telemetry"
)

// Handler обрабатывает одно сообщение.
//
// nil — ack. Ошибка, обёрнутая Permanent, — nack без requeue (в DLQ).
// Любая другая ошибка — nack с requeue.
type Handler func(ctx context.Context, d *Delivery) error

// ErrPermanent — повторная доставка сообщения не поможет.
var ErrPermanent = errors.New("permanent failure")

// ErrUnexpectedType — тип сообщения не обрабатывается этой очередью.
var ErrUnexpectedType = errors.New("unexpected message type")

// Permanent помечает ошибку обработчика как окончательную.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent проверяет, помечена ли ошибка как окончательная.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Delivery — сообщение, переданное обработчику.
//
// Ack/nack выполняет Consumer по результату Handler.
type Delivery struct {
	Message Message

	// Redelivered — сообщение уже доставлялось (предыдущая попытка вернула ошибку
	// или воркер упал до ack).
	Redelivered bool
}

// settlement — решение по доставленному сообщению.
type settlement string

const (
	settleAck     settlement = "ack"
	settleRequeue settlement = "requeue"
	settleDead    settlement = "dead_letter"
)

// settle переводит результат обработчика в решение ack/nack.
func settle(err error) settlement {
	switch {
	case err == nil:
		return settleAck
	case IsPermanent(err):
		return settleDead
	default:
		return settleRequeue
	}
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Accept — допустимые типы сообщений. Остальные уходят в DLQ без вызова
	// обработчика. Пусто — допускаются все.
	Accept []MessageType

	// Prefetch — сколько неподтверждённых сообщений держит consumer (default: 1).
	Prefetch int
}

// Consumer читает очередь RabbitMQ и переподписывается после переподключения.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	accept   []MessageType
	prefetch int

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", string(cfg.Queue)),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		accept:   cfg.Accept,
		prefetch: prefetch,
	}
}

// Start читает очередь до отмены ctx или вызова Stop. Блокирует.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for ctx.Err() == nil {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect")
		}

		select {
		case <-ctx.Done():
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, resubscribing")
		}
	}
	return ctx.Err()
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// subscribe выставляет prefetch и подписывается на очередь с ручным ack.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

// drain обрабатывает сообщения, пока канал открыт и ctx не отменён.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery разбирает сообщение, вызывает обработчик и подтверждает доставку.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err, "body", string(raw.Body))
		c.ack(raw, "", settleDead)
		return
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)

	if len(c.accept) > 0 && !slices.Contains(c.accept, msg.Type) {
		logger.Error("message rejected", "error", ErrUnexpectedType)
		c.ack(raw, msg.ID, settleDead)
		return
	}

	logger.Debug("received message", "redelivered", raw.Redelivered)

	err := c.handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered})
	decision := settle(err)
	if err != nil {
		logger.Error("handler failed", "decision", decision, "error", err)
	}
	c.ack(raw, msg.ID, decision)
}

// ack применяет решение к доставке.
func (c *Consumer) ack(raw amqp.Delivery, messageID string, decision settlement) {
	var err error
	switch decision {
	case settleAck:
		err = raw.Ack(false)
	case settleRequeue:
		err = raw.Nack(false, true)
	default:
		err = raw.Nack(false, false)
	}
	telemetry.Messages.WithLabelValues(string(c.queue), string(decision)).Inc()

	if err != nil {
		c.logger.Warn("failed to settle message",
			"message_id", messageID,
			"decision", decision,
			"error", err,
		)
	}
}

// ParsePayload разбирает payload сообщения в тип T.
//
// После json.Unmarshal в Message payload — map[string]any, поэтому он
// перекодируется через JSON.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
