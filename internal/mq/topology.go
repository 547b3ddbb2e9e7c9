package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена объектов RabbitMQ.
type (
	Exchange   string
	Queue      string
	RoutingKey string
)

const (
	// ExchangeJobs (direct) — запросы на выполнение и события job'ов.
	ExchangeJobs Exchange = "fleet.jobs"

	// ExchangeEvents (topic) — события устройств и алерты.
	ExchangeEvents Exchange = "fleet.events"

	// ExchangeDLQ (direct) — отклонённые job'ы.
	ExchangeDLQ Exchange = "fleet.dlq"
)

const (
	QueueJobsExecute  Queue = "jobs.execute"
	QueueEventsDevice Queue = "events.device"
	QueueEventsAlerts Queue = "events.alerts"
	QueueEventsJobs   Queue = "events.jobs"
	QueueDLQJobs      Queue = "dlq.jobs"
)

// Ключи маршрутизации. В fleet.events события устройств идут с ключом
// device.<событие>, алерты — alert.<severity>.
const (
	RoutingKeyExecute   RoutingKey = "execute"
	RoutingKeyProgress  RoutingKey = "progress"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQJobs   RoutingKey = "jobs"

	RoutingKeyDevicePattern RoutingKey = "device.#"
	RoutingKeyAlertPattern  RoutingKey = "alert.#"
)

// DeviceEventKey возвращает routing key события устройства.
func DeviceEventKey(name string) RoutingKey {
	return RoutingKey("device." + name)
}

// AlertKey возвращает routing key алерта.
func AlertKey(severity string) RoutingKey {
	return RoutingKey("alert." + severity)
}

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

var exchanges = []exchangeDecl{
	{ExchangeJobs, amqp.ExchangeDirect},
	{ExchangeEvents, amqp.ExchangeTopic},
	{ExchangeDLQ, amqp.ExchangeDirect},
}

// Неразбираемые job'ы и job'ы с неизвестным workflow уходят из
// jobs.execute в dlq.jobs.
var queues = []queueDecl{
	{QueueJobsExecute, amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}},
	{QueueEventsDevice, nil},
	{QueueEventsAlerts, nil},
	{QueueEventsJobs, nil},
	{QueueDLQJobs, nil},
}

var bindings = []binding{
	{QueueJobsExecute, RoutingKeyExecute, ExchangeJobs},
	{QueueEventsJobs, RoutingKeyProgress, ExchangeJobs},
	{QueueEventsJobs, RoutingKeyCompleted, ExchangeJobs},
	{QueueEventsDevice, RoutingKeyDevicePattern, ExchangeEvents},
	{QueueEventsAlerts, RoutingKeyAlertPattern, ExchangeEvents},
	{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
}

// SetupTopology объявляет durable exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, declare)
}

func declare(ch *amqp.Channel) error {
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	for _, b := range bindings {
		if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind %s to %s/%s: %w", b.queue, b.exchange, b.routingKey, err)
		}
	}
	return nil
}

// TopologyInfo описывает топологию для debug-лога:
// exchange (тип) → queue [routing keys].
func TopologyInfo() string {
	var sb strings.Builder
	sb.WriteString("fleet RabbitMQ topology:")

	for _, ex := range exchanges {
		fmt.Fprintf(&sb, "\n  %s (%s)", ex.name, ex.kind)

		var order []Queue
		keys := map[Queue][]string{}
		for _, b := range bindings {
			if b.exchange != ex.name {
				continue
			}
			if _, seen := keys[b.queue]; !seen {
				order = append(order, b.queue)
			}
			keys[b.queue] = append(keys[b.queue], string(b.routingKey))
		}

		for _, q := range order {
			fmt.Fprintf(&sb, "\n    → %s [%s]", q, strings.Join(keys[q], ", "))
			if dlx := deadLetterExchange(q); dlx != "" {
				fmt.Fprintf(&sb, " dead-letter: %s", dlx)
			}
		}
	}
	return sb.String()
}

func deadLetterExchange(name Queue) string {
	for _, q := range queues {
		if q.name == name {
			dlx, _ := q.args["x-dead-letter-exchange"].(string)
			return dlx
		}
	}
	return ""
}
