package mq

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeBuilds Exchange = "pipewright.builds"
	ExchangeDLQ    Exchange = "pipewright.dlq"
)

// Queues — имена очередей.
const (
	QueueBuildsRequested Queue = "builds.requested"
	QueueBuildsCompleted Queue = "builds.completed"
	QueueDLQBuilds       Queue = "dlq.builds"
)

// Routing keys.
const (
	RoutingKeyRequested RoutingKey = "requested"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQBuilds RoutingKey = "builds"

	// RoutingKeyTemplatesChanged — широковещательный ключ: каждый воркер
	// привязывает к нему свою временную очередь.
	RoutingKeyTemplatesChanged RoutingKey = "templates.changed"
)

// TemplateQueue возвращает имя временной очереди template.changed
// для одного процесса воркера.
func TemplateQueue() Queue {
	return Queue("templates.changed." + uuid.NewString())
}

// declarePrivate объявляет временную очередь (exclusive, auto-delete)
// и привязывает её к pipewright.builds. Очередь живёт, пока жив канал,
// поэтому объявляется заново при каждом переподключении.
func declarePrivate(ch *amqp.Channel, queue Queue, key RoutingKey) error {
	if _, err := ch.QueueDeclare(string(queue), false, true, true, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(string(queue), string(key), string(ExchangeBuilds), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangeBuilds, err)
	}
	return nil
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

// topology — полное описание объектов брокера.
var topology = struct {
	exchanges []Exchange
	queues    []queueDecl
	bindings  []binding
}{
	exchanges: []Exchange{ExchangeBuilds, ExchangeDLQ},
	queues: []queueDecl{
		// builds.requested — с DLQ: сообщение, не обработанное после повтора, уходит в dlq.builds
		{QueueBuildsRequested, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQBuilds),
		}},
		{QueueBuildsCompleted, nil},
		{QueueDLQBuilds, nil},
	},
	bindings: []binding{
		{QueueBuildsRequested, RoutingKeyRequested, ExchangeBuilds},
		{QueueBuildsCompleted, RoutingKeyCompleted, ExchangeBuilds},
		{QueueDLQBuilds, RoutingKeyDLQBuilds, ExchangeDLQ},
	},
}

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range topology.exchanges {
			// durable, не auto-delete, не internal
			if err := ch.ExchangeDeclare(string(ex), "direct", true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, q := range topology.queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range topology.bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Pipewright RabbitMQ Topology:

    pipewright.builds (direct)
    ├── builds.requested [routing: requested]
    │       Consumer: Worker
    │       DLQ: dlq.builds
    ├── builds.completed [routing: completed]
    │       Consumer: внешние подписчики
    └── templates.changed.<id> [routing: templates.changed]
            Consumer: каждый Worker (exclusive, auto-delete)

    pipewright.dlq (direct)
    └── dlq.builds [routing: builds]
            Manual processing
`
}
