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

// Exchanges — имена обменников.
const (
	ExchangeAutomations Exchange = "mailflow.automations"
	ExchangeDeliveries  Exchange = "mailflow.deliveries"
	ExchangeDLQ         Exchange = "mailflow.dlq"
)

// Queues — имена очередей.
const (
	QueueAutomationsEnrolled Queue = "automations.enrolled"
	QueueDeliveriesQueued    Queue = "deliveries.queued"
	QueueDLQDeliveries       Queue = "dlq.deliveries"
)

// Routing keys.
const (
	RoutingKeyEnrolled      RoutingKey = "enrolled"
	RoutingKeyQueued        RoutingKey = "queued"
	RoutingKeyDLQDeliveries RoutingKey = "deliveries"
)

// SetupTopology объявляет обменники, очереди и привязки.
//
// Очереди — только сигнал малой задержки: источником истины остаётся
// Postgres, polling подхватывает всё, что очередь потеряла.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		if err := bindQueues(ch); err != nil {
			return err
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeAutomations, "direct"},
		{ExchangeDeliveries, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Аргументы для очередей с DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQDeliveries),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// automations.enrolled — без DLQ (событие — только сигнал, polling подхватит)
		{QueueAutomationsEnrolled, nil},

		// deliveries.queued — с DLQ (задания могут уходить в DLQ после retry)
		{QueueDeliveriesQueued, dlqArgs},

		// dlq.deliveries — сама DLQ очередь
		{QueueDLQDeliveries, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueAutomationsEnrolled, RoutingKeyEnrolled, ExchangeAutomations},
		{QueueDeliveriesQueued, RoutingKeyQueued, ExchangeDeliveries},
		{QueueDLQDeliveries, RoutingKeyDLQDeliveries, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Mailflow RabbitMQ Topology:

    mailflow.automations (direct)
    └── automations.enrolled [routing: enrolled]
            Consumer: Engine

    mailflow.deliveries (direct)
    └── deliveries.queued [routing: queued]
            Consumer: Delivery worker
            DLQ: dlq.deliveries

    mailflow.dlq (direct)
    └── dlq.deliveries [routing: deliveries]
            Manual processing
  `
}
