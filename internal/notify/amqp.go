package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
)

// AMQPPublisher republishes product updates to a RabbitMQ topic exchange so
// downstream services can consume them. Like the websocket hub it is
// best-effort: publish failures are logged and dropped, never retried.
type AMQPPublisher struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange, routingKey string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (p *AMQPPublisher) Emit(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	err = p.ch.Publish(
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		slog.Warn("amqp publish failed", "kind", ev.Kind, "subject", ev.SubjectID, "err", err)
	}
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
