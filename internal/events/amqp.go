package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher delivers outbox entries to a topic exchange, routed by
// event type.
type AMQPPublisher struct {
	channel  amqpChannel
	exchange string
}

// DialAMQP connects and declares the exchange. The returned close func
// releases the channel and connection.
func DialAMQP(url, exchange string) (*AMQPPublisher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("events: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("events: amqp channel: %w", err)
	}
	pub, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	closeFn := func() error {
		ch.Close()
		return conn.Close()
	}
	return pub, closeFn, nil
}

func NewAMQPPublisher(channel amqpChannel, exchange string) (*AMQPPublisher, error) {
	if channel == nil {
		panic("events: amqp channel required")
	}
	if exchange == "" {
		exchange = "intake.emergency"
	}
	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("events: declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{channel: channel, exchange: exchange}, nil
}

// Handle implements DeliveryHandler.
func (p *AMQPPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.ID.String(),
		Type:         entry.Type,
		Timestamp:    entry.CreatedAt,
		Body:         entry.Payload,
		Headers: amqp.Table{
			"session_id": entry.SessionID,
		},
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, entry.Type, false, false, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.ID, err)
	}
	return nil
}
