package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StatusPublisher emits job status events to a topic exchange.
type StatusPublisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewStatusPublisher(conn *amqp.Connection, exchange, routingKey string) (*StatusPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &StatusPublisher{channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.channel.PublishWithContext(ctx,
		sp.exchange,
		sp.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

func (sp *StatusPublisher) Close() error {
	return sp.channel.Close()
}
