package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/zapdesk/zapdesk/domains/integration"
)

// AmqpPublisher pushes integration events to a topic exchange. The routing
// key is the event name, so consumers can bind with patterns like
// "ticket.*".
type AmqpPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

func NewAmqpPublisher(url, exchange string) (*AmqpPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &AmqpPublisher{conn: conn, exchange: exchange}, nil
}

func (p *AmqpPublisher) Publish(ctx context.Context, event integration.Event) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msgID := event.ID.String()
	if event.ID == uuid.Nil {
		msgID = uuid.NewString()
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, event.Name, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"event":    event.Name,
			"exchange": p.exchange,
		}).Debug("[BROKER] Event published")
	}
	return err
}

func (p *AmqpPublisher) Close() error {
	return p.conn.Close()
}

// NoopPublisher is used when the broker is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event integration.Event) error { return nil }
func (NoopPublisher) Close() error                                               { return nil }
