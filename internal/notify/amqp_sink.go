package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"parking_lifecycle/internal/domain"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const routingKeyPrefix = "parking."

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes notifications as JSON to a topic exchange, keyed parking.<kind>.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      amqpPublisher
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, pub: ch, exchange: exchange}, nil
}

func RoutingKey(kind domain.NotificationKind) string {
	return routingKeyPrefix + string(kind)
}

func (s *AMQPSink) Emit(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = s.pub.PublishWithContext(ctx, s.exchange, RoutingKey(n.Event.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.Event.ID,
		Timestamp:    n.Event.Timestamp,
		Type:         string(n.Event.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: amqp publish: %w", domain.ErrSinkUnavailable, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.CloseDeadline(time.Now().Add(5 * time.Second))
	}
	return nil
}
