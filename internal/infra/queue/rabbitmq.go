package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"carry-core/internal/domain"
	"carry-core/internal/infra/metrics"
)

// RabbitEventStream читает сырые события чат-провайдера из очереди RabbitMQ.
// Подтверждение ручное: событие перечитывается, пока обработчик не ack-нет его.
type RabbitEventStream struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
	queue      string
}

var _ domain.RawEventStream = (*RabbitEventStream)(nil)

// NewRabbitEventStream подключается к брокеру и объявляет устойчивую очередь.
func NewRabbitEventStream(amqpURL, queue string) (*RabbitEventStream, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}

	start := time.Now()
	conn, err := amqp.Dial(amqpURL)
	metrics.ObserveNetworkRequest("rabbitmq", "dial", queue, start, err)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := channel.Qos(1, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	return &RabbitEventStream{
		conn:       conn,
		channel:    channel,
		deliveries: deliveries,
		queue:      queue,
	}, nil
}

// Receive блокирующе читает следующее событие.
func (s *RabbitEventStream) Receive(ctx context.Context) (domain.RawEvent, domain.RawAckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.RawEvent{}, nil, ctx.Err()
	case delivery, ok := <-s.deliveries:
		if !ok {
			return domain.RawEvent{}, nil, errors.New("rabbitmq: канал доставки закрыт")
		}
		ack := func(success bool) error {
			if success {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		return domain.RawEvent{
			Body:       delivery.Body,
			ReceivedAt: time.Now().UTC(),
		}, ack, nil
	}
}

// Close закрывает канал и соединение.
func (s *RabbitEventStream) Close() error {
	if err := s.channel.Close(); err != nil {
		_ = s.conn.Close()
		return err
	}
	return s.conn.Close()
}
