package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Taskq/internal/domain"
)

// Publisher публикует envelope в очереди RabbitMQ.
type Publisher struct {
	conn     *Connection
	topology *Topology
	logger   *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, topology *Topology, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:     conn,
		topology: topology,
		logger:   logger,
	}
}

// Publish объявляет очередь (при необходимости) и публикует в неё envelope.
func (p *Publisher) Publish(ctx context.Context, queue string, env domain.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := p.topology.Ensure(ctx, queue); err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			"",    // default exchange
			queue, // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    env.ID,
				Timestamp:    env.SentAt,
				Type:         env.Task,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", queue, err)
		}

		p.logger.Debug("published envelope",
			"queue", queue,
			"envelope_id", env.ID,
			"task", env.Task,
		)

		return nil
	})
}
