package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Taskq/internal/domain"
)

// Queue — адаптер брокера для worker'а: забирает по одному сообщению
// через basic.get без auto-ack.
type Queue struct {
	conn     *Connection
	topology *Topology
	logger   *slog.Logger
}

// NewQueue создаёт адаптер.
func NewQueue(conn *Connection, topology *Topology, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		conn:     conn,
		topology: topology,
		logger:   logger,
	}
}

// FetchOne забирает одно сообщение.
//
// Сообщения, которые не декодируются в envelope, отбрасываются здесь же
// и до worker'а не доходят.
func (q *Queue) FetchOne(ctx context.Context, queue string) (domain.Delivery, bool, error) {
	if err := q.topology.Ensure(ctx, queue); err != nil {
		return domain.Delivery{}, false, err
	}

	for {
		ch, gen := q.conn.Channel()
		if ch == nil {
			return domain.Delivery{}, false, ErrNotConnected
		}

		msg, ok, err := ch.Get(queue, false)
		if err != nil {
			return domain.Delivery{}, false, fmt.Errorf("basic.get %s: %w", queue, err)
		}
		if !ok {
			return domain.Delivery{}, false, nil
		}

		env, err := decodeEnvelope(msg)
		if err != nil {
			q.logger.Error("malformed message discarded",
				"queue", queue,
				"message_id", msg.MessageId,
				"error", err,
				"body", truncate(string(msg.Body), 512),
			)
			// Некорректное сообщение — в DLX, если он настроен
			if err := msg.Reject(false); err != nil {
				return domain.Delivery{}, false, fmt.Errorf("discard malformed message: %w", err)
			}
			continue
		}

		q.logger.Debug("received envelope",
			"queue", queue,
			"envelope_id", env.ID,
			"task", env.Task,
			"redelivered", msg.Redelivered,
		)

		return domain.Delivery{
			Token:    encodeToken(gen, msg.DeliveryTag),
			Envelope: env,
		}, true, nil
	}
}

func decodeEnvelope(msg amqp.Delivery) (domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Task == "" {
		return env, fmt.Errorf("envelope has no task name")
	}
	if env.ID == "" {
		env.ID = msg.MessageId
	}
	if env.Args == nil {
		env.Args = []any{}
	}
	if env.Kwargs == nil {
		env.Kwargs = map[string]any{}
	}
	return env, nil
}

// Ack подтверждает сообщение.
func (q *Queue) Ack(_ context.Context, token domain.AckToken) error {
	return q.settle(token, "ack", func(ch *amqp.Channel, tag uint64) error {
		return ch.Ack(tag, false)
	})
}

// Reject возвращает сообщение в очередь.
func (q *Queue) Reject(_ context.Context, token domain.AckToken) error {
	return q.settle(token, "reject", func(ch *amqp.Channel, tag uint64) error {
		return ch.Reject(tag, true)
	})
}

// Discard отбрасывает сообщение (в DLX, если он настроен).
func (q *Queue) Discard(_ context.Context, token domain.AckToken) error {
	return q.settle(token, "discard", func(ch *amqp.Channel, tag uint64) error {
		return ch.Reject(tag, false)
	})
}

func (q *Queue) settle(token domain.AckToken, action string, fn func(ch *amqp.Channel, tag uint64) error) error {
	gen, tag, err := decodeToken(token)
	if err != nil {
		return err
	}

	ch, cur := q.conn.Channel()
	if ch == nil {
		return ErrNotConnected
	}
	if gen != cur {
		return fmt.Errorf("%w: %s", ErrStaleToken, token)
	}

	if err := fn(ch, tag); err != nil {
		return fmt.Errorf("%s delivery %d: %w", action, tag, err)
	}
	return nil
}

// IdleSleep ждёт d или отмены ctx.
func (q *Queue) IdleSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Stats возвращает количество сообщений и consumer'ов очереди.
func (q *Queue) Stats(ctx context.Context, queue string) (domain.QueueStats, error) {
	var st domain.QueueStats
	err := q.conn.WithTempChannel(ctx, func(ch *amqp.Channel) error {
		info, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("inspect queue %s: %w", queue, err)
		}
		st = domain.QueueStats{Name: info.Name, Messages: info.Messages, Consumers: info.Consumers}
		return nil
	})
	return st, err
}

// Purge удаляет все готовые сообщения очереди и возвращает их количество.
func (q *Queue) Purge(ctx context.Context, queue string) (int, error) {
	var n int
	err := q.conn.WithTempChannel(ctx, func(ch *amqp.Channel) error {
		purged, err := ch.QueuePurge(queue, false)
		if err != nil {
			return fmt.Errorf("purge queue %s: %w", queue, err)
		}
		n = purged
		return nil
	})
	return n, err
}

// encodeToken упаковывает поколение соединения и delivery tag.
func encodeToken(gen, tag uint64) domain.AckToken {
	return domain.AckToken(strconv.FormatUint(gen, 10) + ":" + strconv.FormatUint(tag, 10))
}

func decodeToken(token domain.AckToken) (gen, tag uint64, err error) {
	genPart, tagPart, ok := strings.Cut(string(token), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadToken, token)
	}
	if gen, err = strconv.ParseUint(genPart, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadToken, token)
	}
	if tag, err = strconv.ParseUint(tagPart, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadToken, token)
	}
	return gen, tag, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
