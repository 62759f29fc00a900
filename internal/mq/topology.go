package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterExchange — обменник для отброшенных сообщений.
const DeadLetterExchange = "taskq.dlx"

// DeadLetterQueue возвращает имя очереди отброшенных сообщений для queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dead"
}

// Topology объявляет очереди по требованию, один раз на имя.
//
// Очереди durable, сообщения публикуются через default exchange с
// routing key = имя очереди. С deadLetter=true у очереди есть DLX:
// discard (basic.reject без requeue) перекладывает сообщение в
// <queue>.dead, иначе оно удаляется.
//
// Аргументы существующей очереди изменить нельзя: переключение
// dead_letter для уже объявленной очереди даёт PRECONDITION_FAILED.
type Topology struct {
	conn       *Connection
	deadLetter bool

	mu       sync.Mutex
	declared map[string]bool
}

// NewTopology создаёт Topology.
func NewTopology(conn *Connection, deadLetter bool) *Topology {
	return &Topology{
		conn:       conn,
		deadLetter: deadLetter,
		declared:   make(map[string]bool),
	}
}

// Ensure объявляет очередь, если она ещё не объявлена этим процессом.
func (t *Topology) Ensure(ctx context.Context, queue string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.declared[queue] {
		return nil
	}

	err := t.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if t.deadLetter {
			if err := declareDeadLetter(ch, queue); err != nil {
				return err
			}
		}
		return declareQueue(ch, queue, t.queueArgs(queue))
	})
	if err != nil {
		return err
	}

	t.declared[queue] = true
	return nil
}

func (t *Topology) queueArgs(queue string) amqp.Table {
	if !t.deadLetter {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": queue,
	}
}

// declareDeadLetter создаёт DLX и очередь <queue>.dead, привязанную к нему.
func declareDeadLetter(ch *amqp.Channel, queue string) error {
	err := ch.ExchangeDeclare(
		DeadLetterExchange, // name
		"direct",           // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", DeadLetterExchange, err)
	}

	dead := DeadLetterQueue(queue)
	if err := declareQueue(ch, dead, nil); err != nil {
		return err
	}

	err = ch.QueueBind(
		dead,               // queue name
		queue,              // routing key
		DeadLetterExchange, // exchange
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", dead, DeadLetterExchange, err)
	}
	return nil
}

func declareQueue(ch *amqp.Channel, queue string, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}
