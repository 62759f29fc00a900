// Package broker собирает адаптер брокера из конфигурации.
//
// Один Broker даёт обе стороны: Queue для worker'а (fetch/ack/reject/
// discard) и Publish для клиентов, плюс Stats/Purge для CLI.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Taskq/internal/config"
	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/memq"
	"github.com/shaiso/Taskq/internal/mq"
	"github.com/shaiso/Taskq/internal/redisq"
	"github.com/shaiso/Taskq/internal/worker"
)

// ErrUnknownBroker — в конфигурации неизвестный брокер.
var ErrUnknownBroker = errors.New("unknown broker")

// adapter — общая поверхность всех адаптеров.
type adapter interface {
	worker.Queue
	Publish(ctx context.Context, queue string, env domain.Envelope) error
	Stats(ctx context.Context, queue string) (domain.QueueStats, error)
	Purge(ctx context.Context, queue string) (int, error)
}

// Broker — открытый адаптер брокера.
type Broker struct {
	adapter

	kind    string
	prepare func(ctx context.Context, queue string) error
	close   func() error
}

// Open подключается к брокеру, выбранному в cfg.Broker.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Broker, error) {
	switch cfg.Broker {
	case config.BrokerAMQP:
		return openAMQP(cfg, logger)
	case config.BrokerRedis:
		return openRedis(ctx, cfg, logger)
	case config.BrokerMemory:
		return &Broker{
			adapter: memq.New(memq.WithRealSleep()),
			kind:    config.BrokerMemory,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, cfg.Broker)
	}
}

func openAMQP(cfg *config.Config, logger *slog.Logger) (*Broker, error) {
	url := mq.Config{
		Host:     cfg.RabbitMQ.Host,
		Port:     cfg.RabbitMQ.Port,
		User:     cfg.RabbitMQ.User,
		Password: cfg.RabbitMQ.Password,
		VHost:    cfg.RabbitMQ.VHost,
	}.URL()

	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	topology := mq.NewTopology(conn, cfg.DeadLetter)
	return &Broker{
		adapter: amqpAdapter{
			Queue:     mq.NewQueue(conn, topology, logger),
			Publisher: mq.NewPublisher(conn, topology, logger),
		},
		kind:    config.BrokerAMQP,
		prepare: topology.Ensure,
		close:   conn.Close,
	}, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Broker, error) {
	rdb, err := redisq.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	q := redisq.New(rdb, redisq.Config{
		DeadLetter: cfg.DeadLetter,
		Logger:     logger,
	})
	return &Broker{
		adapter: q,
		kind:    config.BrokerRedis,
		prepare: func(ctx context.Context, queue string) error {
			_, err := q.Recover(ctx, queue)
			return err
		},
		close: rdb.Close,
	}, nil
}

// amqpAdapter объединяет Queue и Publisher RabbitMQ.
type amqpAdapter struct {
	*mq.Queue
	*mq.Publisher
}

// Kind возвращает имя брокера.
func (b *Broker) Kind() string {
	return b.kind
}

// Prepare готовит очередь к работе worker'а: объявляет её в RabbitMQ или
// возвращает в очередь сообщения, оставшиеся после падения, в Redis.
func (b *Broker) Prepare(ctx context.Context, queue string) error {
	if b.prepare == nil {
		return nil
	}
	if err := b.prepare(ctx, queue); err != nil {
		return fmt.Errorf("prepare queue %s: %w", queue, err)
	}
	return nil
}

// Close закрывает соединение с брокером.
func (b *Broker) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}
