// Package redisq — адаптер брокера на списках Redis.
//
// Надёжная очередь (reliable queue):
//
//	publish  LPUSH  taskq:<queue>
//	fetch    LMOVE  taskq:<queue> → taskq:<queue>:processing:<consumer>
//	ack      LREM   processing
//	reject   LREM   processing + RPUSH taskq:<queue> (следующим в очереди)
//	discard  LREM   processing (+ LPUSH taskq:<queue>:dead)
//
// Сообщения, оставшиеся в processing после падения worker'а,
// возвращаются в очередь через Recover при следующем старте того же
// consumer'а. Consumer по умолчанию — hostname, поэтому несколько
// worker'ов одной очереди на одном хосте должны иметь разные Consumer.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Taskq/internal/domain"
)

// Ошибки адаптера Redis.
var (
	// ErrUnknownToken — токен не выдан этим адаптером или уже использован.
	ErrUnknownToken = errors.New("redis: unknown ack token")
)

// Config — конфигурация адаптера.
type Config struct {
	// Prefix — префикс ключей (default: "taskq").
	Prefix string

	// Consumer — имя списка processing (default: hostname).
	Consumer string

	// DeadLetter — сохранять отброшенные сообщения в <queue>:dead.
	DeadLetter bool

	Logger *slog.Logger
}

type inflight struct {
	queue string
	body  string
}

// Queue — адаптер брокера поверх redis.Client.
type Queue struct {
	rdb        *redis.Client
	prefix     string
	consumer   string
	deadLetter bool
	logger     *slog.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[domain.AckToken]inflight
}

// New создаёт адаптер.
func New(rdb *redis.Client, cfg Config) *Queue {
	if cfg.Prefix == "" {
		cfg.Prefix = "taskq"
	}
	if cfg.Consumer == "" {
		cfg.Consumer, _ = os.Hostname()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Queue{
		rdb:        rdb,
		prefix:     cfg.Prefix,
		consumer:   cfg.Consumer,
		deadLetter: cfg.DeadLetter,
		logger:     cfg.Logger,
		pending:    make(map[domain.AckToken]inflight),
	}
}

// Connect создаёт клиента и проверяет соединение.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// PendingKey возвращает ключ списка ожидающих сообщений.
func (q *Queue) PendingKey(queue string) string {
	return q.prefix + ":" + queue
}

// ProcessingKey возвращает ключ списка сообщений этого consumer'а.
func (q *Queue) ProcessingKey(queue string) string {
	return q.prefix + ":" + queue + ":processing:" + q.consumer
}

// DeadKey возвращает ключ списка отброшенных сообщений.
func (q *Queue) DeadKey(queue string) string {
	return q.prefix + ":" + queue + ":dead"
}

// Publish добавляет envelope в очередь.
func (q *Queue) Publish(ctx context.Context, queue string, env domain.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.PendingKey(queue), body).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", queue, err)
	}

	q.logger.Debug("published envelope",
		"queue", queue,
		"envelope_id", env.ID,
		"task", env.Task,
	)
	return nil
}

// FetchOne перекладывает одно сообщение в processing и возвращает его.
func (q *Queue) FetchOne(ctx context.Context, queue string) (domain.Delivery, bool, error) {
	for {
		body, err := q.rdb.LMove(ctx, q.PendingKey(queue), q.ProcessingKey(queue), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return domain.Delivery{}, false, nil
		}
		if err != nil {
			return domain.Delivery{}, false, fmt.Errorf("lmove %s: %w", queue, err)
		}

		env, err := decodeEnvelope(body)
		if err != nil {
			q.logger.Error("malformed message discarded",
				"queue", queue,
				"error", err,
				"body", truncate(body, 512),
			)
			if err := q.drop(ctx, queue, body); err != nil {
				return domain.Delivery{}, false, fmt.Errorf("discard malformed message: %w", err)
			}
			continue
		}

		q.mu.Lock()
		q.seq++
		token := domain.AckToken(strconv.FormatUint(q.seq, 10))
		q.pending[token] = inflight{queue: queue, body: body}
		q.mu.Unlock()

		return domain.Delivery{Token: token, Envelope: env}, true, nil
	}
}

func decodeEnvelope(body string) (domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Task == "" {
		return env, errors.New("envelope has no task name")
	}
	if env.Args == nil {
		env.Args = []any{}
	}
	if env.Kwargs == nil {
		env.Kwargs = map[string]any{}
	}
	return env, nil
}

// Ack удаляет сообщение из processing.
func (q *Queue) Ack(ctx context.Context, token domain.AckToken) error {
	m, err := q.take(token)
	if err != nil {
		return err
	}
	if err := q.rdb.LRem(ctx, q.ProcessingKey(m.queue), 1, m.body).Err(); err != nil {
		return fmt.Errorf("ack: lrem %s: %w", m.queue, err)
	}
	return nil
}

// Reject возвращает сообщение в голову очереди.
func (q *Queue) Reject(ctx context.Context, token domain.AckToken) error {
	m, err := q.take(token)
	if err != nil {
		return err
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.ProcessingKey(m.queue), 1, m.body)
		pipe.RPush(ctx, q.PendingKey(m.queue), m.body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reject %s: %w", m.queue, err)
	}
	return nil
}

// Discard удаляет сообщение (в dead-список, если он включён).
func (q *Queue) Discard(ctx context.Context, token domain.AckToken) error {
	m, err := q.take(token)
	if err != nil {
		return err
	}
	if err := q.drop(ctx, m.queue, m.body); err != nil {
		return fmt.Errorf("discard %s: %w", m.queue, err)
	}
	return nil
}

func (q *Queue) drop(ctx context.Context, queue, body string) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.ProcessingKey(queue), 1, body)
		if q.deadLetter {
			pipe.LPush(ctx, q.DeadKey(queue), body)
		}
		return nil
	})
	return err
}

func (q *Queue) take(token domain.AckToken) (inflight, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.pending[token]
	if !ok {
		return inflight{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	delete(q.pending, token)
	return m, nil
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

// Recover возвращает в очередь сообщения, оставшиеся в processing
// этого consumer'а. Вызывается до запуска worker'а.
func (q *Queue) Recover(ctx context.Context, queue string) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.ProcessingKey(queue), q.PendingKey(queue), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("recover %s: %w", queue, err)
		}
		n++
	}

	if n > 0 {
		q.logger.Warn("recovered unacknowledged messages",
			"queue", queue,
			"consumer", q.consumer,
			"count", n,
		)
	}
	return n, nil
}

// Len возвращает количество ожидающих сообщений.
func (q *Queue) Len(ctx context.Context, queue string) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.PendingKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", queue, err)
	}
	return n, nil
}

// Stats возвращает ожидающие сообщения, число consumer'ов с непустым
// processing и размер dead-списка.
func (q *Queue) Stats(ctx context.Context, queue string) (domain.QueueStats, error) {
	st := domain.QueueStats{Name: queue}

	var pending, dead *redis.IntCmd
	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, q.PendingKey(queue))
		dead = pipe.LLen(ctx, q.DeadKey(queue))
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("stats %s: %w", queue, err)
	}
	st.Messages = int(pending.Val())
	st.Dead = int(dead.Val())

	iter := q.rdb.Scan(ctx, 0, q.prefix+":"+queue+":processing:*", 100).Iterator()
	for iter.Next(ctx) {
		st.Consumers++
	}
	if err := iter.Err(); err != nil {
		return st, fmt.Errorf("scan consumers %s: %w", queue, err)
	}
	return st, nil
}

// Purge удаляет все ожидающие сообщения и возвращает их количество.
func (q *Queue) Purge(ctx context.Context, queue string) (int, error) {
	var llen *redis.IntCmd
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		llen = pipe.LLen(ctx, q.PendingKey(queue))
		pipe.Del(ctx, q.PendingKey(queue))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", queue, err)
	}
	return int(llen.Val()), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
