// Package memq — брокер в памяти процесса.
//
// Используется в тестах worker'а и для запуска без брокера
// (broker=memory). Записывает idle-sleep'ы, settle-действия и
// максимальное количество одновременно неподтверждённых сообщений.
package memq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shaiso/Taskq/internal/domain"
)

// Ошибки memq.
var (
	// ErrUnknownToken — токен не выдан или уже использован.
	ErrUnknownToken = errors.New("unknown ack token")
)

// Settlement — одно settle-действие над сообщением.
type Settlement struct {
	Token    domain.AckToken
	Action   string
	Envelope domain.Envelope
}

type pending struct {
	queue string
	env   domain.Envelope
}

// Queue — очередь в памяти.
type Queue struct {
	mu      sync.Mutex
	queues  map[string][]domain.Envelope
	pending map[domain.AckToken]pending
	seq     uint64

	fetches     int
	maxInFlight int
	sleeps      []time.Duration
	settled     []Settlement

	realSleep bool
	fetchErr  error
	onSleep   func(time.Duration)
}

// Option настраивает Queue.
type Option func(*Queue)

// WithRealSleep заставляет IdleSleep действительно ждать.
func WithRealSleep() Option {
	return func(q *Queue) { q.realSleep = true }
}

// WithSleepHook вызывает fn на каждый IdleSleep (после записи).
func WithSleepHook(fn func(time.Duration)) Option {
	return func(q *Queue) { q.onSleep = fn }
}

// New создаёт пустую очередь.
func New(opts ...Option) *Queue {
	q := &Queue{
		queues:  make(map[string][]domain.Envelope),
		pending: make(map[domain.AckToken]pending),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish добавляет envelope в конец очереди.
func (q *Queue) Publish(_ context.Context, queue string, env domain.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queues[queue] = append(q.queues[queue], env)
	return nil
}

// FetchOne забирает первое сообщение очереди.
func (q *Queue) FetchOne(_ context.Context, queue string) (domain.Delivery, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fetchErr != nil {
		return domain.Delivery{}, false, q.fetchErr
	}
	q.fetches++

	msgs := q.queues[queue]
	if len(msgs) == 0 {
		return domain.Delivery{}, false, nil
	}

	env := msgs[0]
	q.queues[queue] = msgs[1:]

	q.seq++
	token := domain.AckToken(strconv.FormatUint(q.seq, 10))
	q.pending[token] = pending{queue: queue, env: env}
	if len(q.pending) > q.maxInFlight {
		q.maxInFlight = len(q.pending)
	}

	return domain.Delivery{Token: token, Envelope: env}, true, nil
}

// Ack подтверждает сообщение.
func (q *Queue) Ack(_ context.Context, token domain.AckToken) error {
	_, err := q.settle(token, "ack")
	return err
}

// Reject возвращает сообщение в начало очереди.
func (q *Queue) Reject(_ context.Context, token domain.AckToken) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, err := q.settleLocked(token, "reject")
	if err != nil {
		return err
	}
	q.queues[p.queue] = append([]domain.Envelope{p.env}, q.queues[p.queue]...)
	return nil
}

// Discard удаляет сообщение без возврата.
func (q *Queue) Discard(_ context.Context, token domain.AckToken) error {
	_, err := q.settle(token, "discard")
	return err
}

func (q *Queue) settle(token domain.AckToken, action string) (pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settleLocked(token, action)
}

func (q *Queue) settleLocked(token domain.AckToken, action string) (pending, error) {
	p, ok := q.pending[token]
	if !ok {
		return pending{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	delete(q.pending, token)
	q.settled = append(q.settled, Settlement{Token: token, Action: action, Envelope: p.env})
	return p, nil
}

// IdleSleep записывает паузу и, если включено, ждёт её.
func (q *Queue) IdleSleep(ctx context.Context, d time.Duration) {
	q.mu.Lock()
	q.sleeps = append(q.sleeps, d)
	wait, hook := q.realSleep, q.onSleep
	q.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	if !wait {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// FailFetch заставляет все последующие FetchOne возвращать err.
func (q *Queue) FailFetch(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fetchErr = err
}

// Len возвращает количество сообщений, ожидающих в очереди.
func (q *Queue) Len(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queue])
}

// Stats возвращает количество ожидающих сообщений.
func (q *Queue) Stats(_ context.Context, queue string) (domain.QueueStats, error) {
	return domain.QueueStats{Name: queue, Messages: q.Len(queue)}, nil
}

// Purge удаляет все ожидающие сообщения очереди.
func (q *Queue) Purge(_ context.Context, queue string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.queues[queue])
	delete(q.queues, queue)
	return n, nil
}

// Unsettled возвращает количество выданных, но не подтверждённых сообщений.
func (q *Queue) Unsettled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// MaxInFlight возвращает максимум одновременно неподтверждённых сообщений.
func (q *Queue) MaxInFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxInFlight
}

// Fetches возвращает количество успешных вызовов FetchOne (включая пустые).
func (q *Queue) Fetches() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fetches
}

// Sleeps возвращает копию записанных пауз.
func (q *Queue) Sleeps() []time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]time.Duration(nil), q.sleeps...)
}

// Settled возвращает копию settle-действий в порядке выполнения.
func (q *Queue) Settled() []Settlement {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Settlement(nil), q.settled...)
}
