// Package client — сторона отправителя: регистрация task и Send.
//
// Send строит envelope, вызывает pre_send hooks и публикует его в
// очередь. В eager-режиме task выполняется сразу в вызывающей горутине,
// брокер не используется.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/task"
	"github.com/shaiso/Taskq/internal/telemetry"
)

// ErrNoSender — клиент не в eager-режиме и не имеет брокера.
var ErrNoSender = errors.New("client: no sender configured")

// Sender публикует envelope в очередь.
type Sender interface {
	Publish(ctx context.Context, queue string, env domain.Envelope) error
}

// Config — конфигурация Client.
type Config struct {
	Registry *task.Registry
	Sender   Sender

	// Queue — очередь по умолчанию.
	Queue string

	// Local — добавлять к имени очереди "_<hostname>".
	Local bool

	// Eager — выполнять task синхронно, без брокера.
	Eager bool

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Client отправляет task.
type Client struct {
	reg     *task.Registry
	sender  Sender
	queue   string
	local   bool
	eager   bool
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New создаёт Client.
func New(cfg Config) *Client {
	if cfg.Registry == nil {
		cfg.Registry = task.NewRegistry()
	}
	if cfg.Queue == "" {
		cfg.Queue = "taskq"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		reg:     cfg.Registry,
		sender:  cfg.Sender,
		queue:   cfg.Queue,
		local:   cfg.Local,
		eager:   cfg.Eager,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Registry возвращает реестр клиента.
func (c *Client) Registry() *task.Registry {
	return c.reg
}

// Register регистрирует task в реестре клиента.
func (c *Client) Register(name string, fn task.Func, opts ...task.Option) *task.Task {
	return c.reg.Register(name, fn, opts...)
}

// IsEager сообщает, выполняет ли клиент task синхронно по умолчанию.
func (c *Client) IsEager() bool {
	return c.eager
}

// SendOption настраивает один вызов Send.
type SendOption func(*sendOptions)

type sendOptions struct {
	queue string
	local *bool
	eager *bool
}

// ToQueue отправляет в указанную очередь.
func ToQueue(queue string) SendOption {
	return func(o *sendOptions) { o.queue = queue }
}

// Local переопределяет локальность очереди для вызова.
func Local(local bool) SendOption {
	return func(o *sendOptions) { o.local = &local }
}

// Eager переопределяет eager-режим для вызова.
func Eager(eager bool) SendOption {
	return func(o *sendOptions) { o.eager = &eager }
}

// QueueFor возвращает очередь, в которую уйдёт task name.
//
// Приоритет: ToQueue, очередь task из реестра, очередь клиента.
func (c *Client) QueueFor(name string, opts ...SendOption) string {
	o := c.options(opts)
	return c.queueFor(name, o)
}

func (c *Client) options(opts []SendOption) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (c *Client) queueFor(name string, o sendOptions) string {
	queue := o.queue
	if queue == "" {
		if t, err := c.reg.Resolve(name); err == nil && t.Queue != "" {
			queue = t.Queue
		}
	}
	if queue == "" {
		queue = c.queue
	}

	local := c.local
	if o.local != nil {
		local = *o.local
	}
	if local {
		queue = domain.LocalQueueName(queue)
	}
	return queue
}

// Send отправляет вызов task.
//
// В eager-режиме возвращает ошибку самой task (nil при успехе).
func (c *Client) Send(ctx context.Context, name string, args []any, kwargs map[string]any, opts ...SendOption) (domain.Envelope, error) {
	o := c.options(opts)
	env := domain.NewEnvelope(name, args, kwargs)
	queue := c.queueFor(name, o)

	t, _ := c.reg.Resolve(name)
	var taskHooks *task.Hooks
	if t != nil {
		taskHooks = t.Hooks()
	}
	task.Fire(ctx, c.logger, task.StagePreSend, task.Event{Task: t, Envelope: env}, c.reg.Hooks(), taskHooks)

	eager := c.eager
	if o.eager != nil {
		eager = *o.eager
	}

	if eager {
		c.metrics.TaskSent(name, "eager")
		outcome, err := task.Run(ctx, c.reg, env, c.logger)
		if err != nil {
			return env, fmt.Errorf("eager %s (%s): %w", name, outcome, err)
		}
		return env, nil
	}

	if c.sender == nil {
		return env, ErrNoSender
	}
	if err := c.sender.Publish(ctx, queue, env); err != nil {
		return env, fmt.Errorf("send %s to %s: %w", name, queue, err)
	}

	c.metrics.TaskSent(name, "queue")
	c.logger.Debug("task sent",
		"task", name,
		"queue", queue,
		"envelope_id", env.ID,
	)
	return env, nil
}
