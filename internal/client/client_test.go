package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/memq"
	"github.com/shaiso/Taskq/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSend_PublishesEnvelope(t *testing.T) {
	q := memq.New()
	c := New(Config{Sender: q, Queue: "jobs", Logger: testLogger()})

	env, err := c.Send(context.Background(), "remote.task", []any{1, "a"}, map[string]any{"k": true})
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)

	d, ok, err := q.FetchOne(context.Background(), "jobs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env.ID, d.Envelope.ID)
	assert.Equal(t, "remote.task", d.Envelope.Task)
	assert.Equal(t, []any{1, "a"}, d.Envelope.Args)
	assert.Equal(t, map[string]any{"k": true}, d.Envelope.Kwargs)
}

func TestQueueFor(t *testing.T) {
	c := New(Config{Queue: "default", Logger: testLogger()})
	c.Register("pinned", func(context.Context, []any, map[string]any) (any, error) { return nil, nil },
		task.WithQueue("reports"))

	assert.Equal(t, "default", c.QueueFor("other"))
	assert.Equal(t, "reports", c.QueueFor("pinned"))
	assert.Equal(t, "override", c.QueueFor("pinned", ToQueue("override")))
	assert.Equal(t, domain.LocalQueueName("default"), c.QueueFor("other", Local(true)))

	local := New(Config{Queue: "default", Local: true, Logger: testLogger()})
	assert.Equal(t, domain.LocalQueueName("default"), local.QueueFor("x"))
	assert.Equal(t, "default", local.QueueFor("x", Local(false)))
}

func TestSend_Eager(t *testing.T) {
	var got []any
	reg := task.NewRegistry()
	reg.Register("add", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		got = args
		return nil, nil
	})
	reg.Register("broken", func(context.Context, []any, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	q := memq.New()
	c := New(Config{Registry: reg, Sender: q, Eager: true, Logger: testLogger()})

	_, err := c.Send(context.Background(), "add", []any{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, got)
	assert.Zero(t, q.Len("taskq"), "eager mode bypasses the broker")

	_, err = c.Send(context.Background(), "broken", nil, nil)
	assert.ErrorContains(t, err, "boom")

	_, err = c.Send(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, task.ErrTaskNotFound)

	_, err = c.Send(context.Background(), "add", nil, nil, Eager(false))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len("taskq"))
}

func TestSend_NoSender(t *testing.T) {
	c := New(Config{Logger: testLogger()})
	_, err := c.Send(context.Background(), "x", nil, nil)
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestSend_PreSendHooks(t *testing.T) {
	var order []string
	reg := task.NewRegistry()
	tk := reg.Register("hooked", func(context.Context, []any, map[string]any) (any, error) { return nil, nil })

	reg.Hooks().On(task.StagePreSend, func(_ context.Context, ev task.Event) error {
		order = append(order, "registry:"+ev.Envelope.Task)
		return errors.New("ignored")
	})
	tk.Hooks().On(task.StagePreSend, func(context.Context, task.Event) error {
		order = append(order, "task")
		panic("ignored too")
	})

	c := New(Config{Registry: reg, Sender: memq.New(), Logger: testLogger()})
	_, err := c.Send(context.Background(), "hooked", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"registry:hooked", "task"}, order)

	order = nil
	_, err = c.Send(context.Background(), "unregistered", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"registry:unregistered"}, order)
}
