package memq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskq/internal/domain"
)

func TestQueue_FetchSettle(t *testing.T) {
	ctx := context.Background()
	q := New()

	first := domain.NewEnvelope("a", nil, nil)
	second := domain.NewEnvelope("b", nil, nil)
	require.NoError(t, q.Publish(ctx, "q", first))
	require.NoError(t, q.Publish(ctx, "q", second))

	d, ok, err := q.FetchOne(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, d.Envelope.ID)

	require.NoError(t, q.Reject(ctx, d.Token))
	assert.Equal(t, 2, q.Len("q"))

	// Отклонённое сообщение снова первое.
	d, ok, err = q.FetchOne(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, d.Envelope.ID)
	require.NoError(t, q.Ack(ctx, d.Token))

	assert.ErrorIs(t, q.Ack(ctx, d.Token), ErrUnknownToken)
	assert.ErrorIs(t, q.Discard(ctx, "nope"), ErrUnknownToken)

	assert.Equal(t, 1, q.MaxInFlight())
	assert.Equal(t, 0, q.Unsettled())
	assert.Len(t, q.Settled(), 2)
}

func TestQueue_EmptyFetch(t *testing.T) {
	q := New()

	_, ok, err := q.FetchOne(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Fetches())
}

func TestQueue_IdleSleepRecordsWithoutWaiting(t *testing.T) {
	q := New()

	start := time.Now()
	q.IdleSleep(context.Background(), 10*time.Second)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []time.Duration{10 * time.Second}, q.Sleeps())
}

func TestQueue_RealSleepHonoursContext(t *testing.T) {
	q := New(WithRealSleep())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	q.IdleSleep(ctx, 10*time.Second)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueue_Purge(t *testing.T) {
	ctx := context.Background()
	q := New()
	require.NoError(t, q.Publish(ctx, "q", domain.NewEnvelope("a", nil, nil)))
	require.NoError(t, q.Publish(ctx, "q", domain.NewEnvelope("b", nil, nil)))

	n, err := q.Purge(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, q.Len("q"))
}
