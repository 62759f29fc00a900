package broker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskq/internal/config"
	"github.com/shaiso/Taskq/internal/domain"
)

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, &config.Config{Broker: config.BrokerMemory}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, config.BrokerMemory, b.Kind())
	require.NoError(t, b.Prepare(ctx, "jobs"))

	env := domain.NewEnvelope("echo", nil, nil)
	require.NoError(t, b.Publish(ctx, "jobs", env))

	st, err := b.Stats(ctx, "jobs")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Messages)

	d, ok, err := b.FetchOne(ctx, "jobs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env.ID, d.Envelope.ID)
	require.NoError(t, b.Ack(ctx, d.Token))
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Broker: "kafka"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBroker)
}
