package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "INFO", "json").Info("hello", "task", "echo")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "echo", line["task"])

	buf.Reset()
	logger := NewLogger(&buf, "WARN", "text")
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.True(t, strings.Contains(buf.String(), "msg=kept"))
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithEnvelope(NewLogger(&buf, "INFO", "text"), "echo", "env-1")

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("inside")
	assert.Contains(t, buf.String(), "envelope_id=env-1")

	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTask("echo", "SUCCESS", time.Second)
	m.ExecutorRestarted("crash")
	m.LoadSampled(1, true)
	m.EmptyPoll()
	m.TaskSent("echo", "queue")
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTask("echo", "FAILED", time.Second)
	m.ExecutorRestarted("timeout")
	m.LoadSampled(3.5, true)
	m.LoadSampled(0.5, false)
	m.EmptyPoll()
	m.TaskSent("echo", "eager")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksProcessed.WithLabelValues("echo", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executorRestarts.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.overloadWaits))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.overloaded))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.loadAverage))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emptyPolls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksSent.WithLabelValues("echo", "eager")))
}
