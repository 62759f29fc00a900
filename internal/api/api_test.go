package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/memq"
	"github.com/shaiso/Taskq/internal/repo"
	"github.com/shaiso/Taskq/internal/telemetry"
	"github.com/shaiso/Taskq/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWorker struct {
	running atomic.Bool
	stops   atomic.Int32
}

func (f *fakeWorker) Status() worker.Status {
	return worker.Status{
		Queue:         "jobs",
		Hostname:      "host-1",
		Running:       f.running.Load(),
		StopRequested: f.stops.Load() > 0,
		StartedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Processed:     7,
		Limits:        worker.Limits{MaxRunTime: 90 * time.Second, MaxTasks: 100, MaxLoad: 4},
		Current:       &worker.Current{EnvelopeID: "env-1", Task: "echo"},
	}
}

func (f *fakeWorker) Stop() {
	f.stops.Add(1)
}

type fakeExecutions struct {
	got  repo.ExecutionFilter
	list []domain.Execution
	err  error
}

func (f *fakeExecutions) ListRecent(_ context.Context, filter repo.ExecutionFilter) ([]domain.Execution, error) {
	f.got = filter
	return f.list, f.err
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.NewMux().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestHealthz(t *testing.T) {
	rec := serve(NewHandler(Config{Logger: testLogger()}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	m.ObserveTask("echo", "SUCCESS", 10*time.Millisecond)

	rec := serve(NewHandler(Config{Gatherer: reg, Logger: testLogger()}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `taskq_tasks_processed_total{outcome="SUCCESS",task="echo"} 1`)
	assert.Contains(t, rec.Body.String(), "taskq_worker_overloaded 0")
}

func TestGetWorker(t *testing.T) {
	w := &fakeWorker{}
	w.running.Store(true)

	rec := serve(NewHandler(Config{Worker: w, Logger: testLogger()}), http.MethodGet, "/api/v1/worker", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got WorkerResponse
	decodeData(t, rec, &got)
	assert.Equal(t, "jobs", got.Queue)
	assert.True(t, got.Running)
	assert.Equal(t, int64(7), got.Processed)
	assert.Equal(t, 90.0, got.Limits.MaxRunTimeSec)
	require.NotNil(t, got.Current)
	assert.Equal(t, "echo", got.Current.Task)
	require.NotNil(t, got.StartedAt)

	rec = serve(NewHandler(Config{Logger: testLogger()}), http.MethodGet, "/api/v1/worker", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStopWorker(t *testing.T) {
	w := &fakeWorker{}
	h := NewHandler(Config{Worker: w, Logger: testLogger()})

	rec := serve(h, http.MethodPost, "/api/v1/worker/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, w.stops.Load())

	w.running.Store(true)
	rec = serve(h, http.MethodPost, "/api/v1/worker/stop", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got WorkerResponse
	decodeData(t, rec, &got)
	assert.True(t, got.StopRequested)

	rec = serve(h, http.MethodPost, "/api/v1/worker/stop", "")
	assert.Equal(t, http.StatusAccepted, rec.Code, "stop is idempotent")
	assert.Equal(t, int32(2), w.stops.Load())

	rec = serve(h, http.MethodGet, "/api/v1/worker/stop", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListExecutions(t *testing.T) {
	ex := &fakeExecutions{list: []domain.Execution{{
		ID:       "1",
		Task:     "echo",
		Outcome:  domain.OutcomeFailed,
		Action:   "discard",
		Error:    "boom",
		Duration: 250 * time.Millisecond,
	}}}
	h := NewHandler(Config{Executions: ex, Logger: testLogger()})

	rec := serve(h, http.MethodGet, "/api/v1/executions?task=echo&outcome=failed&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repo.ExecutionFilter{Task: "echo", Outcome: "FAILED", Limit: 5}, ex.got)

	var got []ExecutionResponse
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "FAILED", got[0].Outcome)
	assert.Equal(t, int64(250), got[0].DurationMS)

	rec = serve(h, http.MethodGet, "/api/v1/executions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ex.err = errors.New("db down")
	rec = serve(h, http.MethodGet, "/api/v1/executions", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(NewHandler(Config{Logger: testLogger()}), http.MethodGet, "/api/v1/executions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendTask(t *testing.T) {
	q := memq.New()
	c := client.New(client.Config{Sender: q, Queue: "jobs", Logger: testLogger()})
	h := NewHandler(Config{Sender: c, Tasks: c.Registry().Names, Logger: testLogger()})

	rec := serve(h, http.MethodPost, "/api/v1/tasks/echo/send", `{"args":["hi"],"queue":"other"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got SendTaskResponse
	decodeData(t, rec, &got)
	assert.Equal(t, "echo", got.Task)
	assert.Equal(t, "other", got.Queue)
	assert.NotEmpty(t, got.EnvelopeID)
	assert.Equal(t, 1, q.Len("other"))

	rec = serve(h, http.MethodPost, "/api/v1/tasks/echo/send", "")
	assert.Equal(t, http.StatusAccepted, rec.Code, "empty body sends without arguments")
	assert.Equal(t, 1, q.Len("jobs"))

	rec = serve(h, http.MethodPost, "/api/v1/tasks/echo/send", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noBroker := NewHandler(Config{Sender: client.New(client.Config{Logger: testLogger()}), Logger: testLogger()})
	rec = serve(noBroker, http.MethodPost, "/api/v1/tasks/echo/send", "{}")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListTasks(t *testing.T) {
	c := client.New(client.Config{Logger: testLogger()})
	c.Register("b", func(context.Context, []any, map[string]any) (any, error) { return nil, nil })
	c.Register("a", func(context.Context, []any, map[string]any) (any, error) { return nil, nil })

	rec := serve(NewHandler(Config{Tasks: c.Registry().Names, Logger: testLogger()}), http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []string
	decodeData(t, rec, &got)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestRecovery(t *testing.T) {
	h := Chain(Recovery(testLogger()), Logging(testLogger()))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"not found", fmt.Errorf("get: %w", repo.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"no sender", client.ErrNoSender, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.True(t, HandleError(rec, testLogger(), tt.err))
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}

	assert.False(t, HandleError(httptest.NewRecorder(), testLogger(), nil))
}

func TestLevelForStatus(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, levelForStatus(http.StatusAccepted))
	assert.Equal(t, slog.LevelWarn, levelForStatus(http.StatusConflict))
	assert.Equal(t, slog.LevelError, levelForStatus(http.StatusServiceUnavailable))
}
