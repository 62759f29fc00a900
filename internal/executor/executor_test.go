package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/task"
)

// TestMain позволяет тестовому бинарнику работать дочерним процессом
// executor'а: Process перезапускает os.Args[0] с ChildEnv=1.
func TestMain(m *testing.M) {
	if IsChild() {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		if err := ServeChild(context.Background(), testRegistry(), logger); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *task.Registry {
	reg := task.NewRegistry()

	reg.Register("ok", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args, nil
	})
	reg.Register("reject", func(context.Context, []any, map[string]any) (any, error) {
		return nil, task.Reject("not now")
	})
	reg.Register("discard", func(context.Context, []any, map[string]any) (any, error) {
		return nil, task.Discard("bad input")
	})
	reg.Register("boom", func(context.Context, []any, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	reg.Register("panic", func(context.Context, []any, map[string]any) (any, error) {
		panic("kaboom")
	})
	reg.Register("sleep", func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, task.WithMaxRunTime(time.Second))
	reg.Register("hang", func(context.Context, []any, map[string]any) (any, error) {
		time.Sleep(5 * time.Second)
		return nil, nil
	}, task.WithMaxRunTime(time.Second))
	reg.Register("goexit", func(context.Context, []any, map[string]any) (any, error) {
		runtime.Goexit()
		return nil, nil
	})
	reg.Register("exit", func(context.Context, []any, map[string]any) (any, error) {
		os.Exit(3)
		return nil, nil
	})

	return reg
}

func newInProcessExecutor(t *testing.T, reg *task.Registry) *Executor {
	t.Helper()

	logger := testLogger()
	e := New(Config{
		Registry: reg,
		Backend:  NewInProcess(reg, logger, 0),
		Logger:   logger,
	})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newProcessExecutor(t *testing.T) *Executor {
	t.Helper()
	if testing.Short() {
		t.Skip("process isolation spawns child processes")
	}

	logger := testLogger()
	reg := testRegistry()
	e := New(Config{
		Registry: reg,
		Backend: NewProcess(ProcessConfig{
			Path:   os.Args[0],
			Args:   []string{"-test.run=^$"},
			Logger: logger,
		}),
		Logger: logger,
	})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

var outcomeCases = []struct {
	task string
	want domain.Outcome
}{
	{"ok", domain.OutcomeSuccess},
	{"reject", domain.OutcomeRejected},
	{"discard", domain.OutcomeFailed},
	{"boom", domain.OutcomeFailed},
	{"panic", domain.OutcomeFailed},
	{"missing.task", domain.OutcomeFailed},
}

func TestInProcess_Outcomes(t *testing.T) {
	e := newInProcessExecutor(t, testRegistry())

	for _, tt := range outcomeCases {
		t.Run(tt.task, func(t *testing.T) {
			env := domain.NewEnvelope(tt.task, []any{1}, nil)

			res, err := e.Execute(context.Background(), "tok-"+domain.AckToken(tt.task), env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, domain.AckToken("tok-"+tt.task), res.Token)
			if tt.want == domain.OutcomeSuccess {
				assert.NoError(t, res.Err)
			} else {
				assert.Error(t, res.Err)
			}
		})
	}
	assert.Zero(t, e.Restarts())
}

func TestInProcess_CooperativeTaskHitsCeiling(t *testing.T) {
	e := newInProcessExecutor(t, testRegistry())

	start := time.Now()
	res, err := e.Execute(context.Background(), "t1", domain.NewEnvelope("sleep", nil, nil))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, task.ErrTimeout)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Zero(t, e.Restarts())
}

func TestInProcess_ForcedTimeout(t *testing.T) {
	e := newInProcessExecutor(t, testRegistry())

	start := time.Now()
	res, err := e.Execute(context.Background(), "t1", domain.NewEnvelope("hang", nil, nil))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, task.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, int64(1), e.Restarts())
}

func TestInProcess_GoexitIsCrash(t *testing.T) {
	e := newInProcessExecutor(t, testRegistry())

	res, err := e.Execute(context.Background(), "t1", domain.NewEnvelope("goexit", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnitCrashed)
	assert.Equal(t, int64(1), e.Restarts())

	// Единица пригодна после перезапуска.
	res, err = e.Execute(context.Background(), "t2", domain.NewEnvelope("ok", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
}

func TestExecutor_SingleSlot(t *testing.T) {
	reg := task.NewRegistry()
	release := make(chan struct{})
	reg.Register("block", func(context.Context, []any, map[string]any) (any, error) {
		<-release
		return nil, nil
	})
	e := newInProcessExecutor(t, reg)

	done := make(chan Result, 1)
	go func() {
		res, _ := e.Execute(context.Background(), "first", domain.NewEnvelope("block", nil, nil))
		done <- res
	}()

	require.Eventually(t, func() bool { return e.InFlight() == 1 }, time.Second, 5*time.Millisecond)

	_, err := e.Execute(context.Background(), "second", domain.NewEnvelope("block", nil, nil))
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	res := <-done
	assert.Equal(t, domain.AckToken("first"), res.Token)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 0, e.InFlight())
}

func TestExecutor_NotStarted(t *testing.T) {
	e := New(Config{Backend: NewInProcess(task.NewRegistry(), testLogger(), 0), Logger: testLogger()})

	_, err := e.Execute(context.Background(), "t", domain.NewEnvelope("ok", nil, nil))
	assert.ErrorIs(t, err, ErrUnitNotStarted)
}

func TestExecutor_CloseIsIdempotent(t *testing.T) {
	e := newInProcessExecutor(t, testRegistry())

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	res, err := e.Execute(context.Background(), "t", domain.NewEnvelope("ok", nil, nil))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, res.Token, "closed executor gives no outcome to settle")
}

func TestExecutor_CancelledCallerLeavesNoOutcome(t *testing.T) {
	e := newInProcessExecutor(t, testRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	res, err := e.Execute(ctx, "t1", domain.NewEnvelope("sleep", nil, nil))
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Empty(t, res.Token)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, e.Restarts())

	res, err = e.Execute(context.Background(), "t2", domain.NewEnvelope("ok", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
}

type failingRestart struct {
	*InProcess
}

func (f failingRestart) Restart(context.Context) error {
	return errors.New("no more units")
}

func TestExecutor_RestartFailureIsFatal(t *testing.T) {
	reg := testRegistry()
	e := New(Config{
		Registry: reg,
		Backend:  failingRestart{NewInProcess(reg, testLogger(), 0)},
		Logger:   testLogger(),
	})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	res, err := e.Execute(context.Background(), "t1", domain.NewEnvelope("goexit", nil, nil))
	assert.ErrorIs(t, err, ErrRestartFailed)
	assert.Equal(t, domain.AckToken("t1"), res.Token)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
}

func TestProcess_Outcomes(t *testing.T) {
	e := newProcessExecutor(t)

	for _, tt := range outcomeCases {
		t.Run(tt.task, func(t *testing.T) {
			res, err := e.Execute(context.Background(), "tok", domain.NewEnvelope(tt.task, []any{"a"}, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
	assert.Zero(t, e.Restarts())
}

func TestProcess_ChildExitIsCrash(t *testing.T) {
	e := newProcessExecutor(t)
	backend := e.backend.(*Process)
	pid := backend.Pid()
	require.NotZero(t, pid)

	res, err := e.Execute(context.Background(), "t1", domain.NewEnvelope("exit", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnitCrashed)
	assert.Equal(t, int64(1), e.Restarts())
	assert.NotEqual(t, pid, backend.Pid())

	res, err = e.Execute(context.Background(), "t2", domain.NewEnvelope("ok", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
}

func TestProcess_HangingTaskIsKilled(t *testing.T) {
	e := newProcessExecutor(t)

	start := time.Now()
	res, err := e.Execute(context.Background(), "t1", domain.NewEnvelope("hang", nil, nil))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, task.ErrTimeout)
	assert.Less(t, elapsed, 3*time.Second)
	assert.Equal(t, int64(1), e.Restarts())

	res, err = e.Execute(context.Background(), "t2", domain.NewEnvelope("ok", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
}

func TestProcess_CancelledCallerKillsChildWithoutOutcome(t *testing.T) {
	e := newProcessExecutor(t)
	backend := e.backend.(*Process)
	pid := backend.Pid()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	res, err := e.Execute(ctx, "t1", domain.NewEnvelope("hang", nil, nil))
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Token)
	assert.Equal(t, int64(1), e.Restarts())
	assert.NotEqual(t, pid, backend.Pid())

	res, err = e.Execute(context.Background(), "t2", domain.NewEnvelope("ok", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
}
