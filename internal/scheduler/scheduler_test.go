package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/memq"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		err   error
	}{
		{"cron", Entry{Task: "echo", Cron: "*/5 * * * *"}, nil},
		{"descriptor", Entry{Task: "echo", Cron: "@hourly"}, nil},
		{"interval", Entry{Task: "echo", Interval: time.Minute}, nil},
		{"no task", Entry{Cron: "* * * * *"}, ErrNoTask},
		{"no schedule", Entry{Task: "echo"}, ErrNoSchedule},
		{"both", Entry{Task: "echo", Cron: "* * * * *", Interval: time.Second}, ErrBothSchedules},
		{"bad cron", Entry{Task: "echo", Cron: "61 * * * *"}, ErrInvalidCron},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNextDue(t *testing.T) {
	from := time.Date(2024, 3, 1, 10, 7, 30, 0, time.UTC)

	next, err := NextDue(Entry{Cron: "*/15 * * * *"}, from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), next)

	next, err = NextDue(Entry{Interval: 90 * time.Second}, from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(90*time.Second), next)

	_, err = NextDue(Entry{}, from)
	assert.ErrorIs(t, err, ErrNoSchedule)
}

func TestNew_RejectsDuplicateNames(t *testing.T) {
	_, err := New(Config{Entries: []Entry{
		{Task: "echo", Interval: time.Second},
		{Task: "echo", Cron: "* * * * *"},
	}})
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = New(Config{Entries: []Entry{{Name: "x", Task: "echo"}}})
	assert.ErrorIs(t, err, ErrNoSchedule)
}

func TestTick_SendsDueEntries(t *testing.T) {
	q := memq.New()
	c := client.New(client.Config{Sender: q, Queue: "jobs", Logger: testLogger()})

	s, err := New(Config{
		Entries: []Entry{
			{Name: "often", Task: "echo", Args: []any{"hi"}, Interval: 10 * time.Second},
			{Name: "reports", Task: "report", Cron: "0 * * * *", Queue: "reports"},
		},
		Sender: c,
		Logger: testLogger(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 59, 55, 0, time.UTC)

	assert.Equal(t, 0, s.Tick(ctx, start), "first tick only schedules")
	assert.Equal(t, start.Add(10*time.Second), s.NextDue("often"))
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), s.NextDue("reports"))

	assert.Equal(t, 0, s.Tick(ctx, start.Add(time.Second)))
	assert.Equal(t, 1, s.Tick(ctx, start.Add(5*time.Second)), "cron entry is due at 11:00")
	assert.Equal(t, 1, s.Tick(ctx, start.Add(10*time.Second)), "interval entry is due")
	assert.Equal(t, start.Add(20*time.Second), s.NextDue("often"))

	assert.Equal(t, 1, q.Len("jobs"))
	assert.Equal(t, 1, q.Len("reports"))

	d, ok, err := q.FetchOne(ctx, "jobs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "echo", d.Envelope.Task)
	assert.Equal(t, []any{"hi"}, d.Envelope.Args)
}

type failingSender struct {
	calls int
}

func (f *failingSender) Send(context.Context, string, []any, map[string]any, ...client.SendOption) (domain.Envelope, error) {
	f.calls++
	return domain.Envelope{}, errors.New("broker down")
}

func TestTick_ErrorAdvancesSchedule(t *testing.T) {
	sender := &failingSender{}
	s, err := New(Config{
		Entries: []Entry{{Task: "echo", Interval: time.Minute}},
		Sender:  sender,
		Logger:  testLogger(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Tick(ctx, now)

	assert.Equal(t, 0, s.Tick(ctx, now.Add(time.Minute)))
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, now.Add(2*time.Minute), s.NextDue("echo"))
}

type fakeLocker struct {
	mu       sync.Mutex
	grant    bool
	tries    int
	unlocked bool
}

func (l *fakeLocker) TryLock(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tries++
	return l.grant, nil
}

func (l *fakeLocker) Unlock(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked = true
	return nil
}

func (l *fakeLocker) state() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tries, l.unlocked
}

func TestRun_FollowerDoesNotSend(t *testing.T) {
	q := memq.New()
	c := client.New(client.Config{Sender: q, Logger: testLogger()})
	locker := &fakeLocker{}

	s, err := New(Config{
		Entries:      []Entry{{Task: "echo", Interval: time.Millisecond}},
		Sender:       c,
		Locker:       locker,
		Logger:       testLogger(),
		TickInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	tries, unlocked := locker.state()
	assert.Greater(t, tries, 1)
	assert.False(t, unlocked, "never held the lock")
	assert.Zero(t, q.Len("taskq"))
}

func TestRun_LeaderSendsAndReleases(t *testing.T) {
	q := memq.New()
	c := client.New(client.Config{Sender: q, Logger: testLogger()})
	locker := &fakeLocker{grant: true}

	s, err := New(Config{
		Entries:      []Entry{{Task: "echo", Interval: time.Millisecond}},
		Sender:       c,
		Locker:       locker,
		Logger:       testLogger(),
		TickInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	tries, unlocked := locker.state()
	assert.Equal(t, 1, tries, "lock is kept once acquired")
	assert.True(t, unlocked)
	assert.Positive(t, q.Len("taskq"))
}
