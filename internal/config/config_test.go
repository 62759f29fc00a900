package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, BrokerAMQP, cfg.Broker)
	assert.Equal(t, "localhost", cfg.RabbitMQ.Host)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, "/", cfg.RabbitMQ.VHost)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "taskq", cfg.Queue)
	assert.Equal(t, IsolationProcess, cfg.Isolation)
	assert.Zero(t, cfg.MaxRunTimeDuration())
	assert.Zero(t, cfg.MaxTasks)
	assert.Zero(t, cfg.MaxLoad)
	assert.Equal(t, ":8082", cfg.HTTP.Addr)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Empty(t, cfg.Schedule)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "taskq.yaml", `
broker: redis
queue: jobs
max_run_time: 1.5
max_tasks: 10
rabbitmq:
  host: rabbit
log:
  format: text
schedule:
  - name: heartbeat
    task: echo
    interval: 30s
    args: ["ping"]
  - task: report
    cron: "0 * * * *"
    queue: reports
`)

	t.Setenv("TASKQ_QUEUE", "from-env")
	t.Setenv("TASKQ_RABBITMQ_PORT", "5673")
	t.Setenv("TASKQ_EAGER", "true")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, BrokerRedis, cfg.Broker)
	assert.Equal(t, "from-env", cfg.Queue, "env overrides file")
	assert.Equal(t, "rabbit", cfg.RabbitMQ.Host)
	assert.Equal(t, 5673, cfg.RabbitMQ.Port)
	assert.True(t, cfg.Eager)
	assert.Equal(t, 1500*time.Millisecond, cfg.MaxRunTimeDuration())
	assert.Equal(t, int64(10), cfg.MaxTasks)
	assert.Equal(t, "text", cfg.Log.Format)

	require.Len(t, cfg.Schedule, 2)
	assert.Equal(t, "heartbeat", cfg.Schedule[0].Name)
	assert.Equal(t, 30*time.Second, cfg.Schedule[0].Interval)
	assert.Equal(t, []any{"ping"}, cfg.Schedule[0].Args)
	assert.Equal(t, "0 * * * *", cfg.Schedule[1].Cron)
	assert.Equal(t, "reports", cfg.Schedule[1].Queue)
}

func TestLoad_Flags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TASKQ_QUEUE", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("queue", "", "")
	fs.Int64("max-tasks", 0, "")
	fs.String("rabbitmq-host", "", "")
	fs.Bool("unrelated", false, "")
	require.NoError(t, fs.Parse([]string{"--queue=from-flag", "--max-tasks=3"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Queue, "flags override env")
	assert.Equal(t, int64(3), cfg.MaxTasks)
	assert.Equal(t, "localhost", cfg.RabbitMQ.Host, "unset flag keeps the default")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"broker", map[string]string{"TASKQ_BROKER": "kafka"}, ""},
		{"isolation", map[string]string{"TASKQ_ISOLATION": "thread"}, ""},
		{"negative max_tasks", map[string]string{"TASKQ_MAX_TASKS": "-1"}, ""},
		{"negative max_run_time", map[string]string{"TASKQ_MAX_RUN_TIME": "-5"}, ""},
		{"bad schedule", nil, "schedule:\n  - task: echo\n    cron: \"bad\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, "taskq.yaml", tt.file)
			} else {
				t.Chdir(t.TempDir())
			}

			_, err := Load(path, nil)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestFlagName(t *testing.T) {
	assert.Equal(t, "rabbitmq-host", flagName("rabbitmq.host"))
	assert.Equal(t, "max-run-time", flagName("max_run_time"))
}
