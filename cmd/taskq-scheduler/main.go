// Taskq Scheduler — периодическая отправка task по расписанию.
//
// Scheduler:
//   - Читает записи schedule из конфигурации (cron или interval)
//   - Отправляет task в очередь, когда подходит время записи
//   - При database_url выбирает лидера через advisory lock PostgreSQL
//
// Можно запускать несколько экземпляров: отправляет только лидер.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Taskq/internal/broker"
	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/config"
	"github.com/shaiso/Taskq/internal/repo"
	"github.com/shaiso/Taskq/internal/scheduler"
	"github.com/shaiso/Taskq/internal/task"
	"github.com/shaiso/Taskq/internal/tasks"
	"github.com/shaiso/Taskq/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "taskq-scheduler",
		Short:         "Taskq scheduler — sends tasks on a schedule",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", os.Getenv("TASKQ_CONFIG"), "Config file")
	f.String("broker", "", "Broker: amqp, redis or memory")
	f.String("queue", "", "Default queue for entries without one")
	f.String("http-addr", "", "Health and metrics address")
	f.String("log-level", "", "DEBUG, INFO, WARN or ERROR")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting taskq-scheduler", "version", version, "entries", len(cfg.Schedule))

	// Graceful shutdown: первый сигнал отменяет ctx
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	b, err := broker.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	reg := task.NewRegistry()
	tasks.Register(reg)

	sender := client.New(client.Config{
		Registry: reg,
		Sender:   b,
		Queue:    cfg.Queue,
		Local:    cfg.Local,
		Logger:   logger,
		Metrics:  metrics,
	})

	// Лидерство (опционально)
	var locker scheduler.Locker
	if cfg.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		locker = repo.NewAdvisoryLock(pool, repo.SchedulerLockKey)
		logger.Info("leader election enabled")
	} else {
		logger.Warn("database_url is not set, run a single scheduler instance")
	}

	s, err := scheduler.New(scheduler.Config{
		Entries: cfg.Schedule,
		Sender:  sender,
		Locker:  locker,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	// HTTP: /healthz, /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer shutdownServer(srv, logger)

	if err := s.Run(ctx); err != nil {
		return err
	}

	logger.Info("taskq-scheduler stopped")
	return nil
}

func shutdownServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
}
