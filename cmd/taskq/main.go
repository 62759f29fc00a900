// Taskq CLI — инструмент командной строки для отправки task,
// работы с очередями и управления worker'ом через HTTP API.
//
// Использование:
//
//	taskq [--config FILE] [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	send        Отправить task в очередь
//	queue       Статистика и очистка очередей
//	tasks       Зарегистрированные task
//	worker      Состояние и остановка worker'а
//	executions  Журнал выполнений
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskq/internal/broker"
	"github.com/shaiso/Taskq/internal/cli"
	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/config"
	"github.com/shaiso/Taskq/internal/task"
	"github.com/shaiso/Taskq/internal/tasks"
	"github.com/shaiso/Taskq/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// app лениво загружает конфигурацию и открывает брокер:
// команды worker и executions обходятся без них.
type app struct {
	rootCmd *cobra.Command
	cfgPath string

	cfgOnce sync.Once
	cfg     *config.Config
	cfgErr  error

	reg    *task.Registry
	broker *broker.Broker
	logger *slog.Logger
}

func (a *app) config() (*config.Config, error) {
	a.cfgOnce.Do(func() {
		a.cfg, a.cfgErr = config.Load(a.cfgPath, a.rootCmd.PersistentFlags())
		if a.cfgErr == nil {
			a.logger = telemetry.NewLogger(os.Stderr, a.cfg.Log.Level, a.cfg.Log.Format)
		}
	})
	return a.cfg, a.cfgErr
}

func (a *app) registry() *task.Registry {
	if a.reg == nil {
		a.reg = task.NewRegistry()
		tasks.Register(a.reg)
	}
	return a.reg
}

func (a *app) openBroker(ctx context.Context) (*broker.Broker, error) {
	if a.broker != nil {
		return a.broker, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	b, err := broker.Open(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.broker = b
	return b, nil
}

func (a *app) sender() (cli.Sender, error) {
	// Eager-отправка не требует брокера.
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	ccfg := client.Config{
		Registry: a.registry(),
		Queue:    cfg.Queue,
		Local:    cfg.Local,
		Eager:    cfg.Eager,
		Logger:   a.logger,
	}
	if !cfg.Eager {
		b, err := a.openBroker(context.Background())
		if err != nil {
			return nil, err
		}
		ccfg.Sender = b
	}
	return client.New(ccfg), nil
}

func (a *app) queueAdmin() (cli.QueueAdmin, error) {
	return a.openBroker(context.Background())
}

func (a *app) defaultQueue() string {
	cfg, err := a.config()
	if err != nil {
		return config.DefaultQueue
	}
	return cfg.Queue
}

func (a *app) close() {
	if a.broker != nil {
		a.broker.Close()
	}
}

func main() {
	var apiURL string
	var jsonOutput bool

	a := &app{}
	a.rootCmd = &cobra.Command{
		Use:           "taskq",
		Short:         "Taskq CLI — distributed task queue tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := a.rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", os.Getenv("TASKQ_CONFIG"), "Config file")
	pf.StringVar(&apiURL, "api-url", "http://localhost:8082", "Worker admin API URL")
	pf.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	pf.String("broker", "", "Broker: amqp, redis or memory")
	pf.String("queue", "", "Default queue")
	pf.String("log-level", "", "DEBUG, INFO, WARN or ERROR")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	a.rootCmd.AddCommand(
		cli.NewSendCmd(a.sender, outputFn),
		cli.NewQueueCmd(a.queueAdmin, a.defaultQueue, outputFn),
		cli.NewTasksCmd(a.registry, outputFn),
		cli.NewWorkerCmd(clientFn, outputFn),
		cli.NewExecutionsCmd(clientFn, outputFn),
	)

	err := a.rootCmd.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
