package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkerCmd создаёт группу команд для управления worker'ом через API.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Inspect or stop a running worker",
	}

	cmd.AddCommand(
		newWorkerStatusCmd(clientFn, outputFn),
		newWorkerStopCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkerStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show worker status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := clientFn().Worker()
			if err != nil {
				return err
			}
			printWorker(outputFn(), w)
			return nil
		},
	}
}

func newWorkerStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the worker to stop after the current task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			w, err := clientFn().StopWorker()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Stop requested: %s (%s)", w.Hostname, w.Queue))
			printWorker(out, w)
			return nil
		},
	}
}

func printWorker(out *Output, w *WorkerResponse) {
	current := ""
	if w.Current != nil {
		current = fmt.Sprintf("%s (%s)", w.Current.Task, w.Current.EnvelopeID)
	}

	maxTasks := "unlimited"
	if w.Limits.MaxTasks > 0 {
		maxTasks = strconv.FormatInt(w.Limits.MaxTasks, 10)
	}
	maxRunTime := "unlimited"
	if w.Limits.MaxRunTimeSec > 0 {
		maxRunTime = strconv.FormatFloat(w.Limits.MaxRunTimeSec, 'f', -1, 64) + "s"
	}

	out.Record([]Field{
		{"Host", w.Hostname},
		{"Queue", w.Queue},
		{"Running", strconv.FormatBool(w.Running)},
		{"Stopping", strconv.FormatBool(w.StopRequested)},
		{"Processed", strconv.FormatInt(w.Processed, 10)},
		{"Load", fmt.Sprintf("%.2f / %.2f", w.Load, w.Limits.MaxLoad)},
		{"Overloaded", strconv.FormatBool(w.Overloaded)},
		{"Uptime", w.Uptime},
		{"Max tasks", maxTasks},
		{"Max run time", maxRunTime},
		{"Current", current},
	}, w)
}
