package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/domain"
)

// Sender отправляет task (реализуется *client.Client).
type Sender interface {
	Send(ctx context.Context, name string, args []any, kwargs map[string]any, opts ...client.SendOption) (domain.Envelope, error)
	QueueFor(name string, opts ...client.SendOption) string
	IsEager() bool
}

// NewSendCmd создаёт команду отправки task.
//
// Аргументы после имени task и значения --kwarg разбираются как JSON,
// если это возможно, иначе передаются строкой: `send add 1 2` даёт
// числа, `send echo hello` — строку.
func NewSendCmd(senderFn func() (Sender, error), outputFn func() *Output) *cobra.Command {
	var kwargs []string
	var queue string
	var local, eager bool

	cmd := &cobra.Command{
		Use:   "send TASK [ARG...]",
		Short: "Send a task to the queue (or run it eagerly)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			sender, err := senderFn()
			if err != nil {
				return err
			}

			name := args[0]
			taskArgs := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				taskArgs = append(taskArgs, parseValue(a))
			}

			taskKwargs, err := parseKwargs(kwargs)
			if err != nil {
				return err
			}

			var opts []client.SendOption
			if queue != "" {
				opts = append(opts, client.ToQueue(queue))
			}
			if cmd.Flags().Changed("local") {
				opts = append(opts, client.Local(local))
			}
			if cmd.Flags().Changed("eager") {
				opts = append(opts, client.Eager(eager))
			}

			env, err := sender.Send(cmd.Context(), name, taskArgs, taskKwargs, opts...)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("eager") {
				eager = sender.IsEager()
			}

			target := sender.QueueFor(name, opts...)
			if eager {
				out.Success(fmt.Sprintf("Task executed: %s", name))
				target = "-"
			} else {
				out.Success(fmt.Sprintf("Task sent: %s", env.ID))
			}
			out.Print(
				[]string{"ENVELOPE_ID", "TASK", "QUEUE"},
				[][]string{{env.ID, env.Task, target}},
				env,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kwargs, "kwarg", nil, "Keyword argument as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&queue, "to-queue", "", "Send to this queue instead of the task's default")
	cmd.Flags().BoolVar(&local, "local", false, "Route to the host-local queue")
	cmd.Flags().BoolVar(&eager, "eager", false, "Execute the task in this process instead of sending it")

	return cmd
}

// parseValue разбирает значение как JSON, иначе возвращает строку.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// parseKwargs разбирает список KEY=VALUE.
func parseKwargs(kvs []string) (map[string]any, error) {
	kwargs := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid kwarg format %q, expected KEY=VALUE", kv)
		}
		kwargs[key] = parseValue(value)
	}
	return kwargs, nil
}
