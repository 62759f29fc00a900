package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionsCmd создаёт команду просмотра журнала выполнений.
func NewExecutionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List recent task executions from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			executions, err := clientFn().ListExecutions(opts)
			if err != nil {
				return err
			}

			headers := []string{"STARTED", "TASK", "OUTCOME", "ACTION", "DURATION_MS", "WORKER", "ERROR"}
			rows := make([][]string, len(executions))
			for i, e := range executions {
				rows[i] = []string{
					e.StartedAt,
					e.Task,
					e.Outcome,
					e.Action,
					strconv.FormatInt(e.DurationMS, 10),
					e.Worker,
					e.Error,
				}
			}

			outputFn().Print(headers, rows, executions)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Task, "task", "", "Filter by task name")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "Filter by outcome (SUCCESS, REJECTED, FAILED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}
