package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskq/internal/domain"
)

// QueueAdmin — операции над очередью в брокере.
type QueueAdmin interface {
	Stats(ctx context.Context, queue string) (domain.QueueStats, error)
	Purge(ctx context.Context, queue string) (int, error)
}

// NewQueueCmd создаёт группу команд для работы с очередями.
// defaultQueue возвращает очередь из конфигурации.
func NewQueueCmd(adminFn func() (QueueAdmin, error), defaultQueue func() string, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or purge broker queues",
	}

	cmd.AddCommand(
		newQueueStatsCmd(adminFn, defaultQueue, outputFn),
		newQueuePurgeCmd(adminFn, defaultQueue, outputFn),
	)

	return cmd
}

func newQueueStatsCmd(adminFn func() (QueueAdmin, error), defaultQueue func() string, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [QUEUE...]",
		Short: "Show message and consumer counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := adminFn()
			if err != nil {
				return err
			}

			queues := args
			if len(queues) == 0 {
				queues = []string{defaultQueue()}
			}

			stats := make([]domain.QueueStats, 0, len(queues))
			rows := make([][]string, 0, len(queues))
			for _, q := range queues {
				st, err := admin.Stats(cmd.Context(), q)
				if err != nil {
					return err
				}
				stats = append(stats, st)
				rows = append(rows, []string{
					st.Name,
					strconv.Itoa(st.Messages),
					strconv.Itoa(st.Consumers),
					strconv.Itoa(st.Dead),
				})
			}

			outputFn().Print([]string{"QUEUE", "MESSAGES", "CONSUMERS", "DEAD"}, rows, stats)
			return nil
		},
	}
}

func newQueuePurgeCmd(adminFn func() (QueueAdmin, error), defaultQueue func() string, outputFn func() *Output) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge [QUEUE]",
		Short: "Delete all ready messages from a queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := defaultQueue()
			if len(args) == 1 {
				queue = args[0]
			}

			if !force {
				return fmt.Errorf("refusing to purge %q without --force", queue)
			}

			admin, err := adminFn()
			if err != nil {
				return err
			}

			n, err := admin.Purge(cmd.Context(), queue)
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Purged %d messages from %s", n, queue))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm the purge")

	return cmd
}
