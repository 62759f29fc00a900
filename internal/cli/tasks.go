package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskq/internal/task"
)

// TaskInfo — описание зарегистрированной task.
type TaskInfo struct {
	Name          string  `json:"name"`
	Queue         string  `json:"queue,omitempty"`
	Retry         int     `json:"retry"`
	MaxRunTimeSec float64 `json:"max_run_time_sec,omitempty"`
}

// NewTasksCmd создаёт команду списка task, известных этому бинарнику.
func NewTasksCmd(registryFn func() *task.Registry, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registryFn()

			var infos []TaskInfo
			var rows [][]string
			for _, name := range reg.Names() {
				t, err := reg.Resolve(name)
				if err != nil {
					return err
				}

				info := TaskInfo{
					Name:          t.Name,
					Queue:         t.Queue,
					Retry:         t.Retry,
					MaxRunTimeSec: t.MaxRunTime.Seconds(),
				}
				infos = append(infos, info)

				queue := info.Queue
				if queue == "" {
					queue = "-"
				}
				maxRunTime := "-"
				if t.MaxRunTime > 0 {
					maxRunTime = t.MaxRunTime.String()
				}
				rows = append(rows, []string{info.Name, queue, strconv.Itoa(info.Retry), maxRunTime})
			}

			outputFn().Print([]string{"NAME", "QUEUE", "RETRY", "MAX_RUN_TIME"}, rows, infos)
			return nil
		},
	}
}
