package scheduler

import (
	"fmt"
	"time"
)

// Entry — одна периодическая отправка task.
type Entry struct {
	// Name — уникальное имя записи (для логов). По умолчанию — Task.
	Name string `mapstructure:"name"`

	// Cron — cron-выражение. Взаимоисключающее с Interval.
	Cron string `mapstructure:"cron"`

	// Interval — фиксированный интервал между отправками.
	Interval time.Duration `mapstructure:"interval"`

	Task   string         `mapstructure:"task"`
	Args   []any          `mapstructure:"args"`
	Kwargs map[string]any `mapstructure:"kwargs"`

	// Queue — очередь ("" — по правилам клиента).
	Queue string `mapstructure:"queue"`
}

// IsCron возвращает true для cron-записи.
func (e Entry) IsCron() bool {
	return e.Cron != ""
}

// IsInterval возвращает true для интервальной записи.
func (e Entry) IsInterval() bool {
	return e.Interval > 0
}

// Validate проверяет запись.
func (e Entry) Validate() error {
	if e.Task == "" {
		return fmt.Errorf("%w: %q", ErrNoTask, e.Name)
	}
	switch {
	case e.IsCron() && e.IsInterval():
		return fmt.Errorf("%w: %q", ErrBothSchedules, e.Name)
	case e.IsCron():
		return ValidateCronExpr(e.Cron)
	case e.IsInterval():
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrNoSchedule, e.Name)
	}
}
