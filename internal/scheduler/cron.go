package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений (5 полей, плюс @every/@hourly и т.п.).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextDue вычисляет следующее время отправки для entry после from.
func NextDue(e Entry, from time.Time) (time.Time, error) {
	if e.IsCron() {
		return nextCron(e.Cron, from)
	}

	if e.IsInterval() {
		return from.Add(e.Interval), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrNoSchedule, e.Name)
}

// nextCron вычисляет следующее время по cron-выражению.
func nextCron(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return nil
}
