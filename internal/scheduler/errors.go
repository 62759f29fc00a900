package scheduler

import "errors"

// Ошибки конфигурации расписания.
var (
	ErrNoSchedule    = errors.New("entry has neither cron nor interval")
	ErrBothSchedules = errors.New("entry has both cron and interval")
	ErrInvalidCron   = errors.New("invalid cron expression")
	ErrNoTask        = errors.New("entry has no task")
	ErrDuplicateName = errors.New("duplicate entry name")
)
