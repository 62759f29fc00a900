package worker

import (
	"runtime"
	"time"
)

// Интервалы idle-sleep.
const (
	// OverloadSleep — пауза, если load average выше MaxLoad.
	OverloadSleep = 10 * time.Second

	// EmptySleep — пауза, если очередь пуста.
	EmptySleep = time.Second

	// OverloadAlertAfter — после стольких подряд перегруженных замеров
	// worker пишет WARN (≈ минута при OverloadSleep).
	OverloadAlertAfter = 6
)

// Limits — пороги допуска worker'а. Нулевые значения — без ограничения
// (для MaxLoad — количество CPU).
type Limits struct {
	// MaxRunTime — сколько worker работает до остановки.
	MaxRunTime time.Duration `json:"max_run_time"`

	// MaxTasks — сколько envelope обработать до остановки.
	MaxTasks int64 `json:"max_tasks"`

	// MaxLoad — порог одноминутного load average.
	MaxLoad float64 `json:"max_load"`
}

// resolved подставляет значения по умолчанию.
func (l Limits) resolved() Limits {
	if l.MaxLoad <= 0 {
		l.MaxLoad = float64(runtime.NumCPU())
	}
	if l.MaxRunTime < 0 {
		l.MaxRunTime = 0
	}
	if l.MaxTasks < 0 {
		l.MaxTasks = 0
	}
	return l
}

// runTimeExceeded сообщает, истекло ли время работы.
func (l Limits) runTimeExceeded(elapsed time.Duration) bool {
	return l.MaxRunTime > 0 && elapsed >= l.MaxRunTime
}

// tasksExhausted сообщает, обработано ли MaxTasks envelope.
func (l Limits) tasksExhausted(processed int64) bool {
	return l.MaxTasks > 0 && processed >= l.MaxTasks
}
