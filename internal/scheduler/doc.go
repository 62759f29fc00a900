// Package scheduler — периодическая отправка task по расписанию.
//
// Запись расписания задаёт либо cron-выражение, либо фиксированный
// интервал. Scheduler хранит время следующей отправки в памяти и на
// каждом тике отправляет наступившие записи через client.
//
// Структура:
//   - entry.go     — Entry и её проверка
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//   - scheduler.go — Tick/Run, лидерство через Locker
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Entries: cfg.Schedule,
//	    Sender:  c,
//	    Locker:  repo.NewAdvisoryLock(pool, repo.SchedulerLockKey), // опционально
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	go sched.Run(ctx)
//
// Leader Election:
//
// При нескольких экземплярах тик выполняет только тот, кто держит
// pg_advisory_lock. Без Locker каждый экземпляр отправляет сам.
package scheduler
