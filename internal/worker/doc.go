// Package worker — главный цикл worker'а Taskq.
//
// # Обзор
//
// Worker забирает из брокера по одному сообщению, передаёт envelope в
// executor, ждёт исход и применяет к токену действие из фиксированной
// таблицы:
//
//	SUCCESS  → ack
//	REJECTED → reject (передоставка)
//	FAILED   → discard
//
// Параллелизм — это несколько экземпляров worker'а, а не горутины внутри.
//
// # Итерация цикла
//
//  1. runnable(): лимиты max_run_time и max_tasks, флаг остановки
//  2. Load average > max_load → IdleSleep(10s), без fetch
//  3. FetchOne; пусто → IdleSleep(1s)
//  4. Executor.Execute, ожидание исхода
//  5. ack / reject / discard токена
//  6. processed++
//
// # Остановка
//
// Stop() только выставляет флаг: текущий fetch или выполнение не
// прерываются, выход происходит на следующей проверке runnable().
//
// # Ошибки
//
// Ошибки task становятся исходом. Ошибки адаптера брокера и невозможность
// перезапустить единицу executor'а возвращаются из Run и фатальны.
// Ошибки журнала логируются и не останавливают цикл.
package worker
