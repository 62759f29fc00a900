// Package executor выполняет один envelope в изоляции от планировщика.
//
// # Обзор
//
// Executor — долгоживущий актор с двумя однослотовыми каналами:
//
//	in  (cap 1) ← job{token, envelope}   от планировщика
//	out (cap 1) → Result{token, outcome} к планировщику
//
// Одновременно в executor'е может находиться не более одного envelope:
// это обеспечивается ёмкостью каналов, а не соглашением.
//
// # Изоляционные единицы (Backend)
//
//   - InProcess — отдельная горутина на вызов, recover() паник,
//     обнаружение runtime.Goexit, принудительный таймаут с отказом
//     от зависшей горутины.
//   - Process — дочерний процесс (тот же бинарник, переменная
//     TASKQ_EXECUTOR_CHILD=1). Запросы и ответы идут JSON-строками
//     через fd 3 и fd 4, stdout/stderr дочернего процесса остаются
//     свободными для вывода task. Таймаут — kill и перезапуск процесса,
//     EOF на канале ответов — крах единицы.
//
// # Ошибки
//
// Ошибки task никогда не возвращаются как error: они становятся Outcome.
// Крах единицы и принудительный таймаут приводят к OutcomeFailed и
// перезапуску единицы. Execute возвращает error только если единицу не
// удалось перезапустить или executor закрыт — это фатально для worker'а.
package executor
