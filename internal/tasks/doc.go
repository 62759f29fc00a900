// Package tasks содержит встроенные task, доступные каждому worker'у.
//
//   - echo — возвращает свои аргументы
//   - delay — ждёт seconds секунд (context-aware)
//   - http.request — выполняет HTTP-запрос
//   - fail — всегда завершается ошибкой (для проверки discard)
//   - reject — всегда просит передоставку (для проверки reject)
//
// Аргументы передаются через kwargs. Регистрация:
//
//	reg := task.NewRegistry()
//	tasks.Register(reg)
package tasks
