// Package api содержит HTTP API администрирования worker'а.
//
// Структура:
//   - handler.go           — Handler с DI (worker, журнал, отправитель, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - worker_handler.go    — /worker: состояние и остановка
//   - execution_handler.go — /executions: журнал
//   - task_handler.go      — /tasks: список и отправка
//
// Также отдаёт /healthz и /metrics (Prometheus).
package api
