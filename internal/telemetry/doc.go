// Package telemetry обеспечивает наблюдаемость worker'а.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Все бинарники используют единый формат логирования; worker
// экспортирует метрики на /metrics endpoint.
package telemetry
