// Package cli реализует инструмент командной строки Taskq.
//
// # Обзор
//
// Команды делятся на две группы:
//   - работа с брокером напрямую: send, queue stats, queue purge, tasks
//   - работа с запущенным worker'ом через его admin API: worker, executions
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для admin API worker'а. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8082")
//	status, err := client.Worker()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: taskq queue stats --json | jq .
//
// ## Commands
//
// Каждая команда создаётся через фабричную функцию (NewSendCmd и т.д.),
// принимающую замыкания для ленивого создания зависимостей (брокер,
// Client, Output) после парсинга PersistentFlags.
package cli
