// Package mq — адаптер брокера RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление очередей и dead-letter exchange
//   - publisher.go  — публикация envelope в очереди
//   - queue.go      — fetch-one (basic.get), ack / reject / discard, stats, purge
//
// Токен подтверждения — "<поколение соединения>:<delivery tag>". После
// переподключения брокер сам возвращает неподтверждённые сообщения в
// очередь, а старые токены отвергаются с ErrStaleToken.
//
// Действия над токеном:
//   - ack     — basic.ack
//   - reject  — basic.reject requeue=true
//   - discard — basic.reject requeue=false (в taskq.dlx, если dead_letter)
package mq
