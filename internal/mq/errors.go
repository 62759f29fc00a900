package mq

import "errors"

// Ошибки адаптера RabbitMQ.
var (
	// ErrNotConnected — нет открытого канала (идёт переподключение).
	ErrNotConnected = errors.New("amqp: not connected")

	// ErrBadToken — токен не выдан этим адаптером.
	ErrBadToken = errors.New("amqp: malformed ack token")

	// ErrStaleToken — токен выдан до переподключения, сообщение уже
	// возвращено брокером в очередь.
	ErrStaleToken = errors.New("amqp: ack token from previous connection")
)
