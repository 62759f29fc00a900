package domain

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Envelope — одна единица работы, извлечённая из сообщения брокера.
//
// Envelope неизменяем после создания: брокер-адаптер создаёт его при
// получении сообщения, Executor потребляет ровно один раз.
type Envelope struct {
	// ID — уникальный идентификатор отправки (для логов и журнала).
	ID string `json:"id"`

	// Task — полное имя task в реестре, например "http.request".
	Task string `json:"task"`

	// Args — позиционные аргументы.
	Args []any `json:"args"`

	// Kwargs — именованные аргументы.
	Kwargs map[string]any `json:"kwargs"`

	// SentAt — время отправки.
	SentAt time.Time `json:"sent_at"`
}

// NewEnvelope создаёт envelope с новым ID.
// nil args/kwargs заменяются пустыми значениями, чтобы JSON был стабильным.
func NewEnvelope(task string, args []any, kwargs map[string]any) Envelope {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	return Envelope{
		ID:     uuid.New().String(),
		Task:   task,
		Args:   args,
		Kwargs: kwargs,
		SentAt: time.Now().UTC(),
	}
}

// String возвращает короткое описание вызова для логов.
func (e Envelope) String() string {
	return fmt.Sprintf("%s(args=%v, kwargs=%v)", e.Task, e.Args, e.Kwargs)
}

// AckToken — непрозрачный дескриптор для подтверждения сообщения в брокере.
//
// Планировщик владеет токеном от получения сообщения до вызова ровно
// одного из acknowledge/reject/discard. Токен никогда не разбирается вне
// адаптера, который его выдал.
type AckToken string

// Delivery — пара (токен, envelope), возвращаемая адаптером брокера.
type Delivery struct {
	Token    AckToken
	Envelope Envelope
}

// LocalQueueName возвращает имя очереди, привязанной к текущему хосту.
//
// Используется для локальной разработки: задачи, отправленные с local=true,
// получит только worker на той же машине.
func LocalQueueName(queue string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return queue
	}
	return queue + "_" + host
}

// QueueStats — состояние очереди в брокере.
type QueueStats struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
	Dead      int    `json:"dead,omitempty"`
}
