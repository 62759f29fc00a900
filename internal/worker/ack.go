package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Taskq/internal/domain"
)

// Action — действие над сообщением в брокере после выполнения.
type Action string

const (
	// ActionAck — сообщение обработано, удалить из очереди.
	ActionAck Action = "ack"

	// ActionReject — вернуть сообщение в очередь для другого worker'а.
	ActionReject Action = "reject"

	// ActionDiscard — удалить сообщение без повторной доставки.
	ActionDiscard Action = "discard"
)

// ackTable — полная таблица исход → действие. Локального retry нет.
var ackTable = map[domain.Outcome]Action{
	domain.OutcomeSuccess:  ActionAck,
	domain.OutcomeRejected: ActionReject,
	domain.OutcomeFailed:   ActionDiscard,
}

// ActionFor возвращает действие для исхода.
// Значения вне закрытого множества считаются Failed.
func ActionFor(o domain.Outcome) Action {
	if a, ok := ackTable[o]; ok {
		return a
	}
	return ActionDiscard
}

// settle выполняет действие над токеном.
func settle(ctx context.Context, q Queue, action Action, token domain.AckToken) error {
	switch action {
	case ActionAck:
		return q.Ack(ctx, token)
	case ActionReject:
		return q.Reject(ctx, token)
	case ActionDiscard:
		return q.Discard(ctx, token)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
