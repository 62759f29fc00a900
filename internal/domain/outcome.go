package domain

// Outcome — результат выполнения одного envelope.
//
// Закрытое множество из трёх вариантов. На каждый envelope приходится
// ровно один Outcome.
type Outcome int

const (
	// OutcomeSuccess — task завершился без ошибки.
	OutcomeSuccess Outcome = iota

	// OutcomeRejected — task попросил передоставить сообщение другому worker'у.
	OutcomeRejected

	// OutcomeFailed — ошибка, discard, timeout, неизвестный task или крах.
	OutcomeFailed
)

// String возвращает строковое представление Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseOutcome парсит строку в Outcome.
// Неизвестные значения считаются OutcomeFailed.
func ParseOutcome(s string) Outcome {
	switch s {
	case "SUCCESS":
		return OutcomeSuccess
	case "REJECTED":
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// MarshalText реализует encoding.TextMarshaler (JSON между процессами).
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	*o = ParseOutcome(string(b))
	return nil
}
