package domain

import "strings"

// PaymentOutcome — канонический исход платежа. Закрытое перечисление.
type PaymentOutcome string

const (
	OutcomeWaiting    PaymentOutcome = "WAITING"
	OutcomeConfirming PaymentOutcome = "CONFIRMING"
	OutcomeFinished   PaymentOutcome = "FINISHED"
	OutcomeFailed     PaymentOutcome = "FAILED"
	OutcomeRefunded   PaymentOutcome = "REFUNDED"
	OutcomeExpired    PaymentOutcome = "EXPIRED"

	// OutcomeUnknown — данных недостаточно в текущем цикле.
	// Никогда не трактуется как оплаченный.
	OutcomeUnknown PaymentOutcome = "UNKNOWN"
)

// Outcomes перечисляет все допустимые значения.
var Outcomes = []PaymentOutcome{
	OutcomeWaiting, OutcomeConfirming, OutcomeFinished,
	OutcomeFailed, OutcomeRefunded, OutcomeExpired, OutcomeUnknown,
}

// ParseOutcome разбирает каноническое имя исхода без учёта регистра.
func ParseOutcome(s string) (PaymentOutcome, bool) {
	o := PaymentOutcome(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Outcomes {
		if o == known {
			return o, true
		}
	}
	return "", false
}

// IsPaid — только FINISHED означает оплату.
func (o PaymentOutcome) IsPaid() bool {
	return o == OutcomeFinished
}

// IsTerminal — дальнейших переходов у процессора не ожидается.
func (o PaymentOutcome) IsTerminal() bool {
	switch o {
	case OutcomeFinished, OutcomeFailed, OutcomeRefunded, OutcomeExpired:
		return true
	}
	return false
}

// TwoState сворачивает исход в «оплачен / не оплачен»: FINISHED или WAITING.
func (o PaymentOutcome) TwoState() PaymentOutcome {
	if o.IsPaid() {
		return OutcomeFinished
	}
	return OutcomeWaiting
}

func (o PaymentOutcome) String() string {
	return string(o)
}
