package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Словари статусов процессора после нормализации.
var (
	finishedLabels   = labelSet("finished", "completed", "complete", "confirmed")
	waitingLabels    = labelSet("waiting", "pending", "new", "created")
	confirmingLabels = labelSet("confirming", "partially_paid")
	terminalLabels   = map[string]PaymentOutcome{
		"failed":   OutcomeFailed,
		"refunded": OutcomeRefunded,
		"expired":  OutcomeExpired,
	}
)

func labelSet(labels ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		m[l] = struct{}{}
	}
	return m
}

// NormalizeStatus приводит метку к нижнему регистру, пробелы и дефисы заменяет на "_".
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// Classifier сводит метку статуса и суммы к PaymentOutcome.
type Classifier struct {
	amounts AmountReconciler
}

// NewClassifier создаёт классификатор поверх сверщика сумм.
func NewClassifier(amounts AmountReconciler) Classifier {
	return Classifier{amounts: amounts}
}

// Amounts возвращает используемый сверщик сумм.
func (c Classifier) Amounts() AmountReconciler {
	return c.amounts
}

// Recognizes сообщает, входит ли метка в известный словарь.
func (c Classifier) Recognizes(rawStatus string) bool {
	s := NormalizeStatus(rawStatus)
	if _, ok := finishedLabels[s]; ok {
		return true
	}
	if _, ok := waitingLabels[s]; ok {
		return true
	}
	if _, ok := confirmingLabels[s]; ok {
		return true
	}
	_, ok := terminalLabels[s]
	return ok
}

// Classify — тотальная функция, порядок шагов важен:
//  1. finished/completed/complete/confirmed → FINISHED
//  2. waiting/pending/new/created → WAITING
//  3. confirming/partially_paid → FINISHED при достаточной сумме, иначе WAITING
//  4. failed/refunded/expired → соответствующий исход
//  5. иначе по сумме: достаточно → FINISHED, paid > 0 → CONFIRMING, иначе WAITING
//
// Пустая метка считается отсутствующей.
func (c Classifier) Classify(rawStatus string, expected decimal.Decimal, paid *decimal.Decimal) PaymentOutcome {
	s := NormalizeStatus(rawStatus)

	if s != "" {
		if _, ok := finishedLabels[s]; ok {
			return OutcomeFinished
		}
		if _, ok := waitingLabels[s]; ok {
			return OutcomeWaiting
		}
		if _, ok := confirmingLabels[s]; ok {
			if c.amounts.IsSufficient(expected, paid) {
				return OutcomeFinished
			}
			return OutcomeWaiting
		}
		if o, ok := terminalLabels[s]; ok {
			return o
		}
	}

	switch {
	case c.amounts.IsSufficient(expected, paid):
		return OutcomeFinished
	case paid != nil && paid.IsPositive():
		return OutcomeConfirming
	default:
		return OutcomeWaiting
	}
}

// ClassifyInvoice классифицирует счёт. Если метка не распознана, а суммовых
// данных для вывода нет (цена отсутствует или оплаченная сумма не разобрана),
// возвращает UNKNOWN вместо догадки.
func (c Classifier) ClassifyInvoice(inv *Invoice) PaymentOutcome {
	if !c.Recognizes(inv.StatusLabel) && (inv.PriceAmount == nil || inv.PaidAmountInvalid) {
		return OutcomeUnknown
	}

	expected := decimal.Zero
	if inv.PriceAmount != nil {
		expected = *inv.PriceAmount
	}
	return c.Classify(inv.StatusLabel, expected, inv.PaidAmount)
}
