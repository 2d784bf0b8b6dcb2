package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTolerance — доля ожидаемой суммы, которой достаточно для оплаты.
// 5% покрывают сетевые комиссии и курсовую разницу процессора.
var DefaultTolerance = decimal.RequireFromString("0.95")

// AmountReconciler решает, достаточно ли оплачено с учётом допуска.
type AmountReconciler struct {
	tolerance decimal.Decimal
}

// NewAmountReconciler создаёт сверщик с допуском tolerance из (0, 1].
// Значение вне диапазона заменяется на DefaultTolerance.
func NewAmountReconciler(tolerance decimal.Decimal) AmountReconciler {
	if !tolerance.IsPositive() || tolerance.GreaterThan(decimal.NewFromInt(1)) {
		tolerance = DefaultTolerance
	}
	return AmountReconciler{tolerance: tolerance}
}

// DefaultAmountReconciler возвращает сверщик с допуском 0.95.
func DefaultAmountReconciler() AmountReconciler {
	return AmountReconciler{tolerance: DefaultTolerance}
}

// Tolerance возвращает действующий допуск.
func (r AmountReconciler) Tolerance() decimal.Decimal {
	if r.tolerance.IsZero() {
		return DefaultTolerance
	}
	return r.tolerance
}

// Threshold возвращает минимальную достаточную сумму: expected × tolerance.
func (r AmountReconciler) Threshold(expected decimal.Decimal) decimal.Decimal {
	return expected.Mul(r.Tolerance())
}

// IsSufficient: paid ≥ expected × tolerance. Отсутствующая сумма и
// неположительная ожидаемая сумма дают false.
func (r AmountReconciler) IsSufficient(expected decimal.Decimal, paid *decimal.Decimal) bool {
	if paid == nil || !expected.IsPositive() {
		return false
	}
	return paid.GreaterThanOrEqual(r.Threshold(expected))
}

// ParseAmount разбирает сумму из значения JSON.
// (nil, nil) — значение отсутствует; (nil, ErrUnparsableAmount) — есть, но не число.
func ParseAmount(v any) (*decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)

	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		d, err = decimal.NewFromString(s)
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %v", ErrUnparsableAmount, x)
		}
		d = decimal.NewFromFloat(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case decimal.Decimal:
		d = x
	default:
		return nil, fmt.Errorf("%w: тип %T", ErrUnparsableAmount, v)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnparsableAmount, fmt.Sprint(v))
	}
	return &d, nil
}
