package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fields — JSON объект, декодированный с сохранением чисел как json.Number.
type Fields map[string]any

// DecodeFields разбирает JSON объект. Числа не теряют точность.
func DecodeFields(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var f Fields
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("ожидался JSON объект")
	}
	return f, nil
}

// FieldsFrom приводит произвольное значение JSON к Fields, если это объект.
func FieldsFrom(v any) (Fields, bool) {
	switch x := v.(type) {
	case map[string]any:
		return Fields(x), true
	case Fields:
		return x, true
	}
	return nil, false
}

// First возвращает первое непустое значение среди псевдонимов и имя найденного ключа.
// Пустой считается nil и строка из пробелов.
func (f Fields) First(aliases ...string) (any, string, bool) {
	for _, key := range aliases {
		v, ok := f[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, key, true
	}
	return nil, "", false
}

// String возвращает первое непустое значение как строку. Числа форматируются без потерь.
func (f Fields) String(aliases ...string) string {
	v, _, ok := f.First(aliases...)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Amount разбирает первое непустое значение как сумму (см. ParseAmount).
func (f Fields) Amount(aliases ...string) (*decimal.Decimal, error) {
	v, _, ok := f.First(aliases...)
	if !ok {
		return nil, nil
	}
	return ParseAmount(v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Time разбирает первое непустое значение как время: строка в одном из
// распространённых форматов или unix-время в секундах. Нераспознанное — nil.
func (f Fields) Time(aliases ...string) *time.Time {
	v, _, ok := f.First(aliases...)
	if !ok {
		return nil
	}

	var unix int64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return nil
		}
		unix = n
	case float64:
		unix = int64(x)
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		unix = n
	default:
		return nil
	}

	t := time.Unix(unix, 0).UTC()
	return &t
}
