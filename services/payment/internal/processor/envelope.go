package processor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"example.com/crypto-checkout/services/payment/internal/domain"
)

// ResponseShape — форма ответа процессора, из которой извлечены данные.
type ResponseShape string

const (
	// ShapeResult: {"result": <данные>}.
	ShapeResult ResponseShape = "result"
	// ShapeEncodedMessage: {"status":"success","message":"<JSON строкой>"}.
	ShapeEncodedMessage ResponseShape = "encoded_message"
	// ShapeEmptyMarker: {"status":"success","message":"[]"}.
	ShapeEmptyMarker ResponseShape = "empty_marker"
	// ShapeMessageURL: {"status":"success","message":"https://..."} (только create_invoice).
	ShapeMessageURL ResponseShape = "message_url"
)

// envelope — верхний уровень ответа процессора.
type envelope struct {
	raw     []byte
	status  string
	result  json.RawMessage
	message json.RawMessage
}

func parseEnvelope(op string, raw []byte) (*envelope, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, &domain.UnrecognizedShapeError{Op: op, Reason: "ответ не является JSON объектом", Raw: raw}
	}

	env := &envelope{raw: raw, result: top["result"], message: top["message"]}
	if s, ok := top["status"]; ok {
		var status string
		if err := json.Unmarshal(s, &status); err == nil {
			env.status = strings.ToLower(strings.TrimSpace(status))
		}
	}
	return env, nil
}

func (e *envelope) hasResult() bool {
	return len(e.result) > 0 && !isNull(e.result)
}

func (e *envelope) succeeded() bool {
	return e.status == "success" || e.status == "ok"
}

func (e *envelope) failed() bool {
	return e.status == "error" || e.status == "fail" || e.status == "failed"
}

// messageString возвращает message, если это JSON строка.
func (e *envelope) messageString() (string, bool) {
	if len(e.message) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.message, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// rejection превращает {"status":"error"} в TransportError с текстом процессора.
func (e *envelope) rejection(op string) error {
	msg, _ := e.messageString()
	if msg == "" {
		msg = string(e.message)
	}
	return &domain.TransportError{Op: op, Body: snippet(e.raw), Err: fmt.Errorf("процессор отклонил запрос: %s", msg)}
}

// decodeRecords разбирает полезную нагрузку в список объектов-счетов.
// Объект с полем invoices/items/data, содержащим массив, разворачивается.
// ok=false, если нагрузка не массив и не объект или содержит не-объекты.
func decodeRecords(payload []byte) (records []domain.Fields, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}

	if obj, isObj := domain.FieldsFrom(v); isObj {
		for _, key := range []string{"invoices", "items", "data"} {
			if list, isList := obj[key].([]any); isList {
				return fieldsList(list)
			}
		}
		return []domain.Fields{obj}, true
	}
	if list, isList := v.([]any); isList {
		return fieldsList(list)
	}
	return nil, false
}

func fieldsList(list []any) ([]domain.Fields, bool) {
	out := make([]domain.Fields, 0, len(list))
	for _, item := range list {
		f, ok := domain.FieldsFrom(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isEmptyArray(s string) bool {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "") == "[]"
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
