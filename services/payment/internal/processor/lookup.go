package processor

import (
	"context"
	"fmt"

	"example.com/crypto-checkout/services/payment/internal/domain"
)

// Probe — значение вспомогательного параметра status в get_invoices.
// Смысл значений установлен наблюдением за процессором, а не документацией.
type Probe int

const (
	// ProbeWaiting просит отфильтровать счета «как ожидающие».
	ProbeWaiting Probe = 0
	// ProbeSuccessful просит отфильтровать счета «как успешные».
	ProbeSuccessful Probe = 1
)

// Query — параметры поиска счёта. Нужен хотя бы один идентификатор.
type Query struct {
	OrderID   string
	InvoiceID string
	Probe     *Probe
}

// WithProbe возвращает копию запроса с пробой p.
func (q Query) WithProbe(p Probe) Query {
	q.Probe = &p
	return q
}

// Validate требует order_id или invoice_id.
func (q Query) Validate() error {
	if q.OrderID == "" && q.InvoiceID == "" {
		return domain.NewValidationError("order_id", domain.ErrMissingIdentifier)
	}
	return nil
}

func (q Query) body() map[string]any {
	body := map[string]any{}
	if q.OrderID != "" {
		body["order_id"] = q.OrderID
	}
	if q.InvoiceID != "" {
		body["invoice_id"] = q.InvoiceID
	}
	if q.Probe != nil {
		body["status"] = int(*q.Probe)
	}
	return body
}

// LookupKind — вид успешного результата поиска.
type LookupKind string

const (
	// LookupInvoices — процессор вернул хотя бы один счёт.
	LookupInvoices LookupKind = "invoices"
	// LookupEmpty — счетов в ответе нет. Положительным сигналом оплаты под
	// ProbeSuccessful считается только форма ShapeEmptyMarker; пустой список
	// в любой другой форме означает обычное «не найдено».
	LookupEmpty LookupKind = "empty"
)

// LookupResult — нормализованный успешный ответ get_invoices.
type LookupResult struct {
	Kind     LookupKind
	Shape    ResponseShape
	Invoices []*domain.Invoice
	Raw      []byte
}

// IsEmpty сообщает, что счетов в ответе нет, в любой форме.
func (r *LookupResult) IsEmpty() bool {
	return r.Kind == LookupEmpty
}

// IsEmptyMarker сообщает, что ответ — маркер {"status":"success","message":"[]"}.
// Пустой {"result":[]} или пустой вложенный список маркером не являются.
func (r *LookupResult) IsEmptyMarker() bool {
	return r.Kind == LookupEmpty && r.Shape == ShapeEmptyMarker
}

// Pick выбирает счёт: совпадающий по invoiceID, иначе самый поздний по
// created_at, иначе первый. nil, если счетов нет.
func (r *LookupResult) Pick(invoiceID string) *domain.Invoice {
	if len(r.Invoices) == 0 {
		return nil
	}
	if invoiceID != "" {
		for _, inv := range r.Invoices {
			if inv.ID == invoiceID {
				return inv
			}
		}
	}

	best := r.Invoices[0]
	for _, inv := range r.Invoices[1:] {
		if inv.CreatedAt != nil && (best.CreatedAt == nil || inv.CreatedAt.After(*best.CreatedAt)) {
			best = inv
		}
	}
	return best
}

// decodeLookup разбирает три допустимые формы ответа get_invoices.
func decodeLookup(raw []byte, c domain.Classifier) (*LookupResult, error) {
	env, err := parseEnvelope(OpGetInvoices, raw)
	if err != nil {
		return nil, err
	}

	var (
		payload []byte
		shape   ResponseShape
	)

	switch {
	case env.hasResult():
		payload, shape = env.result, ShapeResult

	case env.succeeded():
		if s, isString := env.messageString(); isString {
			if isEmptyArray(s) {
				return &LookupResult{Kind: LookupEmpty, Shape: ShapeEmptyMarker, Raw: raw}, nil
			}
			payload, shape = []byte(s), ShapeEncodedMessage
		} else if len(env.message) > 0 && !isNull(env.message) {
			// message пришёл уже разобранным объектом или массивом
			payload, shape = env.message, ShapeEncodedMessage
		} else {
			return nil, &domain.UnrecognizedShapeError{Op: OpGetInvoices, Reason: "status=success без message", Raw: raw}
		}

	case env.failed():
		return nil, env.rejection(OpGetInvoices)

	default:
		return nil, &domain.UnrecognizedShapeError{Op: OpGetInvoices, Reason: "нет ни result, ни status=success", Raw: raw}
	}

	records, ok := decodeRecords(payload)
	if !ok {
		return nil, &domain.UnrecognizedShapeError{
			Op:     OpGetInvoices,
			Reason: fmt.Sprintf("полезная нагрузка формы %s не является счётом или списком счетов", shape),
			Raw:    raw,
		}
	}
	if len(records) == 0 {
		return &LookupResult{Kind: LookupEmpty, Shape: shape, Raw: raw}, nil
	}

	invoices := make([]*domain.Invoice, 0, len(records))
	for _, f := range records {
		invoices = append(invoices, domain.InvoiceFromFields(f, c))
	}
	return &LookupResult{Kind: LookupInvoices, Shape: shape, Invoices: invoices, Raw: raw}, nil
}

// Lookup запрашивает get_invoices. Ошибки: *domain.ValidationError (нет
// идентификаторов, сеть не трогается), *domain.TransportError,
// *domain.UnrecognizedShapeError.
func (g *Gateway) Lookup(ctx context.Context, q Query) (*LookupResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	raw, err := g.client.post(ctx, OpGetInvoices, g.client.cfg.LookupPath, q.body())
	if err != nil {
		return nil, err
	}

	res, err := decodeLookup(raw, g.classifier)
	if err != nil {
		g.recordShapeError(ctx, OpGetInvoices, err)
		return nil, err
	}
	return res, nil
}
