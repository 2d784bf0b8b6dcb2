package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice — счёт в каноническом виде, независимо от формы ответа процессора.
// Адресуется по OrderID или ID; хотя бы одно из них заполнено.
type Invoice struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`

	// StatusLabel — исходная метка процессора, пусто если не передана.
	StatusLabel string         `json:"status_label,omitempty"`
	Status      PaymentOutcome `json:"status"`

	PriceAmount   *decimal.Decimal `json:"price_amount,omitempty"`
	PriceCurrency string           `json:"price_currency,omitempty"`
	// PriceAmountInvalid — цена пришла, но не разобрана как число; PriceAmount при этом nil.
	PriceAmountInvalid bool `json:"price_amount_invalid,omitempty"`

	PaidAmount   *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidCurrency string           `json:"paid_currency,omitempty"`
	// PaidAmountInvalid — сумма оплаты пришла, но не разобрана как число.
	PaidAmountInvalid bool             `json:"paid_amount_invalid,omitempty"`
	PaidFiat          *decimal.Decimal `json:"paid_fiat,omitempty"`
	PaidFiatInvalid   bool             `json:"paid_fiat_invalid,omitempty"`

	PaymentURL string     `json:"payment_url,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	// Synthesized — запись собрана сервисом, а не получена от процессора.
	Synthesized bool `json:"synthesized,omitempty"`
}

// Known псевдонимы полей в ответах и уведомлениях разных версий API процессора.
// Порядок задаёт приоритет: берётся первое непустое значение.
var (
	InvoiceIDAliases     = []string{"invoice_id", "id"}
	OrderIDAliases       = []string{"order_id"}
	StatusAliases        = []string{"status", "payment_status", "invoice_status"}
	PriceAmountAliases   = []string{"price_amount", "invoice_amount"}
	PriceCurrencyAliases = []string{"price_currency", "invoice_currency"}
	PaidAmountAliases    = []string{"actually_paid", "paid_amount", "payment_amount", "amount"}
	PaidCurrencyAliases  = []string{"actually_paid_currency", "paid_currency", "payment_currency", "amount_currency", "pay_currency"}
	PaidFiatAliases      = []string{"actually_paid_at_fiat", "paid_fiat", "paid_in_fiat"}
	PaymentURLAliases    = []string{"invoice_url", "payment_url", "pay_url", "url"}
	CreatedAtAliases     = []string{"created_at", "created"}
	ExpiresAtAliases     = []string{"expires_at", "expired_at", "expiry", "expiration_estimate_date"}
)

// InvoiceFromFields собирает Invoice из полей ответа или уведомления и
// классифицирует его. Неразобранная цена трактуется как отсутствующая,
// неразобранная сумма оплаты помечается PaidAmountInvalid. Неразобранные
// цена и фиатный эквивалент отмечаются флагами PriceAmountInvalid и PaidFiatInvalid.
func InvoiceFromFields(f Fields, c Classifier) *Invoice {
	inv := &Invoice{
		ID:            f.String(InvoiceIDAliases...),
		OrderID:       f.String(OrderIDAliases...),
		StatusLabel:   f.String(StatusAliases...),
		PriceCurrency: f.String(PriceCurrencyAliases...),
		PaidCurrency:  f.String(PaidCurrencyAliases...),
		PaymentURL:    f.String(PaymentURLAliases...),
		CreatedAt:     f.Time(CreatedAtAliases...),
		ExpiresAt:     f.Time(ExpiresAtAliases...),
	}

	price, err := f.Amount(PriceAmountAliases...)
	inv.PriceAmount = price
	inv.PriceAmountInvalid = err != nil

	paid, err := f.Amount(PaidAmountAliases...)
	inv.PaidAmount = paid
	inv.PaidAmountInvalid = err != nil

	fiat, err := f.Amount(PaidFiatAliases...)
	inv.PaidFiat = fiat
	inv.PaidFiatInvalid = err != nil

	inv.Status = c.ClassifyInvoice(inv)
	return inv
}
