package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

// Схемы проверки подлинности.
const (
	SchemeHMAC         = "hmac-sha512"
	SchemeSharedSecret = "shared-secret"
)

// Поля тела, в которых процессор передаёт подпись или общий секрет.
var (
	signatureFields = []string{"sign", "signature"}
	secretFields    = []string{"secret"}
)

// Request — входящее уведомление как оно пришло по HTTP.
type Request struct {
	Body []byte
	// Signature — значение заголовка подписи, пусто если заголовка нет.
	Signature string
}

// Authenticator — одна схема проверки подлинности уведомления.
// Applies сообщает, есть ли в запросе признаки этой схемы.
type Authenticator interface {
	Scheme() string
	Applies(req Request, f domain.Fields) bool
	Verify(req Request, f domain.Fields) error
}

// =============================================================================
// HMAC-SHA512
// =============================================================================

// HMACAuthenticator проверяет hex HMAC-SHA512 над каноническим JSON тела.
// Подпись берётся из заголовка, иначе из поля sign/signature.
type HMACAuthenticator struct {
	secret []byte
}

// NewHMACAuthenticator создаёт HMACAuthenticator.
func NewHMACAuthenticator(secret string) *HMACAuthenticator {
	return &HMACAuthenticator{secret: []byte(secret)}
}

func (a *HMACAuthenticator) Scheme() string { return SchemeHMAC }

func (a *HMACAuthenticator) Applies(req Request, f domain.Fields) bool {
	if strings.TrimSpace(req.Signature) != "" {
		return true
	}
	_, _, ok := f.First(signatureFields...)
	return ok
}

func (a *HMACAuthenticator) Verify(req Request, f domain.Fields) error {
	got := strings.TrimSpace(req.Signature)
	if got == "" {
		got = f.String(signatureFields...)
	}

	expected, err := Sign(a.secret, f)
	if err != nil {
		return &domain.AuthenticityError{Scheme: SchemeHMAC, Err: err}
	}
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(expected)) {
		return &domain.AuthenticityError{Scheme: SchemeHMAC, Err: domain.ErrSignatureMismatch}
	}
	return nil
}

// Sign вычисляет hex HMAC-SHA512 над каноническим JSON полей без полей подписи.
func Sign(secret []byte, f domain.Fields) (string, error) {
	payload, err := Canonical(f)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Canonical сериализует поля с рекурсивно отсортированными ключами, без
// пробелов и без HTML-экранирования. Поля подписи исключаются.
func Canonical(f domain.Fields) ([]byte, error) {
	unsigned := make(map[string]any, len(f))
	for k, v := range f {
		unsigned[k] = v
	}
	for _, k := range signatureFields {
		delete(unsigned, k)
	}

	// encoding/json сортирует ключи map на любой глубине
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(unsigned); err != nil {
		return nil, fmt.Errorf("ошибка канонизации уведомления: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// =============================================================================
// Общий секрет
// =============================================================================

// SharedSecretAuthenticator сравнивает поле secret тела с настроенным значением.
type SharedSecretAuthenticator struct {
	secret []byte
}

// NewSharedSecretAuthenticator создаёт SharedSecretAuthenticator.
func NewSharedSecretAuthenticator(secret string) *SharedSecretAuthenticator {
	return &SharedSecretAuthenticator{secret: []byte(secret)}
}

func (a *SharedSecretAuthenticator) Scheme() string { return SchemeSharedSecret }

func (a *SharedSecretAuthenticator) Applies(_ Request, f domain.Fields) bool {
	_, _, ok := f.First(secretFields...)
	return ok
}

func (a *SharedSecretAuthenticator) Verify(_ Request, f domain.Fields) error {
	got := []byte(f.String(secretFields...))
	if subtle.ConstantTimeCompare(got, a.secret) != 1 {
		return &domain.AuthenticityError{Scheme: SchemeSharedSecret, Err: domain.ErrSignatureMismatch}
	}
	return nil
}

// authenticate применяет все схемы, признаки которых есть в запросе.
// Если ни одна не применима, а подпись обязательна, запрос отклоняется.
// Подпись или секрет без подходящей схемы пишутся в лог предупреждением:
// обычно это значит, что секрет не задан в конфигурации.
func authenticate(ctx context.Context, auths []Authenticator, require bool, req Request, f domain.Fields) (string, error) {
	var schemes []string
	for _, a := range auths {
		if !a.Applies(req, f) {
			continue
		}
		if err := a.Verify(req, f); err != nil {
			return a.Scheme(), err
		}
		schemes = append(schemes, a.Scheme())
	}

	if len(schemes) == 0 {
		if presented := presentedCredentials(req, f); len(presented) > 0 {
			logger.Ctx(ctx).Warn().
				Strs("credentials", presented).
				Bool("require_signature", require).
				Msg("Уведомление содержит подпись или секрет, но ни одна схема проверки не настроена")
		}
		if require {
			return "", &domain.AuthenticityError{Scheme: "none", Err: domain.ErrSignatureRequired}
		}
		return "none", nil
	}
	return strings.Join(schemes, ","), nil
}

// presentedCredentials перечисляет признаки подлинности, пришедшие в запросе.
func presentedCredentials(req Request, f domain.Fields) []string {
	var out []string
	if strings.TrimSpace(req.Signature) != "" {
		out = append(out, "header")
	}
	for _, k := range append(append([]string(nil), signatureFields...), secretFields...) {
		if f.String(k) != "" {
			out = append(out, k)
		}
	}
	return out
}
