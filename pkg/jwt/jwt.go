// Package jwt выпускает и проверяет короткоживущие HS256 токены, которые
// привязывают адрес переадресации покупателя к конкретному заказу.
// Промежуточные endpoints success/cancel переадресуют только по валидному токену.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken — токен не прошёл проверку подписи, срока или привязки.
var ErrInvalidToken = errors.New("невалидный токен переадресации")

// ForwardClaims содержит привязку редиректа к заказу.
type ForwardClaims struct {
	jwt.RegisteredClaims
	OrderID  string `json:"order_id"`
	Redirect string `json:"redirect"`
}

// ForwardSigner подписывает и проверяет токены переадресации.
type ForwardSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewForwardSigner создаёт ForwardSigner. Пустой secret недопустим.
func NewForwardSigner(secret, issuer string, ttl time.Duration) (*ForwardSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("не задан секрет подписи токенов переадресации")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ForwardSigner{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Sign выпускает токен для пары (orderID, redirect).
func (s *ForwardSigner) Sign(orderID, redirect string) (string, error) {
	now := s.now()
	claims := ForwardClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   orderID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		OrderID:  orderID,
		Redirect: redirect,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена переадресации: %w", err)
	}
	return token, nil
}

// Verify проверяет подпись, срок действия и что токен выпущен именно
// для orderID и redirect.
func (s *ForwardSigner) Verify(token, orderID, redirect string) error {
	claims := &ForwardClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный алгоритм подписи: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.OrderID != orderID || claims.Redirect != redirect {
		return fmt.Errorf("%w: токен выпущен для другого заказа или адреса", ErrInvalidToken)
	}
	return nil
}
