package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"example.com/crypto-checkout/pkg/circuitbreaker"
	"example.com/crypto-checkout/pkg/jwt"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "валидация", err: domain.NewValidationError("amount", domain.ErrInvalidAmount), wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "подлинность", err: &domain.AuthenticityError{Scheme: "shared-secret", Err: domain.ErrSignatureMismatch}, wantCode: http.StatusUnauthorized, wantErr: "unauthenticated"},
		{name: "токен переадресации", err: fmt.Errorf("%w: expired", jwt.ErrInvalidToken), wantCode: http.StatusBadRequest, wantErr: "invalid_token"},
		{name: "транспорт", err: &domain.TransportError{Op: "get_invoices", Err: errors.New("timeout")}, wantCode: http.StatusBadGateway, wantErr: "processor_error"},
		{name: "circuit breaker", err: &domain.TransportError{Op: "get_invoices", Err: circuitbreaker.ErrOpen}, wantCode: http.StatusServiceUnavailable, wantErr: "processor_unavailable"},
		{name: "форма ответа", err: &domain.UnrecognizedShapeError{Op: "get_invoices", Reason: "?", Raw: []byte(`{"foo":1}`)}, wantCode: http.StatusBadGateway, wantErr: "processor_bad_response"},
		{name: "прочее", err: errors.New("boom"), wantCode: http.StatusInternalServerError, wantErr: "internal_error"},
		{name: "nil", err: nil, wantCode: http.StatusInternalServerError, wantErr: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			HandleError(c, tt.err, "Test")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, w).Error)
		})
	}
}

func TestHandleError_ShapeErrorHidesRawBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleError(c, &domain.UnrecognizedShapeError{Op: "create_invoice", Raw: []byte(`{"secret":"leak"}`)}, "Test")
	assert.NotContains(t, w.Body.String(), "leak")
}
