package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/crypto-checkout/pkg/circuitbreaker"
	"example.com/crypto-checkout/pkg/jwt"
	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleError преобразует ошибку домена в HTTP ответ.
func HandleError(c *gin.Context, err error, op string) {
	log := logger.FromContext(c.Request.Context())

	if err == nil {
		log.Error().Str("op", op).Msg("HandleError вызван с nil ошибкой")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Внутренняя ошибка сервера"})
		return
	}

	var (
		validationErr *domain.ValidationError
		authErr       *domain.AuthenticityError
		transportErr  *domain.TransportError
		shapeErr      *domain.UnrecognizedShapeError
	)

	httpStatus, code, message := 0, "", err.Error()
	switch {
	case errors.As(err, &validationErr):
		httpStatus, code = http.StatusBadRequest, "invalid_request"
	case errors.As(err, &authErr):
		httpStatus, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, jwt.ErrInvalidToken):
		httpStatus, code = http.StatusBadRequest, "invalid_token"
	case errors.Is(err, circuitbreaker.ErrOpen):
		httpStatus, code = http.StatusServiceUnavailable, "processor_unavailable"
		message = "Платёжный процессор временно недоступен"
	case errors.As(err, &transportErr):
		httpStatus, code = http.StatusBadGateway, "processor_error"
	case errors.As(err, &shapeErr):
		httpStatus, code = http.StatusBadGateway, "processor_bad_response"
		// сырой ответ процессора остаётся в логах
		message = "Процессор вернул ответ неизвестной формы"
	default:
		httpStatus, code = http.StatusInternalServerError, "internal_error"
		message = "Внутренняя ошибка сервера"
	}

	event := log.Warn()
	if httpStatus >= 500 {
		event = log.Error()
	}
	event.Err(err).Str("op", op).Int("status", httpStatus).Msg("Ошибка обработки запроса")

	c.JSON(httpStatus, ErrorResponse{Error: code, Message: message})
}
