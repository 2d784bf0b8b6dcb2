package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/crypto-checkout/services/payment/internal/notification"
)

// WebhookHandler принимает уведомления процессора.
type WebhookHandler struct {
	notifications   NotificationHandler
	signatureHeader string
	maxBodyBytes    int64
}

// NewWebhookHandler создаёт WebhookHandler.
func NewWebhookHandler(n NotificationHandler, signatureHeader string, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookHandler{notifications: n, signatureHeader: signatureHeader, maxBodyBytes: maxBodyBytes}
}

// Notify обрабатывает уведомление.
// POST {callback_path}
func (h *WebhookHandler) Notify(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload_too_large", Message: "Слишком большое тело уведомления"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Не удалось прочитать тело уведомления"})
		return
	}

	req := notification.Request{Body: body}
	if h.signatureHeader != "" {
		req.Signature = c.GetHeader(h.signatureHeader)
	}

	res, err := h.notifications.Handle(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err, "Notify")
		return
	}

	c.JSON(http.StatusOK, res)
}
