package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/services/payment/internal/issuer"
)

// InvoiceHandler — выставление счетов.
type InvoiceHandler struct {
	issuer InvoiceIssuer
}

// NewInvoiceHandler создаёт InvoiceHandler.
func NewInvoiceHandler(i InvoiceIssuer) *InvoiceHandler {
	return &InvoiceHandler{issuer: i}
}

// CreateInvoice выставляет счёт.
// POST /api/v1/invoices
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	ctx := c.Request.Context()

	var req issuer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.FromContext(ctx).Debug().Err(err).Msg("Невалидный запрос на выставление счёта")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Невалидные данные запроса",
		})
		return
	}

	res, err := h.issuer.CreateInvoice(ctx, req)
	if err != nil {
		HandleError(c, err, "CreateInvoice")
		return
	}

	c.JSON(http.StatusCreated, res)
}
