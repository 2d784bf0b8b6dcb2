package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/crypto-checkout/services/payment/internal/domain"
)

// StatusResponse — двухзначный статус заказа.
type StatusResponse struct {
	OrderID string                `json:"order_id"`
	Status  domain.PaymentOutcome `json:"status"`
	Paid    bool                  `json:"paid"`
}

// StatusHandler — сверка статуса заказа.
type StatusHandler struct {
	reconciler Reconciler
}

// NewStatusHandler создаёт StatusHandler.
func NewStatusHandler(r Reconciler) *StatusHandler {
	return &StatusHandler{reconciler: r}
}

// GetStatus возвращает FINISHED или WAITING.
// GET /api/v1/orders/:order_id/status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	orderID := c.Param("order_id")

	outcome, err := h.reconciler.Reconcile(c.Request.Context(), orderID)
	if err != nil {
		HandleError(c, err, "GetStatus")
		return
	}

	c.JSON(http.StatusOK, StatusResponse{OrderID: orderID, Status: outcome, Paid: outcome.IsPaid()})
}

// GetReconciliation возвращает исход со свидетельствами и уверенностью.
// GET /api/v1/orders/:order_id/reconciliation?invoice_id=
func (h *StatusHandler) GetReconciliation(c *gin.Context) {
	d, err := h.reconciler.ReconcileDetailed(c.Request.Context(), c.Param("order_id"), c.Query("invoice_id"))
	if err != nil {
		HandleError(c, err, "GetReconciliation")
		return
	}

	c.JSON(http.StatusOK, d)
}
