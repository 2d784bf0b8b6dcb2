package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/services/payment/internal/issuer"
)

// RedirectHandler — промежуточные страницы возврата покупателя от процессора.
// Сверяет статус и переадресует на адрес магазина, подписанный при выставлении счёта.
type RedirectHandler struct {
	reconciler Reconciler
	verifier   ForwardVerifier
}

// NewRedirectHandler создаёт RedirectHandler.
func NewRedirectHandler(r Reconciler, v ForwardVerifier) *RedirectHandler {
	return &RedirectHandler{reconciler: r, verifier: v}
}

// Success — возврат после оплаты.
// GET {success_path}?order_id=&redirect=&token=
func (h *RedirectHandler) Success(c *gin.Context) {
	h.forward(c, "success")
}

// Cancel — возврат после отмены или ошибки оплаты.
// GET {cancel_path}?order_id=&redirect=&token=
func (h *RedirectHandler) Cancel(c *gin.Context) {
	h.forward(c, "cancel")
}

func (h *RedirectHandler) forward(c *gin.Context, page string) {
	ctx := c.Request.Context()
	orderID := c.Query(issuer.ParamOrderID)
	redirect := c.Query(issuer.ParamRedirect)

	if orderID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Не указан order_id"})
		return
	}

	var target *url.URL
	if redirect != "" {
		if err := h.verifier.Verify(c.Query(issuer.ParamToken), orderID, redirect); err != nil {
			HandleError(c, err, "Redirect")
			return
		}
		u, err := url.Parse(redirect)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Некорректный адрес переадресации"})
			return
		}
		target = u
	}

	outcome, err := h.reconciler.Reconcile(ctx, orderID)
	if err != nil {
		HandleError(c, err, "Redirect")
		return
	}

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("page", page).
		Str("status", string(outcome)).
		Bool("forward", target != nil).
		Msg("Возврат покупателя от процессора")

	if target == nil {
		c.JSON(http.StatusOK, StatusResponse{OrderID: orderID, Status: outcome, Paid: outcome.IsPaid()})
		return
	}

	q := target.Query()
	q.Set("order_id", orderID)
	q.Set("status", string(outcome))
	target.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, target.String())
}
