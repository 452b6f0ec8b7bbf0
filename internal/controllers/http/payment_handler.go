package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PaymentSuccess consumes the provider redirect and schedules one delayed
// navigation to the orders page.
func (h *Handler) PaymentSuccess(c *gin.Context) {
	outcome, err := h.payments.Process(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	h.invalidateOrders(c)
	c.Header("Refresh", fmt.Sprintf("%d; url=%s", int(h.redirectDelay.Seconds()), outcome.RedirectURL))
	c.JSON(http.StatusOK, outcome)
}
