package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/services"
	apperrors "storefront/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	SuccessPath          = "/success"
	MsgOutOfStock        = "This product is out of stock."
	MsgProductRequired   = "Product is required"
	MsgTooManyPayRequest = "Too many payment requests. Please wait a moment and try again."
)

// ListOrders lists the shopper's orders. A request that carries the payment
// provider's return parameters is sent on to the success page instead.
func (h *Handler) ListOrders(c *gin.Context) {
	if c.Query("pidx") != "" || c.Query("txnId") != "" {
		h.routePaymentReturn(c)
		return
	}

	q := services.NormalizeOrderQuery(domain.OrderQuery{
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
		Status: c.Query("status"),
		Search: c.Query("search"),
	})

	page, err := h.loadOrders(c, q)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, newOrdersResponse(page))
}

func (h *Handler) loadOrders(c *gin.Context, q domain.OrderQuery) (*domain.OrderPage, error) {
	ctx := c.Request.Context()
	owner := ownerFrom(c)

	if h.orderCache != nil {
		page, err := h.orderCache.GetOrders(ctx, owner, q)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("order cache read failed", zap.Error(err))
		}
	}

	page, err := h.orders.GetAllOrders(ctx, q)
	if err != nil {
		return nil, err
	}

	if h.orderCache != nil {
		if err := h.orderCache.SetOrders(ctx, owner, q, page); err != nil {
			h.logger.Warn("order cache write failed", zap.Error(err))
		}
	}
	return page, nil
}

func (h *Handler) routePaymentReturn(c *gin.Context) {
	q := c.Request.URL.Query()
	if q.Get("purchase_order_id") == "" {
		page, err := h.orders.GetAllOrders(c.Request.Context(), services.NormalizeOrderQuery(domain.OrderQuery{}))
		if err != nil {
			h.logger.Warn("could not resolve order for payment return", zap.Error(err))
		} else if o, ok := page.FirstPayable(); ok {
			q.Set("purchase_order_id", o.OrderCode())
		}
	}
	c.Redirect(http.StatusFound, SuccessPath+"?"+q.Encode())
}

func (h *Handler) invalidateOrders(c *gin.Context) {
	if h.orderCache == nil {
		return
	}
	if err := h.orderCache.InvalidateOrders(c.Request.Context(), ownerFrom(c)); err != nil {
		h.logger.Warn("order cache invalidation failed", zap.Error(err))
	}
}

func (h *Handler) ListDrafts(c *gin.Context) {
	drafts := []domain.BuyNowDraft{}
	if h.drafts != nil {
		list, err := h.drafts.ListDrafts(c.Request.Context(), ownerFrom(c))
		if err != nil {
			h.respondError(c, err, nil)
			return
		}
		if list != nil {
			drafts = list
		}
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts})
}

// BuyNow records a single-product draft order for the shopper.
func (h *Handler) BuyNow(c *gin.Context) {
	var req BuyNowRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Product.ID == "" || req.Product.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgProductRequired})
		return
	}
	if req.Product.Stock <= 0 {
		c.JSON(http.StatusConflict, gin.H{"error": MsgOutOfStock})
		return
	}

	draft := domain.NewBuyNowDraft(*req.Product, h.now())
	if h.drafts != nil {
		if err := h.drafts.AppendDraft(c.Request.Context(), ownerFrom(c), draft); err != nil {
			h.respondError(c, err, nil)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"draft": draft})
}

// PayOrder starts a Khalti payment for a payable order and sends the browser
// to the hosted checkout. On failure the current order list comes back with
// the error.
func (h *Handler) PayOrder(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := h.orders.PayOrder(ctx, c.Param("code"))
	if err != nil {
		extra := gin.H{}
		if page, ferr := h.orders.GetAllOrders(ctx, services.NormalizeOrderQuery(domain.OrderQuery{})); ferr == nil {
			extra["orders"] = newOrdersResponse(page).Orders
		} else {
			h.logger.Warn("order re-fetch after payment failure failed", zap.Error(ferr))
		}
		if apperrors.IsRateLimited(err) {
			extra["error"] = MsgTooManyPayRequest
		}
		h.respondError(c, err, extra)
		return
	}

	h.invalidateOrders(c)
	if wantsJSON(c) {
		resp := PaymentResponse{Pidx: session.Pidx, PaymentURL: session.PaymentURL}
		if !session.ExpiresAt.IsZero() {
			resp.ExpiresAt = session.ExpiresAt.Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, resp)
		return
	}
	c.Redirect(http.StatusSeeOther, session.PaymentURL)
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON)
}
