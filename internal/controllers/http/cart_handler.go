package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/services"
	apperrors "storefront/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	MsgInvalidQuantity   = "Invalid quantity requested"
	MsgItemNotFound      = "Item not found in cart"
	MsgRefreshQuantity   = "Invalid quantity detected. Please refresh the page and try again."
	MsgItemBusy          = "This item is already being updated. Please wait."
	MsgConfirmRemoval    = "Please confirm removal of this item from your cart."
	MsgCartUnavailable   = "Some items in your cart are no longer available or have invalid quantities. Please update your cart."
	MsgCartUpdated       = "Cart updated"
	MsgItemRemoved       = "Item removed from cart"
	MsgAddedToCart       = "Item added to cart"
	MsgOrderPlaced       = "Order placed successfully"
	maxStockMessage      = "Cannot add more than %d items (available stock)"
	lessThanMinimumToken = "less than minimum"
)

func (h *Handler) GetCart(c *gin.Context) {
	page, err := h.cart.GetCartItems(c.Request.Context(), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(page))
}

func (h *Handler) AddToCart(c *gin.Context) {
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product is required"})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := h.cart.AddToCart(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": MsgAddedToCart, "item": item})
}

// UpdateCartItem sets an item's quantity. The requested quantity is checked
// against the current cart before anything is sent, and the fresh cart is
// returned whether or not the backend accepted the change.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	productID := c.Param("productId")
	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": MsgInvalidQuantity})
		return
	}
	quantity := *req.Quantity
	if quantity < 1 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": MsgInvalidQuantity})
		return
	}

	key := ownerFrom(c) + ":" + productID
	if !h.latch.tryAcquire(key) {
		c.JSON(http.StatusConflict, gin.H{"error": MsgItemBusy})
		return
	}
	defer h.latch.release(key)

	ctx := c.Request.Context()
	snapshot, ok := h.snapshot(c)
	if !ok {
		return
	}

	item, found := snapshot.Find(productID)
	if !found {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": MsgItemNotFound})
		return
	}
	if quantity > item.Stock() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf(maxStockMessage, item.Stock())})
		return
	}

	if err := h.cart.UpdateCartItem(ctx, snapshot, productID, quantity); err != nil {
		h.respondMutationError(c, err)
		return
	}
	h.respondFreshCart(c, MsgCartUpdated)
}

// RemoveFromCart is destructive and needs ?confirm=true.
func (h *Handler) RemoveFromCart(c *gin.Context) {
	productID := c.Param("productId")
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": MsgConfirmRemoval, "confirm": "?confirm=true"})
		return
	}

	key := ownerFrom(c) + ":" + productID
	if !h.latch.tryAcquire(key) {
		c.JSON(http.StatusConflict, gin.H{"error": MsgItemBusy})
		return
	}
	defer h.latch.release(key)

	snapshot, ok := h.snapshot(c)
	if !ok {
		return
	}
	if _, found := snapshot.Find(productID); !found {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": MsgItemNotFound})
		return
	}

	if err := h.cart.RemoveFromCart(c.Request.Context(), snapshot, productID); err != nil {
		h.respondMutationError(c, err)
		return
	}
	h.respondFreshCart(c, MsgItemRemoved)
}

// Checkout places one order for every item in the cart. Items that can no
// longer be ordered block the checkout and the fresh cart is returned.
func (h *Handler) Checkout(c *gin.Context) {
	ctx := c.Request.Context()
	page, err := h.cart.RefreshCart(ctx)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if len(page.Items) == 0 {
		h.respondError(c, services.ErrEmptyCart, nil)
		return
	}

	ids := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		if !item.Checkoutable() {
			c.JSON(http.StatusConflict, gin.H{"error": MsgCartUnavailable, "cart": newCartResponse(page)})
			return
		}
		ids = append(ids, item.ID)
	}

	result, err := h.orders.Checkout(ctx, ids)
	if err != nil {
		if services.IsCartNotFound(err) {
			h.respondError(c, err, h.freshCartExtra(ctx))
			return
		}
		h.respondError(c, err, nil)
		return
	}

	h.invalidateOrders(c)
	msg := result.Message
	if msg == "" {
		msg = MsgOrderPlaced
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  msg,
		"status":   result.Status,
		"order":    result.Order,
		"redirect": services.OrdersPath,
	})
}

// snapshot reads the cart a mutation computes its delta against. It must not
// join a listing that started before an earlier mutation landed.
func (h *Handler) snapshot(c *gin.Context) (domain.CartSnapshot, bool) {
	page, err := h.cart.RefreshCart(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return domain.CartSnapshot{}, false
	}
	return page.Snapshot(), true
}

func (h *Handler) respondFreshCart(c *gin.Context, msg string) {
	page, err := h.cart.RefreshCart(c.Request.Context())
	if err != nil {
		h.logger.Warn("cart re-fetch after mutation failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"message": msg})
		return
	}
	resp := newCartResponse(page)
	resp.Message = msg
	c.JSON(http.StatusOK, resp)
}

// respondMutationError returns the backend rejection together with the cart
// as it is now.
func (h *Handler) respondMutationError(c *gin.Context, err error) {
	extra := h.freshCartExtra(c.Request.Context())
	if strings.Contains(strings.ToLower(apperrors.UserMessage(err)), lessThanMinimumToken) {
		extra["error"] = MsgRefreshQuantity
	}
	h.respondError(c, err, extra)
}

func (h *Handler) freshCartExtra(ctx context.Context) gin.H {
	extra := gin.H{}
	page, err := h.cart.RefreshCart(ctx)
	if err != nil {
		h.logger.Warn("cart re-fetch failed", zap.Error(err))
		return extra
	}
	extra["cart"] = newCartResponse(page)
	return extra
}
