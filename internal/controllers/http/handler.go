package http

import (
	"strconv"
	"time"

	"storefront/internal/cache"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultRedirectDelay = 5 * time.Second

type HandlerDeps struct {
	Cart     CartUseCase
	Orders   OrderUseCase
	Payments PaymentCallbackUseCase
	Auth     AuthUseCase

	// optional, redis backed
	Drafts     cache.DraftStore
	OrderCache cache.OrderListCache

	// RedirectDelay is how long the payment success page waits before
	// sending the shopper to the orders page.
	RedirectDelay time.Duration
	SecureCookies bool
	Logger        *zap.Logger
	Now           func() time.Time
}

type Handler struct {
	cart          CartUseCase
	orders        OrderUseCase
	payments      PaymentCallbackUseCase
	auth          AuthUseCase
	drafts        cache.DraftStore
	orderCache    cache.OrderListCache
	redirectDelay time.Duration
	secureCookies bool
	latch         *itemLatch
	logger        *zap.Logger
	now           func() time.Time
}

func NewHandler(d HandlerDeps) *Handler {
	h := &Handler{
		cart:          d.Cart,
		orders:        d.Orders,
		payments:      d.Payments,
		auth:          d.Auth,
		drafts:        d.Drafts,
		orderCache:    d.OrderCache,
		redirectDelay: d.RedirectDelay,
		secureCookies: d.SecureCookies,
		latch:         newItemLatch(),
		logger:        d.Logger,
		now:           d.Now,
	}
	if h.redirectDelay <= 0 {
		h.redirectDelay = defaultRedirectDelay
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.POST("/login", h.Login)

	authed := r.Group("")
	authed.Use(RequireAuth(h.logger))
	{
		authed.GET("/me", h.Me)

		authed.GET("/cart", h.GetCart)
		authed.POST("/cart/items", h.AddToCart)
		authed.PATCH("/cart/items/:productId", h.UpdateCartItem)
		authed.DELETE("/cart/items/:productId", h.RemoveFromCart)
		authed.POST("/cart/checkout", h.Checkout)

		authed.GET("/orders", h.ListOrders)
		authed.GET("/orders/drafts", h.ListDrafts)
		authed.POST("/orders/:code/pay", h.PayOrder)
		authed.POST("/buy-now", h.BuyNow)

		authed.GET("/success", h.PaymentSuccess)
	}
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
