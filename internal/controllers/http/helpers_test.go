package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

const testToken = "opaque-test-token"

type testEnv struct {
	handler  *Handler
	router   *gin.Engine
	cart     *mocks.MockCartUseCase
	orders   *mocks.MockOrderUseCase
	payments *mocks.MockPaymentCallbackUseCase
	auth     *mocks.MockAuthUseCase
	store    *cache.RedisStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		cart:     new(mocks.MockCartUseCase),
		orders:   new(mocks.MockOrderUseCase),
		payments: new(mocks.MockPaymentCallbackUseCase),
		auth:     new(mocks.MockAuthUseCase),
		store:    cache.NewRedisStore(client),
	}
	env.handler = NewHandler(HandlerDeps{
		Cart:       env.cart,
		Orders:     env.orders,
		Payments:   env.payments,
		Auth:       env.auth,
		Drafts:     env.store,
		OrderCache: env.store,
		Now:        func() time.Time { return time.UnixMilli(1700000000000) },
	})
	env.router = gin.New()
	env.handler.RegisterRoutes(env.router)
	return env
}

// do sends an authenticated JSON request.
func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	return e.doWith(method, path, body, http.Header{"Authorization": {"Bearer " + testToken}})
}

func (e *testEnv) doWith(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func cartItem(id, productID string, quantity, stock int64) domain.CartItem {
	return domain.CartItem{
		ID:             id,
		Product:        &domain.Product{ID: productID, Name: "Product " + productID, Price: 1000, AfterDiscount: 1000, Stock: stock},
		Quantity:       quantity,
		Price:          1000,
		SubTotal:       1000 * quantity,
		DeliveryCharge: 100,
		Total:          1000*quantity + 100,
	}
}

func cartPage(items ...domain.CartItem) *domain.CartPage {
	return &domain.CartPage{Items: items, Pagination: domain.Pagination{Page: 1, Limit: 50, TotalCount: int64(len(items))}}
}
