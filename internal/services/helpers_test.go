package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/infra"
)

// recordedCall is one request seen by a fake backend.
type recordedCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeBackend is an httptest server that answers from a route table and
// records every call it receives.
type fakeBackend struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []recordedCall
	routes map[string]http.HandlerFunc
	srv    *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{t: t, routes: map[string]http.HandlerFunc{}}
	fb.srv = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	call := recordedCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
	}
	fb.mu.Lock()
	fb.calls = append(fb.calls, call)
	h, ok := fb.routes[r.Method+" "+r.URL.Path]
	fb.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (fb *fakeBackend) on(method, path string, h http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.routes[method+" /api"+path] = h
}

func (fb *fakeBackend) Calls() []recordedCall {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]recordedCall, len(fb.calls))
	copy(out, fb.calls)
	return out
}

func (fb *fakeBackend) client() *infra.BackendClient {
	return infra.NewBackendClient(fb.srv.URL+"/api", 5*time.Second, nil)
}

func respondJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func CreateMockCartItem(id, productID string, quantity, stock, price, deliveryCharge int64) domain.CartItem {
	return domain.CartItem{
		ID: id,
		Product: &domain.Product{
			ID:    productID,
			Name:  "Product " + productID,
			Price: price,
			Stock: stock,
		},
		Quantity:       quantity,
		Price:          price,
		SubTotal:       price * quantity,
		DeliveryCharge: deliveryCharge,
		Total:          price*quantity + deliveryCharge,
	}
}

func CreateMockOrder(code string, status domain.OrderStatus, isPaid bool) domain.Order {
	return domain.Order{
		ID:        "id-" + code,
		Code:      code,
		Status:    status,
		IsPaid:    isPaid,
		Total:     TestOrderTotal,
		CreatedAt: time.Now(),
	}
}

const (
	TestProductID  = "68528ebd7aefacfd55e2bb53"
	TestOrderCode  = "fSAqlta9HBG7FQv"
	TestPidx       = "f6uvyMRv5fTgWoLCfGn8jE"
	TestOrderTotal = int64(4813800)
	TestToken      = "test-token"
)
