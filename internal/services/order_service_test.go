package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/domain"
	rabbit "storefront/internal/infra/rabbitmq"
	"storefront/internal/mocks"
	"storefront/internal/repository"
	apperrors "storefront/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const successURL = "http://localhost:8080/success"

func newOrderService(fb *fakeBackend, repo *mocks.MockPaymentRepository, pub *mocks.MockPublisher) (*OrderService, *recordingTimer) {
	timer := &recordingTimer{}
	p := DefaultRetryPolicy()
	p.Timer = timer

	var journal repository.PaymentRepository
	if repo != nil {
		journal = repo
	}
	var publisher rabbit.PublisherInterface
	if pub != nil {
		publisher = pub
	}
	return NewOrderService(fb.client(), journal, publisher, p, successURL, nil), timer
}

func TestOrderService_Checkout(t *testing.T) {
	tests := []struct {
		name        string
		cartIDs     []string
		status      int
		body        string
		setupMocks  func(*mocks.MockPublisher)
		wantErr     string
		wantCode    string
		wantCalls   int
		wantOrderID string
	}{
		{
			name:    "order placed",
			cartIDs: []string{"a", "b"},
			status:  http.StatusCreated,
			body:    `{"data":{"_id":"o1","code":"ORD-1","status":"PENDING","isPaid":false,"total":4813800,"createdAt":"2025-06-25T09:59:10.109Z","updatedAt":"2025-06-25T09:59:10.109Z"},"message":"Order placed","status":"ORDER_PLACED"}`,
			setupMocks: func(pub *mocks.MockPublisher) {
				pub.On("Publish", mock.Anything, domain.EventOrderPlaced, mock.MatchedBy(func(evt domain.OrderPlacedEvent) bool {
					return evt.OrderCode == "ORD-1" && evt.Total == 4813800 && len(evt.CartIDs) == 2
				})).Return(nil).Once()
			},
			wantCalls:   1,
			wantOrderID: "o1",
		},
		{
			name:      "other status keeps shopper on cart",
			cartIDs:   []string{"a"},
			status:    http.StatusOK,
			body:      `{"data":null,"message":"Some products are unavailable","status":"ORDER_FAILED"}`,
			wantErr:   "Some products are unavailable",
			wantCode:  "ORDER_FAILED",
			wantCalls: 1,
		},
		{
			name:      "cart not found",
			cartIDs:   []string{"stale"},
			status:    http.StatusNotFound,
			body:      `{"message":"Cart not found","code":"CART_NOT_FOUND"}`,
			wantErr:   "Cart not found",
			wantCalls: 1,
		},
		{
			name:     "empty cart is rejected locally",
			cartIDs:  nil,
			wantErr:  "Your cart is empty",
			wantCode: CodeEmptyCart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			fb.on(http.MethodPost, "/order", respondJSON(tt.status, tt.body))
			pub := new(mocks.MockPublisher)
			if tt.setupMocks != nil {
				tt.setupMocks(pub)
			}
			svc, _ := newOrderService(fb, nil, pub)

			result, err := svc.Checkout(context.Background(), tt.cartIDs)
			svc.Wait()

			calls := fb.Calls()
			assert.Len(t, calls, tt.wantCalls)
			pub.AssertExpectations(t)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, result)
				assert.Equal(t, tt.wantErr, apperrors.UserMessage(err))
				if tt.wantCode != "" {
					var domErr *apperrors.DomainError
					require.ErrorAs(t, err, &domErr)
					assert.Equal(t, tt.wantCode, domErr.Code)
				}
				return
			}

			require.NoError(t, err)
			assert.True(t, result.Placed())
			assert.Equal(t, tt.wantOrderID, result.Order.ID)
			assert.Equal(t, map[string]any{"cartIds": []any{"a", "b"}}, calls[0].Body)
		})
	}
}

func TestOrderService_Checkout_PublishFailureIsOnlyLogged(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on(http.MethodPost, "/order", respondJSON(http.StatusCreated, `{"data":{"_id":"o1","code":"ORD-1"},"status":"ORDER_PLACED"}`))
	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, domain.EventOrderPlaced, mock.Anything).Return(errors.New("broker down"))
	svc, _ := newOrderService(fb, nil, pub)

	result, err := svc.Checkout(context.Background(), []string{"a"})
	svc.Wait()

	require.NoError(t, err)
	assert.True(t, result.Placed())
	pub.AssertExpectations(t)
}

func TestIsCartNotFound(t *testing.T) {
	assert.True(t, IsCartNotFound(&apperrors.ValidationError{Code: "CART_NOT_FOUND"}))
	assert.True(t, IsCartNotFound(&apperrors.DomainError{Code: "CART_NOT_FOUND", Message: "x"}))
	assert.True(t, IsCartNotFound(errors.New("CART_NOT_FOUND: gone")))
	assert.False(t, IsCartNotFound(&apperrors.ValidationError{Message: "nope"}))
	assert.False(t, IsCartNotFound(nil))
}

func TestOrderService_GetAllOrders(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on(http.MethodGet, "/order", respondJSON(http.StatusOK, `{
		"data":[
			{"_id":"o1","code":"A","status":"pending","isPaid":false,"items":[{"_id":"i1","product":"p1","price":425000,"subTotal":4250000,"deliveryCharge":10000,"total":4260000}],"createdAt":"2025-06-25T09:59:10.109Z"},
			{"_id":"o2","code":"B","status":"DELIVERED","isPaid":true,"createdAt":"2025-06-25T09:59:10.109Z"}
		],
		"message":"Your orders","status":"ORDER_LIST",
		"options":{"pagination":{"page":2,"limit":5,"total":7}}
	}`))
	svc, _ := newOrderService(fb, nil, nil)

	page, err := svc.GetAllOrders(context.Background(), domain.OrderQuery{Page: 2, Limit: 5, Status: "PENDING", Search: "fS Aq"})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)

	assert.True(t, page.Orders[0].CanPay())
	assert.Equal(t, "p1", page.Orders[0].Items[0].Product.ID)
	assert.False(t, page.Orders[1].CanPay())
	assert.Equal(t, domain.Pagination{Page: 2, Limit: 5, TotalCount: 7, Total: 7}, page.Pagination)

	q, err := url.ParseQuery(fb.Calls()[0].Query)
	require.NoError(t, err)
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "5", q.Get("limit"))
	assert.Equal(t, "PENDING", q.Get("status"))
	assert.Equal(t, "fS Aq", q.Get("search"))
}

func TestOrderService_GetAllOrders_Defaults(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on(http.MethodGet, "/order", respondJSON(http.StatusOK, `{"data":[]}`))
	svc, _ := newOrderService(fb, nil, nil)

	page, err := svc.GetAllOrders(context.Background(), domain.OrderQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.Pagination{Page: 1, Limit: 20}, page.Pagination)
	assert.Equal(t, "limit=20&page=1", fb.Calls()[0].Query)
}

func TestOrderService_GetAllOrders_FirstPayable(t *testing.T) {
	orders := []domain.Order{
		CreateMockOrder("PAID1", domain.StatusVerified, true),
		CreateMockOrder(TestOrderCode, domain.StatusPending, false),
	}
	body, err := json.Marshal(map[string]any{"data": orders, "options": map[string]any{"pagination": map[string]any{"page": 1, "limit": 20, "totalCount": 2}}})
	require.NoError(t, err)

	fb := newFakeBackend(t)
	fb.on(http.MethodGet, "/order", respondJSON(http.StatusOK, string(body)))
	svc, _ := newOrderService(fb, nil, nil)

	page, err := svc.GetAllOrders(context.Background(), domain.OrderQuery{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, int64(2), page.Pagination.TotalCount)

	payable, ok := page.FirstPayable()
	require.True(t, ok)
	assert.Equal(t, TestOrderCode, payable.OrderCode())
	assert.Equal(t, TestOrderTotal, payable.Total)
}

func TestOrderService_GetAllOrders_RetriesRateLimitWithBackoff(t *testing.T) {
	fb := newFakeBackend(t)
	var hits atomic.Int32
	fb.on(http.MethodGet, "/order", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			respondJSON(http.StatusTooManyRequests, `{"message":"Too many requests"}`)(w, r)
			return
		}
		respondJSON(http.StatusOK, `{"data":[]}`)(w, r)
	})
	svc, timer := newOrderService(fb, nil, nil)

	_, err := svc.GetAllOrders(context.Background(), domain.OrderQuery{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.delays)
}

func TestOrderService_GetAllOrders_Unauthorized(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on(http.MethodGet, "/order", respondJSON(http.StatusUnauthorized, `{"message":"Unauthorized"}`))
	svc, timer := newOrderService(fb, nil, nil)

	_, err := svc.GetAllOrders(context.Background(), domain.OrderQuery{})
	var authErr *apperrors.UnauthorizedError
	require.ErrorAs(t, err, &authErr)
	assert.Len(t, fb.Calls(), 1)
	assert.Empty(t, timer.delays)
}

func TestOrderService_InitiateKhaltiPayment(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		status     int
		body       string
		setupMocks func(*mocks.MockPaymentRepository)
		wantErr    string
		wantCalls  int
	}{
		{
			name:   "session created and journaled",
			code:   TestOrderCode,
			status: http.StatusOK,
			body:   `{"data":{"pidx":"f6uvyMRv5fTgWoLCfGn8jE","payment_url":"https://test-pay.khalti.com/?pidx=f6uvyMRv5fTgWoLCfGn8jE","expires_at":"2025-08-18T13:16:36.230742+05:45","expires_in":1800},"message":"Payment Initiated","status":"KHALTI_INITIATED"}`,
			setupMocks: func(repo *mocks.MockPaymentRepository) {
				repo.On("SaveSession", mock.Anything, TestOrderCode, mock.MatchedBy(func(s *domain.PaymentSession) bool {
					return s.Pidx == TestPidx
				})).Return(nil).Once()
			},
			wantCalls: 1,
		},
		{
			name:   "journal failure does not fail initiation",
			code:   TestOrderCode,
			status: http.StatusOK,
			body:   `{"data":{"pidx":"f6uvyMRv5fTgWoLCfGn8jE","payment_url":"https://test-pay.khalti.com/?pidx=f6uvyMRv5fTgWoLCfGn8jE"}}`,
			setupMocks: func(repo *mocks.MockPaymentRepository) {
				repo.On("SaveSession", mock.Anything, TestOrderCode, mock.Anything).Return(errors.New("db down")).Once()
			},
			wantCalls: 1,
		},
		{
			name:      "missing payment url",
			code:      TestOrderCode,
			status:    http.StatusOK,
			body:      `{"data":{"pidx":"x"}}`,
			wantErr:   "No payment URL received from Khalti",
			wantCalls: 1,
		},
		{
			name:      "rate limited",
			code:      TestOrderCode,
			status:    http.StatusTooManyRequests,
			body:      `{"message":"Too many payment requests"}`,
			wantErr:   "Too many payment requests",
			wantCalls: 1,
		},
		{
			name:    "blank order code",
			code:    "  ",
			wantErr: "Order code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			fb.on(http.MethodGet, "/order/"+TestOrderCode, respondJSON(tt.status, tt.body))
			repo := new(mocks.MockPaymentRepository)
			if tt.setupMocks != nil {
				tt.setupMocks(repo)
			}
			svc, _ := newOrderService(fb, repo, nil)

			session, err := svc.InitiateKhaltiPayment(context.Background(), tt.code)
			calls := fb.Calls()
			assert.Len(t, calls, tt.wantCalls)
			repo.AssertExpectations(t)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, session)
				assert.Equal(t, tt.wantErr, apperrors.UserMessage(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TestPidx, session.Pidx)
			assert.Contains(t, session.PaymentURL, "khalti.com")

			q, err := url.ParseQuery(calls[0].Query)
			require.NoError(t, err)
			assert.Equal(t, successURL, q.Get("success_url"))
		})
	}
}

func ordersBody(t *testing.T, total int, orders ...domain.Order) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"data":    orders,
		"options": map[string]any{"pagination": map[string]any{"totalCount": total}},
	})
	require.NoError(t, err)
	return string(body)
}

func TestOrderService_PayOrder(t *testing.T) {
	tests := []struct {
		name         string
		status       domain.OrderStatus
		isPaid       bool
		wantErr      string
		wantInitiate bool
	}{
		{name: "pending and unpaid", status: domain.StatusPending, wantInitiate: true},
		{name: "pending but paid", status: domain.StatusPending, isPaid: true, wantErr: "This order has already been paid."},
		{name: "verified and unpaid", status: domain.StatusVerified, wantErr: "This order is not awaiting payment."},
		{name: "completed and paid", status: domain.StatusCompleted, isPaid: true, wantErr: "This order has already been paid."},
		{name: "cancelled and unpaid", status: domain.StatusCancelled, wantErr: "This order is cancelled and can no longer be paid."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			fb.on(http.MethodGet, "/order", respondJSON(http.StatusOK, ordersBody(t, 1, CreateMockOrder(TestOrderCode, tt.status, tt.isPaid))))
			fb.on(http.MethodGet, "/order/"+TestOrderCode, respondJSON(http.StatusOK,
				`{"data":{"pidx":"f6uvyMRv5fTgWoLCfGn8jE","payment_url":"https://test-pay.khalti.com/?pidx=f6uvyMRv5fTgWoLCfGn8jE"}}`))
			svc, _ := newOrderService(fb, nil, nil)

			session, err := svc.PayOrder(context.Background(), TestOrderCode)

			initiated := false
			for _, c := range fb.Calls() {
				if c.Path == "/api/order/"+TestOrderCode {
					initiated = true
				}
			}
			assert.Equal(t, tt.wantInitiate, initiated)

			if tt.wantErr != "" {
				var domErr *apperrors.DomainError
				require.ErrorAs(t, err, &domErr)
				assert.Equal(t, CodeOrderNotPayable, domErr.Code)
				assert.Equal(t, tt.wantErr, domErr.Message)
				assert.Nil(t, session)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TestPidx, session.Pidx)
		})
	}
}

func TestOrderService_FindOrder_Pages(t *testing.T) {
	first := make([]domain.Order, orderLookupLimit)
	for i := range first {
		first[i] = CreateMockOrder(fmt.Sprintf("OLD%02d", i), domain.StatusCompleted, true)
	}

	fb := newFakeBackend(t)
	fb.on(http.MethodGet, "/order", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			respondJSON(http.StatusOK, ordersBody(t, orderLookupLimit+1, first...))(w, r)
			return
		}
		respondJSON(http.StatusOK, ordersBody(t, orderLookupLimit+1, CreateMockOrder(TestOrderCode, domain.StatusPending, false)))(w, r)
	})
	svc, _ := newOrderService(fb, nil, nil)

	order, err := svc.FindOrder(context.Background(), TestOrderCode)
	require.NoError(t, err)
	assert.Equal(t, TestOrderCode, order.OrderCode())
	assert.Len(t, fb.Calls(), 2)
	assert.Equal(t, "limit=50&page=2", fb.Calls()[1].Query)

	_, err = svc.FindOrder(context.Background(), "MISSING")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_CreateTransaction(t *testing.T) {
	txn := domain.TransactionRecord{
		Pidx:          TestPidx,
		TxnID:         "txn-1",
		Amount:        4813800,
		TotalAmount:   4813800,
		Status:        domain.TransactionStatusCompleted,
		TransactionID: "txn-1",
	}

	t.Run("verified", func(t *testing.T) {
		fb := newFakeBackend(t)
		fb.on(http.MethodPost, "/order/"+TestOrderCode+"/verify-payment", respondJSON(http.StatusOK, `{"data":{"isPaid":true},"message":"Payment verified","status":"PAYMENT_VERIFIED"}`))
		repo := new(mocks.MockPaymentRepository)
		repo.On("RecordVerification", mock.Anything, TestOrderCode, txn, nil).Return(nil).Once()
		pub := new(mocks.MockPublisher)
		pub.On("Publish", mock.Anything, domain.EventPaymentVerified, mock.MatchedBy(func(evt domain.PaymentVerifiedEvent) bool {
			return evt.OrderCode == TestOrderCode && evt.Pidx == TestPidx && evt.Amount == 4813800
		})).Return(nil).Once()
		svc, _ := newOrderService(fb, repo, pub)

		ack, err := svc.CreateTransaction(context.Background(), TestOrderCode, txn)
		svc.Wait()

		require.NoError(t, err)
		assert.Equal(t, "Payment verified", ack.Message)
		assert.Equal(t, true, ack.Data["isPaid"])

		calls := fb.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "Completed", calls[0].Body["status"])
		assert.Equal(t, false, calls[0].Body["refunded"])
		assert.Equal(t, "txn-1", calls[0].Body["transaction_id"])
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("rejected is journaled as failed", func(t *testing.T) {
		fb := newFakeBackend(t)
		fb.on(http.MethodPost, "/order/"+TestOrderCode+"/verify-payment", respondJSON(http.StatusBadRequest, `{"message":"Payment not completed"}`))
		repo := new(mocks.MockPaymentRepository)
		repo.On("RecordVerification", mock.Anything, TestOrderCode, txn, mock.MatchedBy(func(err error) bool {
			return err != nil
		})).Return(nil).Once()
		pub := new(mocks.MockPublisher)
		svc, _ := newOrderService(fb, repo, pub)

		ack, err := svc.CreateTransaction(context.Background(), TestOrderCode, txn)
		svc.Wait()

		require.Error(t, err)
		assert.Nil(t, ack)
		assert.Equal(t, "Payment not completed", apperrors.UserMessage(err))
		repo.AssertExpectations(t)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})
}
