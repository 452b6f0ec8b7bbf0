package mocks

import (
	"context"
	"net/url"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"

	"github.com/stretchr/testify/mock"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) SaveSession(ctx context.Context, orderCode string, session *domain.PaymentSession) error {
	args := m.Called(ctx, orderCode, session)
	return args.Error(0)
}

func (m *MockPaymentRepository) RecordVerification(ctx context.Context, orderCode string, txn domain.TransactionRecord, verifyErr error) error {
	args := m.Called(ctx, orderCode, txn, verifyErr)
	return args.Error(0)
}

func (m *MockPaymentRepository) FindByPidx(ctx context.Context, pidx string) (*domain.PaymentAttempt, error) {
	args := m.Called(ctx, pidx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentAttempt), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, pattern string, data any) error {
	args := m.Called(ctx, pattern, data)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

type MockCallbackGuard struct {
	mock.Mock
}

func (m *MockCallbackGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, cache.CallbackState, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Get(1).(cache.CallbackState), args.Error(2)
}

func (m *MockCallbackGuard) Complete(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

func (m *MockCallbackGuard) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockTransactionCreator struct {
	mock.Mock
}

func (m *MockTransactionCreator) CreateTransaction(ctx context.Context, orderCode string, txn domain.TransactionRecord) (*domain.Ack, error) {
	args := m.Called(ctx, orderCode, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ack), args.Error(1)
}

type MockCartUseCase struct {
	mock.Mock
}

func (m *MockCartUseCase) GetCartItems(ctx context.Context, page, limit int) (*domain.CartPage, error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartPage), args.Error(1)
}

func (m *MockCartUseCase) RefreshCart(ctx context.Context) (*domain.CartPage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartPage), args.Error(1)
}

func (m *MockCartUseCase) AddToCart(ctx context.Context, productID string, quantity int64) (*domain.CartItem, error) {
	args := m.Called(ctx, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartItem), args.Error(1)
}

func (m *MockCartUseCase) UpdateCartItem(ctx context.Context, snapshot domain.CartSnapshot, productID string, newQuantity int64) error {
	args := m.Called(ctx, snapshot, productID, newQuantity)
	return args.Error(0)
}

func (m *MockCartUseCase) RemoveFromCart(ctx context.Context, snapshot domain.CartSnapshot, productID string) error {
	args := m.Called(ctx, snapshot, productID)
	return args.Error(0)
}

type MockOrderUseCase struct {
	mock.Mock
}

func (m *MockOrderUseCase) Checkout(ctx context.Context, cartIDs []string) (*domain.CheckoutResult, error) {
	args := m.Called(ctx, cartIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutResult), args.Error(1)
}

func (m *MockOrderUseCase) GetAllOrders(ctx context.Context, q domain.OrderQuery) (*domain.OrderPage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderPage), args.Error(1)
}

func (m *MockOrderUseCase) PayOrder(ctx context.Context, orderCode string) (*domain.PaymentSession, error) {
	args := m.Called(ctx, orderCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentSession), args.Error(1)
}

type MockPaymentCallbackUseCase struct {
	mock.Mock
}

func (m *MockPaymentCallbackUseCase) Process(ctx context.Context, q url.Values) (*domain.CallbackOutcome, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallbackOutcome), args.Error(1)
}

type MockAuthUseCase struct {
	mock.Mock
}

func (m *MockAuthUseCase) Login(ctx context.Context, creds domain.Credentials) (*domain.Tokens, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tokens), args.Error(1)
}

func (m *MockAuthUseCase) Me(ctx context.Context) (*domain.UserProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserProfile), args.Error(1)
}
