package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/infra"
	rabbit "storefront/internal/infra/rabbitmq"
	"storefront/internal/repository"
	apperrors "storefront/pkg/errors"

	"go.uber.org/zap"
)

const (
	DefaultOrderPage  = 1
	DefaultOrderLimit = 20

	orderLookupLimit    = 50
	maxOrderLookupPages = 10

	CodeEmptyCart         = "EMPTY_CART"
	CodeMissingURL        = "PAYMENT_URL_MISSING"
	CodeMissingOrder      = "ORDER_CODE_MISSING"
	CodeOrderNotFound     = "ORDER_NOT_FOUND"
	CodeOrderNotPayable   = "ORDER_NOT_PAYABLE"
	CodePaymentInProgress = "PAYMENT_IN_PROGRESS"
)

var (
	ErrEmptyCart     = &apperrors.DomainError{Code: CodeEmptyCart, Message: "Your cart is empty"}
	ErrOrderNotFound = &apperrors.DomainError{Code: CodeOrderNotFound, Message: "Order not found"}
)

type OrderService struct {
	backend    infra.Backend
	journal    repository.PaymentRepository // nil disables the payment journal
	publisher  rabbit.PublisherInterface
	retry      RetryPolicy
	successURL string
	logger     *zap.Logger
	pending    sync.WaitGroup
}

// NewOrderService wires the order flow. successURL is where Khalti sends the
// shopper back after paying.
func NewOrderService(b infra.Backend, journal repository.PaymentRepository, pub rabbit.PublisherInterface, retry RetryPolicy, successURL string, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = rabbit.NewNopPublisher(logger)
	}
	return &OrderService{
		backend:    b,
		journal:    journal,
		publisher:  pub,
		retry:      retry,
		successURL: successURL,
		logger:     logger,
	}
}

// Checkout turns the given cart items into one order. Any backend status
// other than ORDER_PLACED is returned as a DomainError carrying the backend
// message.
func (s *OrderService) Checkout(ctx context.Context, cartIDs []string) (*domain.CheckoutResult, error) {
	if len(cartIDs) == 0 {
		return nil, ErrEmptyCart
	}

	raw, err := s.backend.Send(ctx, infra.Request{
		Op:       "order.checkout",
		Method:   http.MethodPost,
		Path:     "/order",
		Body:     map[string]any{"cartIds": cartIDs},
		Fallback: "Checkout failed",
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	result := &domain.CheckoutResult{Status: raw.Status, Message: raw.Message}
	if !result.Placed() {
		msg := raw.Message
		if msg == "" {
			msg = "Checkout failed"
		}
		return nil, &apperrors.DomainError{Code: raw.Status, Message: msg}
	}

	if hasData(raw.Data) {
		env, err := infra.Decode[domain.Order]("order.checkout", raw)
		if err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
		result.Order = &env.Data
	}

	evt := domain.OrderPlacedEvent{CartIDs: cartIDs, PlacedAt: time.Now().UTC()}
	if result.Order != nil {
		evt.OrderCode = result.Order.OrderCode()
		evt.Total = result.Order.Total
	}
	s.publishAsync(domain.EventOrderPlaced, evt)

	return result, nil
}

// GetAllOrders lists orders, retrying when rate limited.
func (s *OrderService) GetAllOrders(ctx context.Context, q domain.OrderQuery) (*domain.OrderPage, error) {
	q = NormalizeOrderQuery(q)

	query := url.Values{
		"page":  {strconv.Itoa(q.Page)},
		"limit": {strconv.Itoa(q.Limit)},
	}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}

	env, err := Retry(ctx, s.retry, "order.list", func(ctx context.Context) (*infra.Envelope[[]domain.Order], error) {
		return infra.Call[[]domain.Order](ctx, s.backend, infra.Request{
			Op:       "order.list",
			Method:   http.MethodGet,
			Path:     "/order",
			Query:    query,
			Fallback: "Failed to fetch orders",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	return &domain.OrderPage{
		Orders:     env.Data,
		Pagination: paginationFrom(env.Options, q.Page, q.Limit, int64(len(env.Data))),
	}, nil
}

// FindOrder pages through the shopper's orders until it finds code. The
// backend's GET /order/:code opens a payment session, so it cannot be used
// as a read.
func (s *OrderService) FindOrder(ctx context.Context, code string) (*domain.Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &apperrors.DomainError{Code: CodeMissingOrder, Message: "Order code is required"}
	}

	for page := 1; page <= maxOrderLookupPages; page++ {
		res, err := s.GetAllOrders(ctx, domain.OrderQuery{Page: page, Limit: orderLookupLimit})
		if err != nil {
			return nil, err
		}
		for i := range res.Orders {
			if res.Orders[i].OrderCode() == code || res.Orders[i].ID == code {
				return &res.Orders[i], nil
			}
		}
		if len(res.Orders) < orderLookupLimit || int64(page*orderLookupLimit) >= res.Pagination.TotalCount {
			break
		}
	}
	return nil, ErrOrderNotFound
}

// PayOrder opens a payment session for an order the shopper can still pay.
// Orders that are paid or past PENDING are refused without touching the
// payment provider.
func (s *OrderService) PayOrder(ctx context.Context, code string) (*domain.PaymentSession, error) {
	order, err := s.FindOrder(ctx, code)
	if err != nil {
		return nil, err
	}
	if !order.CanPay() {
		s.logger.Info("refusing payment for order",
			zap.String("order_code", order.OrderCode()),
			zap.String("status", string(order.Status)),
			zap.Bool("is_paid", order.IsPaid))
		return nil, &apperrors.DomainError{Code: CodeOrderNotPayable, Message: notPayableMessage(*order)}
	}
	return s.InitiateKhaltiPayment(ctx, order.OrderCode())
}

func notPayableMessage(o domain.Order) string {
	switch {
	case o.IsPaid:
		return "This order has already been paid."
	case o.IsTerminal():
		return "This order is " + strings.ToLower(o.StatusText()) + " and can no longer be paid."
	default:
		return "This order is not awaiting payment."
	}
}

// InitiateKhaltiPayment opens a hosted payment session for orderCode. The
// caller sends the shopper to the returned PaymentURL.
func (s *OrderService) InitiateKhaltiPayment(ctx context.Context, orderCode string) (*domain.PaymentSession, error) {
	orderCode = strings.TrimSpace(orderCode)
	if orderCode == "" {
		return nil, &apperrors.DomainError{Code: CodeMissingOrder, Message: "Order code is required"}
	}

	env, err := infra.Call[domain.PaymentSession](ctx, s.backend, infra.Request{
		Op:       "payment.initiate",
		Method:   http.MethodGet,
		Path:     "/order/" + url.PathEscape(orderCode),
		Query:    url.Values{"success_url": {s.successURL}},
		Fallback: "Payment initiation failed",
	})
	if err != nil {
		return nil, fmt.Errorf("initiate payment: %w", err)
	}

	session := env.Data
	if session.PaymentURL == "" {
		return nil, &apperrors.DomainError{Code: CodeMissingURL, Message: "No payment URL received from Khalti"}
	}

	if s.journal != nil {
		if err := s.journal.SaveSession(ctx, orderCode, &session); err != nil {
			s.logger.Error("failed to journal payment session",
				zap.String("order_code", orderCode),
				zap.String("pidx", session.Pidx),
				zap.Error(err))
		}
	}

	s.logger.Info("payment session created",
		zap.String("order_code", orderCode),
		zap.String("pidx", session.Pidx),
		zap.Time("expires_at", session.ExpiresAt))
	return &session, nil
}

// CreateTransaction submits the provider's callback payload so the backend
// can verify and mark the order paid.
func (s *OrderService) CreateTransaction(ctx context.Context, orderCode string, txn domain.TransactionRecord) (*domain.Ack, error) {
	raw, err := s.backend.Send(ctx, infra.Request{
		Op:       "payment.verify",
		Method:   http.MethodPost,
		Path:     "/order/" + url.PathEscape(orderCode) + "/verify-payment",
		Body:     txn,
		Fallback: "Transaction failed",
	})

	if s.journal != nil {
		if jerr := s.journal.RecordVerification(ctx, orderCode, txn, err); jerr != nil {
			s.logger.Error("failed to journal payment verification",
				zap.String("order_code", orderCode),
				zap.String("pidx", txn.Pidx),
				zap.Error(jerr))
		}
	}

	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	ack := &domain.Ack{Message: raw.Message, Status: raw.Status}
	if hasData(raw.Data) {
		if env, err := infra.Decode[map[string]any]("payment.verify", raw); err == nil {
			ack.Data = env.Data
		}
	}

	s.publishAsync(domain.EventPaymentVerified, domain.PaymentVerifiedEvent{
		OrderCode:     orderCode,
		Pidx:          txn.Pidx,
		TransactionID: txn.TransactionID,
		Amount:        txn.TotalAmount,
		VerifiedAt:    time.Now().UTC(),
	})
	return ack, nil
}

// Wait blocks until in-flight event publishes are done.
func (s *OrderService) Wait() {
	s.pending.Wait()
}

func (s *OrderService) publishAsync(pattern string, evt any) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.publisher.Publish(ctx, pattern, evt); err != nil {
			s.logger.Warn("failed to publish event", zap.String("pattern", pattern), zap.Error(err))
		}
	}()
}

// NormalizeOrderQuery applies the listing defaults.
func NormalizeOrderQuery(q domain.OrderQuery) domain.OrderQuery {
	if q.Page < 1 {
		q.Page = DefaultOrderPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultOrderLimit
	}
	q.Status = strings.TrimSpace(q.Status)
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// IsCartNotFound reports whether a checkout failure means the cart the
// shopper saw no longer exists on the backend.
func IsCartNotFound(err error) bool {
	if err == nil {
		return false
	}
	var valErr *apperrors.ValidationError
	if errors.As(err, &valErr) && valErr.Code == "CART_NOT_FOUND" {
		return true
	}
	var domErr *apperrors.DomainError
	if errors.As(err, &domErr) && domErr.Code == "CART_NOT_FOUND" {
		return true
	}
	return strings.Contains(apperrors.UserMessage(err), "CART_NOT_FOUND")
}

func hasData(raw []byte) bool {
	data := bytes.TrimSpace(raw)
	return len(data) > 0 && !bytes.Equal(data, []byte("null"))
}
