package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	apperrors "storefront/pkg/errors"

	"go.uber.org/zap"
)

const (
	PaymentSuccessMessage   = "Payment completed successfully! Your order has been confirmed."
	PaymentDuplicateMessage = "This payment has already been submitted. Your order is being confirmed."
	OrdersPath              = "/orders"

	callbackGuardTTL = 24 * time.Hour
)

// ErrCallbackInProgress answers a redelivery that arrives while the first
// delivery is still being verified.
var ErrCallbackInProgress = &apperrors.DomainError{
	Code:    CodePaymentInProgress,
	Message: "Your payment is still being confirmed. Please refresh in a moment.",
}

// TransactionCreator is the part of the order flow the callback consumer needs.
type TransactionCreator interface {
	CreateTransaction(ctx context.Context, orderCode string, txn domain.TransactionRecord) (*domain.Ack, error)
}

// AttemptFinder reads the payment journal.
type AttemptFinder interface {
	FindByPidx(ctx context.Context, pidx string) (*domain.PaymentAttempt, error)
}

var _ TransactionCreator = (*OrderService)(nil)

// PaymentCallbackService consumes the provider's redirect back to /success.
type PaymentCallbackService struct {
	orders  TransactionCreator
	guard   cache.CallbackGuard // nil disables duplicate detection
	journal AttemptFinder       // consulted when the guard cannot answer
	logger  *zap.Logger
}

func NewPaymentCallbackService(orders TransactionCreator, guard cache.CallbackGuard, journal AttemptFinder, logger *zap.Logger) *PaymentCallbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentCallbackService{orders: orders, guard: guard, journal: journal, logger: logger}
}

// ParsePaymentCallback builds the transaction record from the redirect query.
// purchase_order_id is the only required parameter; numbers that are missing
// or unparsable become 0.
func ParsePaymentCallback(q url.Values) (domain.PaymentCallback, error) {
	orderCode := strings.TrimSpace(q.Get("purchase_order_id"))
	if orderCode == "" {
		return domain.PaymentCallback{}, &apperrors.DomainError{
			Code:    CodeMissingOrder,
			Message: "Order code not found in payment response",
		}
	}

	txnID := q.Get("txnId")
	transactionID := q.Get("transaction_id")
	if transactionID == "" {
		transactionID = txnID
	}

	return domain.PaymentCallback{
		OrderCode: orderCode,
		Transaction: domain.TransactionRecord{
			Pidx:          q.Get("pidx"),
			TxnID:         txnID,
			Amount:        leadingInt(q.Get("amount")),
			TotalAmount:   leadingInt(q.Get("total_amount")),
			Mobile:        q.Get("mobile"),
			Status:        domain.TransactionStatusCompleted,
			TransactionID: transactionID,
			Fee:           leadingInt(q.Get("fee")),
			Refunded:      false,
		},
	}, nil
}

// Process submits the callback once. A redelivery of a callback that has
// been submitted reports Duplicate without calling the backend again; one
// that arrives while the first is still in flight gets ErrCallbackInProgress.
// A failed submission releases the guard so a reload retries.
func (s *PaymentCallbackService) Process(ctx context.Context, q url.Values) (*domain.CallbackOutcome, error) {
	cb, err := ParsePaymentCallback(q)
	if err != nil {
		return nil, err
	}

	key := cb.DedupeKey()
	guarded := false
	if s.guard != nil {
		ok, state, err := s.guard.Acquire(ctx, key, callbackGuardTTL)
		switch {
		case err != nil:
			s.logger.Warn("callback guard unavailable, checking payment journal", zap.String("key", key), zap.Error(err))
			if s.alreadyVerified(ctx, cb) {
				return duplicateOutcome(cb), nil
			}
		case !ok && state == cache.CallbackDone:
			s.logger.Info("duplicate payment callback", zap.String("order_code", cb.OrderCode), zap.String("pidx", cb.Transaction.Pidx))
			return duplicateOutcome(cb), nil
		case !ok:
			s.logger.Info("payment callback already in flight", zap.String("order_code", cb.OrderCode), zap.String("pidx", cb.Transaction.Pidx))
			return nil, ErrCallbackInProgress
		default:
			guarded = true
		}
	} else if s.alreadyVerified(ctx, cb) {
		return duplicateOutcome(cb), nil
	}

	if _, err := s.orders.CreateTransaction(ctx, cb.OrderCode, cb.Transaction); err != nil {
		if guarded {
			// the request context may already be gone
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if rerr := s.guard.Release(releaseCtx, key); rerr != nil {
				s.logger.Warn("failed to release callback guard", zap.String("key", key), zap.Error(rerr))
			}
			cancel()
		}
		return nil, fmt.Errorf("verify payment for order %s: %w", cb.OrderCode, err)
	}

	if guarded {
		if err := s.guard.Complete(ctx, key, callbackGuardTTL); err != nil {
			s.logger.Warn("failed to mark callback guard done", zap.String("key", key), zap.Error(err))
		}
	}

	s.logger.Info("payment verified", zap.String("order_code", cb.OrderCode), zap.String("pidx", cb.Transaction.Pidx))
	return &domain.CallbackOutcome{
		OrderCode:   cb.OrderCode,
		Message:     PaymentSuccessMessage,
		RedirectURL: OrdersPath,
	}, nil
}

// alreadyVerified reports whether the journal holds a verified attempt for
// the callback's pidx. Lookup failures count as not verified.
func (s *PaymentCallbackService) alreadyVerified(ctx context.Context, cb domain.PaymentCallback) bool {
	if s.journal == nil || cb.Transaction.Pidx == "" {
		return false
	}
	attempt, err := s.journal.FindByPidx(ctx, cb.Transaction.Pidx)
	if err != nil {
		s.logger.Warn("payment journal lookup failed", zap.String("pidx", cb.Transaction.Pidx), zap.Error(err))
		return false
	}
	return attempt != nil && attempt.State == domain.AttemptVerified
}

func duplicateOutcome(cb domain.PaymentCallback) *domain.CallbackOutcome {
	return &domain.CallbackOutcome{
		OrderCode:   cb.OrderCode,
		Duplicate:   true,
		Message:     PaymentDuplicateMessage,
		RedirectURL: OrdersPath,
	}
}

// leadingInt reads an optional sign and the leading digits of s, ignoring
// the rest, so "1000.50" is 1000. Anything else is 0.
func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
