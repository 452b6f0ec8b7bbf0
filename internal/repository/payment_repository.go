package repository

import (
	"context"

	"storefront/internal/domain"
)

// PaymentRepository is the local journal of payment sessions and their verification.
type PaymentRepository interface {
	SaveSession(ctx context.Context, orderCode string, session *domain.PaymentSession) error
	RecordVerification(ctx context.Context, orderCode string, txn domain.TransactionRecord, verifyErr error) error
	FindByPidx(ctx context.Context, pidx string) (*domain.PaymentAttempt, error)
}
