package mysql

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"gorm.io/gorm"
)

const maxErrorLen = 512

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepo{db: db}
}

// SaveSession records an initiated session, or refreshes the URL and expiry
// of one already journaled. The state of an existing row is left alone.
func (r *paymentRepo) SaveSession(ctx context.Context, orderCode string, session *domain.PaymentSession) error {
	var expiresAt *time.Time
	if !session.ExpiresAt.IsZero() {
		expires := session.ExpiresAt
		expiresAt = &expires
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt domain.PaymentAttempt
		err := attemptScope(tx, orderCode, session.Pidx, "").First(&attempt).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			attempt = domain.PaymentAttempt{
				Pidx:      nullable(session.Pidx),
				OrderCode: orderCode,
				State:     domain.AttemptInitiated,
			}
		} else if err != nil {
			return err
		}

		attempt.OrderCode = orderCode
		attempt.PaymentURL = session.PaymentURL
		attempt.ExpiresAt = expiresAt
		return tx.Save(&attempt).Error
	})
}

// RecordVerification marks the attempt verified, or failed when verifyErr is
// set. Callbacks for sessions this service never started still get a row.
func (r *paymentRepo) RecordVerification(ctx context.Context, orderCode string, txn domain.TransactionRecord, verifyErr error) error {
	state := domain.AttemptVerified
	lastError := ""
	if verifyErr != nil {
		state = domain.AttemptFailed
		lastError = truncateUTF8(verifyErr.Error(), maxErrorLen)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt domain.PaymentAttempt
		err := attemptScope(tx, orderCode, txn.Pidx, txn.TransactionID).First(&attempt).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			attempt = domain.PaymentAttempt{Pidx: nullable(txn.Pidx), OrderCode: orderCode}
		} else if err != nil {
			return err
		}

		attempt.State = state
		attempt.TransactionID = txn.TransactionID
		attempt.Amount = txn.TotalAmount
		attempt.Fee = txn.Fee
		attempt.LastError = lastError
		return tx.Save(&attempt).Error
	})
}

func (r *paymentRepo) FindByPidx(ctx context.Context, pidx string) (*domain.PaymentAttempt, error) {
	if pidx == "" {
		return nil, nil
	}
	var attempt domain.PaymentAttempt
	if err := r.db.WithContext(ctx).Where("pidx = ?", pidx).First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

// attemptScope selects the row a write belongs to. Rows are keyed by pidx;
// without one they are keyed by order code and transaction id.
func attemptScope(tx *gorm.DB, orderCode, pidx, transactionID string) *gorm.DB {
	if pidx != "" {
		return tx.Where("pidx = ?", pidx)
	}
	return tx.Where("pidx IS NULL AND order_code = ? AND transaction_id = ?", orderCode, transactionID)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
