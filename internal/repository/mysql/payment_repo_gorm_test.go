package mysql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"storefront/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The production column type is a MySQL enum, so the table is declared by
// hand for sqlite.
const createAttemptsTable = `CREATE TABLE payment_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pidx VARCHAR(64) UNIQUE,
	order_code VARCHAR(64) NOT NULL,
	state VARCHAR(16) DEFAULT 'initiated',
	payment_url VARCHAR(512),
	expires_at DATETIME,
	transaction_id VARCHAR(64),
	amount INTEGER,
	fee INTEGER,
	last_error VARCHAR(512),
	created_at DATETIME,
	updated_at DATETIME
)`

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// each connection would get its own in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(createAttemptsTable).Error)
	return db
}

func countAttempts(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.PaymentAttempt{}).Count(&n).Error)
	return n
}

func TestPaymentRepo_SessionThenVerification(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	expires := time.Date(2025, 8, 18, 13, 16, 36, 0, time.UTC)
	require.NoError(t, repo.SaveSession(ctx, "ORD1", &domain.PaymentSession{
		Pidx:       "px1",
		PaymentURL: "https://pay.khalti.com/?pidx=px1",
		ExpiresAt:  expires,
	}))
	// a reload of the pay button refreshes the same row
	require.NoError(t, repo.SaveSession(ctx, "ORD1", &domain.PaymentSession{
		Pidx:       "px1",
		PaymentURL: "https://pay.khalti.com/?pidx=px1&r=2",
		ExpiresAt:  expires,
	}))

	attempt, err := repo.FindByPidx(ctx, "px1")
	require.NoError(t, err)
	require.NotNil(t, attempt)
	assert.Equal(t, domain.AttemptInitiated, attempt.State)
	assert.Equal(t, "https://pay.khalti.com/?pidx=px1&r=2", attempt.PaymentURL)

	require.NoError(t, repo.RecordVerification(ctx, "ORD1", domain.TransactionRecord{
		Pidx: "px1", TransactionID: "tx-1", TotalAmount: 4813800, Fee: 10,
	}, nil))

	attempt, err = repo.FindByPidx(ctx, "px1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptVerified, attempt.State)
	assert.Equal(t, "tx-1", attempt.TransactionID)
	assert.Equal(t, int64(4813800), attempt.Amount)
	assert.Equal(t, "https://pay.khalti.com/?pidx=px1&r=2", attempt.PaymentURL)
	assert.Equal(t, int64(1), countAttempts(t, db))
}

func TestPaymentRepo_CallbacksWithoutPidxKeepSeparateRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.RecordVerification(ctx, "ORD-A", domain.TransactionRecord{TransactionID: "tx-a", TotalAmount: 1000}, nil))
	require.NoError(t, repo.RecordVerification(ctx, "ORD-B", domain.TransactionRecord{TransactionID: "tx-b", TotalAmount: 2000}, errors.New("Payment not completed")))
	assert.Equal(t, int64(2), countAttempts(t, db))

	var a, b domain.PaymentAttempt
	require.NoError(t, db.Where("order_code = ?", "ORD-A").First(&a).Error)
	require.NoError(t, db.Where("order_code = ?", "ORD-B").First(&b).Error)
	assert.Nil(t, a.Pidx)
	assert.Equal(t, domain.AttemptVerified, a.State)
	assert.Equal(t, int64(1000), a.Amount)
	assert.Equal(t, domain.AttemptFailed, b.State)
	assert.Equal(t, "Payment not completed", b.LastError)

	// a redelivery of the same pidx-less callback updates its own row
	require.NoError(t, repo.RecordVerification(ctx, "ORD-B", domain.TransactionRecord{TransactionID: "tx-b", TotalAmount: 2000}, nil))
	assert.Equal(t, int64(2), countAttempts(t, db))
	require.NoError(t, db.Where("order_code = ?", "ORD-B").First(&b).Error)
	assert.Equal(t, domain.AttemptVerified, b.State)
	assert.Empty(t, b.LastError)

	attempt, err := repo.FindByPidx(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, attempt)
}

func TestPaymentRepo_FindByPidx_Missing(t *testing.T) {
	repo := NewPaymentRepository(setupTestDB(t))

	attempt, err := repo.FindByPidx(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, attempt)
}

func TestPaymentRepo_LongErrorKeepsValidUTF8(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)

	msg := strings.Repeat("a", maxErrorLen-1) + strings.Repeat("भुक्तानी", 4)
	require.NoError(t, repo.RecordVerification(context.Background(), "ORD1",
		domain.TransactionRecord{Pidx: "px1", TransactionID: "tx-1"}, errors.New(msg)))

	attempt, err := repo.FindByPidx(context.Background(), "px1")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(attempt.LastError))
	assert.Equal(t, strings.Repeat("a", maxErrorLen-1), attempt.LastError)
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"éé", 3, "é"},
		{"日本", 4, "日"},
		{"日本", 2, ""},
	}
	for _, tt := range tests {
		got := truncateUTF8(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "%q cut to %d", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}
}
