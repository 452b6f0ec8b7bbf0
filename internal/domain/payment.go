package domain

import "time"

// PaymentSession is a Khalti hosted checkout for one order.
type PaymentSession struct {
	Pidx       string    `json:"pidx"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	ExpiresIn  int64     `json:"expires_in"`
}

const TransactionStatusCompleted = "Completed"

// TransactionRecord is posted to /order/:code/verify-payment.
type TransactionRecord struct {
	Pidx          string `json:"pidx"`
	TxnID         string `json:"txnId"`
	Amount        int64  `json:"amount"`
	TotalAmount   int64  `json:"total_amount"`
	Mobile        string `json:"mobile"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Fee           int64  `json:"fee"`
	Refunded      bool   `json:"refunded"`
}

// PaymentCallback is what the provider appends to the success URL.
type PaymentCallback struct {
	OrderCode   string
	Transaction TransactionRecord
}

// DedupeKey identifies one provider delivery.
func (c PaymentCallback) DedupeKey() string {
	if c.Transaction.Pidx != "" {
		return c.Transaction.Pidx
	}
	if c.Transaction.TransactionID != "" {
		return c.OrderCode + ":" + c.Transaction.TransactionID
	}
	return c.OrderCode
}

type Ack struct {
	Message string         `json:"message"`
	Status  string         `json:"status,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type CallbackOutcome struct {
	OrderCode   string `json:"orderCode"`
	Duplicate   bool   `json:"duplicate"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect"`
}

type PaymentAttemptState string

const (
	AttemptInitiated PaymentAttemptState = "initiated"
	AttemptVerified  PaymentAttemptState = "verified"
	AttemptFailed    PaymentAttemptState = "failed"
)

// PaymentAttempt is the local journal row for one payment session. Pidx is
// NULL for callbacks that arrive without one, which keeps them out of the
// unique index.
type PaymentAttempt struct {
	ID            uint64              `json:"id" gorm:"primaryKey;autoIncrement"`
	Pidx          *string             `json:"pidx,omitempty" gorm:"size:64;uniqueIndex"`
	OrderCode     string              `json:"orderCode" gorm:"size:64;not null;index"`
	State         PaymentAttemptState `json:"state" gorm:"type:enum('initiated','verified','failed');default:'initiated'"`
	PaymentURL    string              `json:"paymentUrl" gorm:"size:512"`
	ExpiresAt     *time.Time          `json:"expiresAt"`
	TransactionID string              `json:"transactionId" gorm:"size:64"`
	Amount        int64               `json:"amount"`
	Fee           int64               `json:"fee"`
	LastError     string              `json:"lastError" gorm:"size:512"`
	CreatedAt     time.Time           `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time           `json:"updatedAt" gorm:"autoUpdateTime"`
}
