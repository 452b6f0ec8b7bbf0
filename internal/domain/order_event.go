package domain

import "time"

const (
	EventOrderPlaced     = "order.placed"
	EventPaymentVerified = "payment.verified"
)

type OrderPlacedEvent struct {
	OrderCode string    `json:"orderCode"`
	CartIDs   []string  `json:"cartIds"`
	Total     int64     `json:"total"`
	PlacedAt  time.Time `json:"placedAt"`
}

type PaymentVerifiedEvent struct {
	OrderCode     string    `json:"orderCode"`
	Pidx          string    `json:"pidx"`
	TransactionID string    `json:"transactionId"`
	Amount        int64     `json:"amount"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}
