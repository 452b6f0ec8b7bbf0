package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DraftStatusPending = "pending"

// BuyNowDraft is a single-product order the shopper started with "buy now"
// and has not checked out yet.
type BuyNowDraft struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Price         int64     `json:"price"`
	AfterDiscount int64     `json:"afterDiscount"`
	Discount      int64     `json:"discount"`
	Image         string    `json:"image"`
	Quantity      int64     `json:"quantity"`
	Stock         int64     `json:"stock"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewBuyNowDraft builds a draft of quantity 1 from a normalized product.
func NewBuyNowDraft(p Product, now time.Time) BuyNowDraft {
	p.Normalize()
	image := ""
	if len(p.Images) > 0 {
		image = p.Images[0].ImageURL
	}
	return BuyNowDraft{
		ID:            uuid.NewString(),
		OrderID:       fmt.Sprintf("ord-%d", now.UnixMilli()),
		Slug:          p.Slug,
		Name:          p.Name,
		Price:         p.Price,
		AfterDiscount: p.AfterDiscount,
		Discount:      p.Discount,
		Image:         image,
		Quantity:      1,
		Stock:         p.Stock,
		Status:        DraftStatusPending,
		CreatedAt:     now,
	}
}
