package http

import (
	"storefront/internal/domain"
)

type AddToCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity *int64 `json:"quantity" binding:"required"`
}

type BuyNowRequest struct {
	Product *domain.Product `json:"product" binding:"required"`
}

// CartResponse is the cart as the page renders it: only displayable items,
// with the backend's own line figures summed.
type CartResponse struct {
	Items      []domain.CartItem  `json:"items"`
	Summary    domain.CartSummary `json:"summary"`
	Pagination domain.Pagination  `json:"pagination"`
	Message    string             `json:"message,omitempty"`
}

func newCartResponse(page *domain.CartPage) CartResponse {
	items := make([]domain.CartItem, 0, len(page.Items))
	for _, item := range page.Items {
		if item.IsValid() {
			items = append(items, item)
		}
	}
	return CartResponse{
		Items:      items,
		Summary:    domain.Summarize(items),
		Pagination: page.Pagination,
	}
}

type OrderView struct {
	domain.Order
	CanPay     bool   `json:"canPay"`
	StatusText string `json:"statusText"`
}

type OrdersResponse struct {
	Orders     []OrderView       `json:"orders"`
	Pagination domain.Pagination `json:"pagination"`
}

func newOrdersResponse(page *domain.OrderPage) OrdersResponse {
	views := make([]OrderView, 0, len(page.Orders))
	for _, o := range page.Orders {
		views = append(views, OrderView{Order: o, CanPay: o.CanPay(), StatusText: o.StatusText()})
	}
	return OrdersResponse{Orders: views, Pagination: page.Pagination}
}

type PaymentResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}
