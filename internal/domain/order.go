package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusVerified  OrderStatus = "VERIFIED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusDelivered OrderStatus = "DELIVERED"
)

// Normalized upper-cases the status; the backend is not consistent about case.
func (s OrderStatus) Normalized() OrderStatus {
	return OrderStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

var statusText = map[OrderStatus]string{
	StatusPending:   "Pending Payment",
	StatusVerified:  "Payment Verified",
	StatusCompleted: "Completed",
	StatusDelivered: "Delivered",
	StatusCancelled: "Cancelled",
}

type Buyer struct {
	ID      string `json:"_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (b *Buyer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &b.ID)
	}
	type buyer Buyer
	var out buyer
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*b = Buyer(out)
	return nil
}

type OrderItem struct {
	ID             string   `json:"_id"`
	Status         string   `json:"status,omitempty"`
	Product        *Product `json:"product"`
	Quantity       int64    `json:"quantity"`
	Price          int64    `json:"price"`
	SubTotal       int64    `json:"subTotal"`
	DeliveryCharge int64    `json:"deliveryCharge"`
	Total          int64    `json:"total"`
}

type Order struct {
	ID                 string      `json:"_id"`
	Code               string      `json:"code"`
	Buyer              *Buyer      `json:"buyer,omitempty"`
	Items              []OrderItem `json:"items"`
	GrossTotal         int64       `json:"grossTotal"`
	GrossDeliveryTotal int64       `json:"grossDelivaryTotal"`
	Discount           int64       `json:"discount"`
	SubTotal           int64       `json:"subTotal"`
	Tax                int64       `json:"tax"`
	Total              int64       `json:"total"`
	Status             OrderStatus `json:"status"`
	IsPaid             bool        `json:"isPaid"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// CanPay reports whether the shopper may start a payment for the order.
func (o Order) CanPay() bool {
	return o.Status.Normalized() == StatusPending && !o.IsPaid
}

func (o Order) IsTerminal() bool {
	switch o.Status.Normalized() {
	case StatusCancelled, StatusCompleted, StatusDelivered:
		return true
	}
	return false
}

// StatusText is the label shown next to the order; unknown statuses are shown as sent.
func (o Order) StatusText() string {
	if text, ok := statusText[o.Status.Normalized()]; ok {
		return text
	}
	return string(o.Status)
}

// OrderCode is what the backend expects in /order/:code paths.
func (o Order) OrderCode() string {
	if o.Code != "" {
		return o.Code
	}
	return o.ID
}

const CheckoutStatusOrderPlaced = "ORDER_PLACED"

// CheckoutResult is the envelope of POST /order; Status carries the business outcome.
type CheckoutResult struct {
	Order   *Order `json:"order,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (r CheckoutResult) Placed() bool {
	return r.Status == CheckoutStatusOrderPlaced
}

type OrderQuery struct {
	Page   int
	Limit  int
	Status string
	Search string
}

type OrderPage struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// FirstPayable returns the first order the shopper could still pay for.
func (p OrderPage) FirstPayable() (Order, bool) {
	for _, o := range p.Orders {
		if o.CanPay() {
			return o, true
		}
	}
	return Order{}, false
}
