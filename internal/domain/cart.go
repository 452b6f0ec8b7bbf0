package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ProductImage is the canonical image shape handed to the browser.
type ProductImage struct {
	ID       string `json:"_id,omitempty"`
	ImageURL string `json:"imageUrl"`
	ThumbURL string `json:"thumbUrl"`
	PublicID string `json:"publicId,omitempty"`
}

// UnmarshalJSON accepts either a bare URL string or any of the object
// shapes the backend has used for product images.
func (p *ProductImage) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = ProductImage{ImageURL: s, ThumbURL: s}
		return nil
	}

	var raw struct {
		ID        string `json:"_id"`
		ImageURL  string `json:"imageUrl"`
		URL       string `json:"url"`
		Image     string `json:"image"`
		ThumbURL  string `json:"thumbUrl"`
		Thumbnail string `json:"thumbnail"`
		PublicID  string `json:"publicId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = ProductImage{
		ID:       raw.ID,
		ImageURL: firstNonEmpty(raw.ImageURL, raw.URL, raw.Image),
		ThumbURL: firstNonEmpty(raw.ThumbURL, raw.Thumbnail, raw.ImageURL, raw.URL, raw.Image),
		PublicID: raw.PublicID,
	}
	return nil
}

type Product struct {
	ID            string         `json:"_id"`
	Name          string         `json:"name"`
	Slug          string         `json:"slug,omitempty"`
	Price         int64          `json:"price"`
	AfterDiscount int64          `json:"afterDiscount"`
	Discount      int64          `json:"discount"`
	Stock         int64          `json:"stock"`
	Image         string         `json:"image,omitempty"`
	Images        []ProductImage `json:"images"`
}

// UnmarshalJSON accepts an unpopulated reference (a bare id string) as well
// as the full product object.
func (p *Product) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*p = Product{ID: id}
		return nil
	}
	type product Product
	var out product
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*p = Product(out)
	return nil
}

// Normalize folds the single image field into Images, drops images without
// a URL and fills price defaults. When the backend sends both shapes the
// single image is used and the array is ignored.
func (p *Product) Normalize() {
	var images []ProductImage
	if img := strings.TrimSpace(p.Image); img != "" {
		images = []ProductImage{{ImageURL: img, ThumbURL: img}}
	} else {
		images = make([]ProductImage, 0, len(p.Images))
		for _, img := range p.Images {
			if strings.TrimSpace(img.ImageURL) == "" {
				continue
			}
			if img.ThumbURL == "" {
				img.ThumbURL = img.ImageURL
			}
			images = append(images, img)
		}
	}
	p.Images = images
	p.Image = ""

	if p.AfterDiscount == 0 {
		p.AfterDiscount = p.Price
	}
	if p.Price == 0 {
		p.Price = p.AfterDiscount
	}
	if p.Stock < 0 {
		p.Stock = 0
	}
}

// CartItem is an order-detail row that has not been checked out yet.
// SubTotal, DeliveryCharge and Total are the backend's figures and are never
// recomputed here.
type CartItem struct {
	ID             string   `json:"_id"`
	Buyer          string   `json:"buyer,omitempty"`
	Order          *string  `json:"order"`
	Product        *Product `json:"product"`
	Quantity       int64    `json:"quantity"`
	Price          int64    `json:"price"`
	SubTotal       int64    `json:"subTotal"`
	DeliveryCharge int64    `json:"deliveryCharge"`
	Total          int64    `json:"total"`
	Status         string   `json:"status,omitempty"`
	CreatedBy      string   `json:"createdBy,omitempty"`
}

func (c CartItem) ProductID() string {
	if c.Product == nil {
		return ""
	}
	return c.Product.ID
}

func (c CartItem) Stock() int64 {
	if c.Product == nil {
		return 0
	}
	return c.Product.Stock
}

// IsValid reports whether the item can be rendered: it needs a populated
// product with an id and a name.
func (c CartItem) IsValid() bool {
	return c.Product != nil && c.Product.ID != "" && c.Product.Name != ""
}

// Checkoutable reports whether the item can still be turned into an order.
func (c CartItem) Checkoutable() bool {
	return c.IsValid() && c.Quantity >= 1 && c.Quantity <= c.Product.Stock
}

// CartSnapshot is the last cart state the caller has seen. Quantity deltas
// are computed against it, never against a fresh read.
type CartSnapshot struct {
	Items     []CartItem `json:"items"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

func NewCartSnapshot(items []CartItem) CartSnapshot {
	return CartSnapshot{Items: items, FetchedAt: time.Now()}
}

func (s CartSnapshot) Find(productID string) (CartItem, bool) {
	for _, item := range s.Items {
		if item.ProductID() == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// QuantityOf returns 0 for products not in the snapshot.
func (s CartSnapshot) QuantityOf(productID string) int64 {
	item, ok := s.Find(productID)
	if !ok {
		return 0
	}
	return item.Quantity
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"totalCount"`
	Total      int64 `json:"total,omitempty"`
}

type CartPage struct {
	Items      []CartItem `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func (p CartPage) Snapshot() CartSnapshot {
	return NewCartSnapshot(p.Items)
}

type CartSummary struct {
	ItemCount      int   `json:"itemCount"`
	SubTotal       int64 `json:"subTotal"`
	DeliveryCharge int64 `json:"deliveryCharge"`
	Total          int64 `json:"total"`
}

// Summarize sums the backend line figures of the given items.
func Summarize(items []CartItem) CartSummary {
	s := CartSummary{ItemCount: len(items)}
	for _, item := range items {
		s.SubTotal += item.SubTotal
		s.DeliveryCharge += item.DeliveryCharge
		s.Total += item.Total
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
