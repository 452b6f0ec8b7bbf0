package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/infra"
	apperrors "storefront/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCartPage  = 1
	DefaultCartLimit = 50

	AddToCartSuccess = "ADD_TO_CART_SUCCESS"
)

type CartService struct {
	backend infra.Backend
	retry   RetryPolicy
	logger  *zap.Logger
	sfg     singleflight.Group // coalesces concurrent identical cart reads
}

func NewCartService(b infra.Backend, retry RetryPolicy, logger *zap.Logger) *CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{
		backend: b,
		retry:   retry,
		logger:  logger,
	}
}

// GetCartItems lists the shopper's cart. Identical concurrent reads for the
// same shopper share one backend call.
func (s *CartService) GetCartItems(ctx context.Context, page, limit int) (*domain.CartPage, error) {
	page, limit = cartPaging(page, limit)
	key := fmt.Sprintf("%s:%d:%d", cache.OwnerKey(infra.TokenFrom(ctx)), page, limit)

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		return s.fetchCartItems(ctx, page, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CartPage), nil
}

// RefreshCart reads the first cart page without coalescing, for reads that
// must observe a mutation that just completed.
func (s *CartService) RefreshCart(ctx context.Context) (*domain.CartPage, error) {
	return s.fetchCartItems(ctx, DefaultCartPage, DefaultCartLimit)
}

func (s *CartService) fetchCartItems(ctx context.Context, page, limit int) (*domain.CartPage, error) {
	env, err := Retry(ctx, s.retry, "cart.list", func(ctx context.Context) (*infra.Envelope[[]domain.CartItem], error) {
		return infra.Call[[]domain.CartItem](ctx, s.backend, infra.Request{
			Op:       "cart.list",
			Method:   http.MethodGet,
			Path:     "/order-detail",
			Query:    url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}},
			Fallback: "Failed to fetch cart items",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}

	items := env.Data
	for i := range items {
		s.normalizeItem(&items[i])
	}

	return &domain.CartPage{
		Items:      items,
		Pagination: paginationFrom(env.Options, page, limit, int64(len(items))),
	}, nil
}

func (s *CartService) normalizeItem(item *domain.CartItem) {
	if item.Product == nil {
		s.logger.Warn("cart item missing product", zap.String("cart_item_id", item.ID))
		return
	}
	item.Product.Normalize()
	if len(item.Product.Images) == 0 {
		s.logger.Debug("no images for product", zap.String("product_id", item.Product.ID))
	}
}

func (s *CartService) AddToCart(ctx context.Context, productID string, quantity int64) (*domain.CartItem, error) {
	if productID == "" {
		return nil, &apperrors.ValidationError{StatusCode: http.StatusBadRequest, Message: "Product is required"}
	}
	if quantity < 1 {
		return nil, &apperrors.ValidationError{StatusCode: http.StatusBadRequest, Message: "Invalid quantity requested"}
	}

	env, err := infra.Call[domain.CartItem](ctx, s.backend, infra.Request{
		Op:       "cart.add",
		Method:   http.MethodPost,
		Path:     "/order-detail",
		Body:     map[string]any{"product": productID, "quantity": quantity},
		Fallback: "Failed to add to cart",
	})
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}
	if env.Status != "" && env.Status != AddToCartSuccess {
		s.logger.Warn("unexpected add to cart status", zap.String("status", env.Status))
	}

	item := env.Data
	s.normalizeItem(&item)
	return &item, nil
}

// UpdateCartItem moves the quantity of productID to newQuantity. The backend
// takes a signed delta, computed as current minus new against snapshot; a
// product missing from snapshot counts as quantity 0. A zero delta sends
// nothing. No clamping happens here.
func (s *CartService) UpdateCartItem(ctx context.Context, snapshot domain.CartSnapshot, productID string, newQuantity int64) error {
	delta := snapshot.QuantityOf(productID) - newQuantity
	if delta == 0 {
		return nil
	}

	_, err := s.backend.Send(ctx, infra.Request{
		Op:       "cart.update",
		Method:   http.MethodPatch,
		Path:     "/order-detail",
		Body:     map[string]any{"product": productID, "quantity": delta},
		Fallback: "Validation failed",
	})
	if err != nil {
		s.logger.Warn("cart update rejected",
			zap.String("product_id", productID),
			zap.Int64("delta", delta),
			zap.Error(err))
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, snapshot domain.CartSnapshot, productID string) error {
	return s.UpdateCartItem(ctx, snapshot, productID, 0)
}

type paginationOptions struct {
	Pagination *domain.Pagination `json:"pagination"`
}

func paginationFrom(raw json.RawMessage, page, limit int, count int64) domain.Pagination {
	fallback := domain.Pagination{Page: page, Limit: limit, TotalCount: count}
	if len(raw) == 0 {
		return fallback
	}
	var opts paginationOptions
	if err := json.Unmarshal(raw, &opts); err != nil || opts.Pagination == nil {
		return fallback
	}
	p := *opts.Pagination
	if p.TotalCount == 0 && p.Total != 0 {
		p.TotalCount = p.Total
	}
	return p
}

func cartPaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultCartPage
	}
	if limit < 1 {
		limit = DefaultCartLimit
	}
	return page, limit
}
