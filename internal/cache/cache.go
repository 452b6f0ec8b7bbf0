package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"storefront/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// DraftStore keeps "buy now" drafts per shopper.
type DraftStore interface {
	AppendDraft(ctx context.Context, owner string, draft domain.BuyNowDraft) error
	ListDrafts(ctx context.Context, owner string) ([]domain.BuyNowDraft, error)
}

// OrderListCache briefly caches order list pages per shopper.
type OrderListCache interface {
	GetOrders(ctx context.Context, owner string, q domain.OrderQuery) (*domain.OrderPage, error)
	SetOrders(ctx context.Context, owner string, q domain.OrderQuery, page *domain.OrderPage) error
	InvalidateOrders(ctx context.Context, owner string) error
}

// CallbackState is what a claimed callback key holds.
type CallbackState string

const (
	CallbackPending CallbackState = "pending"
	CallbackDone    CallbackState = "done"
)

// CallbackGuard makes sure a provider callback is submitted once.
// Acquire claims key as pending. When key is already claimed it returns
// false along with the state the holder left.
type CallbackGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, CallbackState, error)
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// OwnerKey derives a stable cache owner id from a bearer token so raw
// tokens never end up in redis keys.
func OwnerKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}
