package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/go-redis/redis/v8"
)

const (
	draftTTL     = 24 * time.Hour
	orderListTTL = 10 * time.Second
	maxDrafts    = 20
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var (
	_ DraftStore     = (*RedisStore)(nil)
	_ OrderListCache = (*RedisStore)(nil)
	_ CallbackGuard  = (*RedisStore)(nil)
)

func (r *RedisStore) AppendDraft(ctx context.Context, owner string, draft domain.BuyNowDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft failed: %w", err)
	}

	key := draftKey(owner)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxDrafts, -1)
	pipe.Expire(ctx, key, draftTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append draft failed: %w", err)
	}
	return nil
}

func (r *RedisStore) ListDrafts(ctx context.Context, owner string) ([]domain.BuyNowDraft, error) {
	raw, err := r.client.LRange(ctx, draftKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list drafts failed: %w", err)
	}

	drafts := make([]domain.BuyNowDraft, 0, len(raw))
	for _, item := range raw {
		var d domain.BuyNowDraft
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func (r *RedisStore) GetOrders(ctx context.Context, owner string, q domain.OrderQuery) (*domain.OrderPage, error) {
	data, err := r.client.Get(ctx, orderListKey(owner, q)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var page domain.OrderPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("unmarshal orders failed: %w", err)
	}
	return &page, nil
}

func (r *RedisStore) SetOrders(ctx context.Context, owner string, q domain.OrderQuery, page *domain.OrderPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal orders failed: %w", err)
	}
	if err := r.client.Set(ctx, orderListKey(owner, q), data, orderListTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) InvalidateOrders(ctx context.Context, owner string) error {
	iter := r.client.Scan(ctx, 0, fmt.Sprintf("orders:%s:*", owner), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, CallbackState, error) {
	ok, err := r.client.SetNX(ctx, callbackKey(key), string(CallbackPending), ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("redis setnx failed: %w", err)
	}
	if ok {
		return true, CallbackPending, nil
	}

	state, err := r.client.Get(ctx, callbackKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// released or expired between the two calls; the other holder is still deciding
		return false, CallbackPending, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("redis get failed: %w", err)
	}
	if CallbackState(state) == CallbackDone {
		return false, CallbackDone, nil
	}
	return false, CallbackPending, nil
}

// Complete marks a claimed key as submitted so later redeliveries are
// answered as duplicates instead of in-progress.
func (r *RedisStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, callbackKey(key), string(CallbackDone), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, callbackKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func draftKey(owner string) string {
	return fmt.Sprintf("drafts:%s", owner)
}

func orderListKey(owner string, q domain.OrderQuery) string {
	return fmt.Sprintf("orders:%s:%d:%d:%s:%s", owner, q.Page, q.Limit, q.Status, q.Search)
}

func callbackKey(key string) string {
	return fmt.Sprintf("payment:callback:%s", key)
}
