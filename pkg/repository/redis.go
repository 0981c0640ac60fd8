package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/marketplace/pkg/config"
	"github.com/go-redis/redis/v8"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Claim implements the payment replay guard: a transaction id is bound to
// the first order that presents it and stays bound. Claim reports true when
// txnID is unclaimed or already held by orderID.
func (r *RedisRepository) Claim(ctx context.Context, txnID, orderID string) (bool, error) {
	key := fmt.Sprintf("payment:txn:%s", txnID)
	ok, err := r.client.SetNX(ctx, key, orderID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim transaction: %w", err)
	}
	if ok {
		return true, nil
	}
	holder, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("read transaction claim: %w", err)
	}
	return holder == orderID, nil
}

// UserCache is the identity read-through cache entry.
type UserCache struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r *RedisRepository) CacheUser(ctx context.Context, user *UserCache) error {
	key := fmt.Sprintf("user:%s", user.ID)
	return r.SetJSON(ctx, key, user, 30*time.Minute)
}

func (r *RedisRepository) GetUserCache(ctx context.Context, userID string) (*UserCache, error) {
	key := fmt.Sprintf("user:%s", userID)
	var user UserCache
	if err := r.GetJSON(ctx, key, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// BadgeCache holds seller dashboard counters for a short interval; the
// badge queries scan the order collection and do not need to be fresh to
// the second.
type BadgeCache struct {
	NewSales     int64 `json:"newSales"`
	OpenDisputes int64 `json:"openDisputes"`
}

func (r *RedisRepository) CacheBadges(ctx context.Context, sellerID string, badges *BadgeCache) error {
	key := fmt.Sprintf("badges:%s", sellerID)
	return r.SetJSON(ctx, key, badges, 30*time.Second)
}

func (r *RedisRepository) GetBadgeCache(ctx context.Context, sellerID string) (*BadgeCache, error) {
	key := fmt.Sprintf("badges:%s", sellerID)
	var badges BadgeCache
	if err := r.GetJSON(ctx, key, &badges); err != nil {
		return nil, err
	}
	return &badges, nil
}
