package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"

	"github.com/redis/go-redis/v9"
)

// 世代キーはどのキャッシュ値よりも長く残す
const versionTTL = 24 * time.Hour

// KEYS[1]=カート, KEYS[2]=世代。世代が ARGV[1] のままなら ARGV[2] を ARGV[3] ミリ秒で書く
var setIfVersion = redis.NewScript(`
if (redis.call("GET", KEYS[2]) or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

type RedisCartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCartCache(client *redis.Client) *RedisCartCache {
	return &RedisCartCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

var _ repo.CartCache = (*RedisCartCache)(nil)

func (r *RedisCartCache) Get(ctx context.Context, userID int64) ([]model.CartItem, error) {
	data, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repo.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []model.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return items, nil
}

// Version は書き込みのたびに進む世代。キーが無ければ0
func (r *RedisCartCache) Version(ctx context.Context, userID int64) (int64, error) {
	v, err := r.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

func (r *RedisCartCache) Set(ctx context.Context, userID int64, version int64, items []model.CartItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// 同時に切れないよう0〜4分ずらす
	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute

	n, err := setIfVersion.Run(ctx, r.client,
		[]string{cacheKey(userID), versionKey(userID)},
		version, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if n == 0 {
		return repo.ErrCacheStale
	}
	return nil
}

// Delete は世代を進めてから値を消す。読み込み中のSetはこれで無効になる
func (r *RedisCartCache) Delete(ctx context.Context, userID int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(userID))
		pipe.Expire(ctx, versionKey(userID), versionTTL)
		pipe.Del(ctx, cacheKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func versionKey(userID int64) string {
	return fmt.Sprintf("cart:%d:ver", userID)
}
