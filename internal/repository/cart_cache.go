package repository

import (
	"context"
	"errors"

	"localshop/internal/domain/model"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// 読み込みの後に書き込みがあり、Setを捨てた
	ErrCacheStale = errors.New("cache stale")
)

// GET /cart の読み取りキャッシュ。
// 書き込みのたびにDeleteで世代を進める。Setは読み込み前にVersionで取った世代が変わっていないときだけ書く。
type CartCache interface {
	Get(ctx context.Context, userID int64) ([]model.CartItem, error)
	Version(ctx context.Context, userID int64) (int64, error)
	Set(ctx context.Context, userID int64, version int64, items []model.CartItem) error
	Delete(ctx context.Context, userID int64) error
}
