package cache

import (
	"context"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"
)

// REDIS_ADDR が無いときのキャッシュ。常にミス。
type NoopCartCache struct{}

var _ repo.CartCache = NoopCartCache{}

func (NoopCartCache) Get(context.Context, int64) ([]model.CartItem, error) {
	return nil, repo.ErrCacheMiss
}

func (NoopCartCache) Version(context.Context, int64) (int64, error) { return 0, nil }

func (NoopCartCache) Set(context.Context, int64, int64, []model.CartItem) error { return nil }

func (NoopCartCache) Delete(context.Context, int64) error { return nil }
