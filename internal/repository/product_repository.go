package repository

import (
	"context"
	"errors"

	"localshop/internal/domain/model"
)

var (
	ErrNotFound = errors.New("not found")
	// unique制約違反
	ErrDuplicate = errors.New("duplicate")
)

// 一覧検索
type ProductListQuery struct {
	Page   int
	Limit  int
	Q      string
	ShopID string
	Sort   string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id string) (model.Product, error)
	// マージ時のカタログ参照。見つからないIDは結果に含めない
	FindByIDs(ctx context.Context, ids []string) ([]model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id string) error
}
