package repository

import (
	"context"

	"localshop/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	// 同一商品は数量を加算し、価格・名前・画像は新しい値で上書き
	UpsertByCartAndProduct(ctx context.Context, item model.CartItem) error
	// 同一商品は数量をそのまま置き換える
	SetByCartAndProduct(ctx context.Context, item model.CartItem) (model.CartItem, error)
	CreateBulk(ctx context.Context, items []model.CartItem) error
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	DeleteByID(ctx context.Context, cartItemID int64) error
	FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error)
	IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error)
}
