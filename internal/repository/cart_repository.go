package repository

import (
	"context"

	"localshop/internal/domain/model"
)

type CartRepository interface {
	// カートが無ければ作る
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// 無ければErrNotFound
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
	Clear(ctx context.Context, cartID int64) error
}
