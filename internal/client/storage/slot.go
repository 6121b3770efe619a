package storage

import (
	"context"
	"errors"
)

// キーが無いとき
var ErrNotFound = errors.New("storage: key not found")

// Slot は端末側の永続キーバリュー。値はそのままのバイト列。
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// 無いキーの削除はエラーにしない
	Delete(ctx context.Context, key string) error
}
