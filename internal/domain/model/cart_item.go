package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// カートの明細
// 価格・商品名・画像は書き込み時点のスナップショットを保存。
type CartItem struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID       int64           `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"cart_id"`
	ProductID    string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_cart_items_cart_product" json:"product_id"`
	Quantity     int64           `gorm:"not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	ProductName  string          `gorm:"type:varchar(255)" json:"product_name"`
	ProductImage string          `gorm:"type:text" json:"product_image"`
	CreatedAt    time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 小計 = 単価 × 数量
func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}
