package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 商品カタログ。IDは "P1" のような文字列。
type Product struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ShopID      string          `gorm:"type:varchar(64);index" json:"shop_id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Image       string          `gorm:"type:text" json:"image"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	IsActive    bool            `gorm:"not null;default:false" json:"is_active"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}
