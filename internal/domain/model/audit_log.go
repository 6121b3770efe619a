package model

import "time"

// カートのマージ・置き換え、商品の管理操作など。
type AuditAction string

const (
	//ゲストカートをサーバーカートへマージした操作。
	AuditActionCartMerge AuditAction = "CART_MERGE"
	//カートを丸ごと置き換えた操作。
	AuditActionCartReplace AuditAction = "CART_REPLACE"
	//商品を作成・更新・削除した操作。
	AuditActionCreateProduct AuditAction = "CREATE_PRODUCT"
	AuditActionUpdateProduct AuditAction = "UPDATE_PRODUCT"
	AuditActionDeleteProduct AuditAction = "DELETE_PRODUCT"
)

// 何に対する操作か
type AuditResourceType string

const (
	//カートに対する操作。
	AuditResourceCart AuditResourceType = "cart"

	//商品に対する操作。
	AuditResourceProduct AuditResourceType = "product"
)

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID。
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	//対象のID（cart.id / product.id）。
	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
